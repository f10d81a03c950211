package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"
)

func key(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRBTreeAscendingMinIsLowestPrice(t *testing.T) {
	tree := NewRBTree(false)
	for _, p := range []string{"10.00", "5.00", "20.00", "1.00"} {
		tree.Insert(NewPriceLevel(key(p)))
	}
	if got := tree.Min().Price; !got.Equal(key("1.00")) {
		t.Errorf("expected ascending Min() to be 1.00, got %s", got)
	}
}

func TestRBTreeDescendingMinIsHighestPrice(t *testing.T) {
	tree := NewRBTree(true)
	for _, p := range []string{"10.00", "5.00", "20.00", "1.00"} {
		tree.Insert(NewPriceLevel(key(p)))
	}
	if got := tree.Min().Price; !got.Equal(key("20.00")) {
		t.Errorf("expected descending Min() to be 20.00 (best bid), got %s", got)
	}
}

func TestRBTreeGetAndDelete(t *testing.T) {
	tree := NewRBTree(false)
	level := NewPriceLevel(key("7.50"))
	tree.Insert(level)

	if got := tree.Get(key("7.50")); got != level {
		t.Fatalf("expected Get to return the inserted level")
	}
	if tree.Get(key("9.99")) != nil {
		t.Error("expected Get on a missing price to return nil")
	}

	tree.Delete(key("7.50"))
	if !tree.IsEmpty() {
		t.Error("expected tree to be empty after deleting its only level")
	}
	if tree.Get(key("7.50")) != nil {
		t.Error("expected Get to return nil after deletion")
	}
}

func TestRBTreeForEachOrderingMatchesSide(t *testing.T) {
	asc := NewRBTree(false)
	desc := NewRBTree(true)
	for _, p := range []string{"3.00", "1.00", "2.00"} {
		asc.Insert(NewPriceLevel(key(p)))
		desc.Insert(NewPriceLevel(key(p)))
	}

	var ascOrder, descOrder []string
	asc.ForEach(func(l *PriceLevel) bool { ascOrder = append(ascOrder, l.Price.String()); return true })
	desc.ForEach(func(l *PriceLevel) bool { descOrder = append(descOrder, l.Price.String()); return true })

	wantAsc := []string{"1", "2", "3"}
	for i, w := range wantAsc {
		if ascOrder[i] != w {
			t.Errorf("ascending order[%d] = %s, want %s", i, ascOrder[i], w)
		}
	}
	wantDesc := []string{"3", "2", "1"}
	for i, w := range wantDesc {
		if descOrder[i] != w {
			t.Errorf("descending order[%d] = %s, want %s", i, descOrder[i], w)
		}
	}
}

func TestRBTreeForEachStopsEarly(t *testing.T) {
	tree := NewRBTree(false)
	for _, p := range []string{"1.00", "2.00", "3.00"} {
		tree.Insert(NewPriceLevel(key(p)))
	}
	var visited int
	tree.ForEach(func(l *PriceLevel) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("expected ForEach to stop after the first level, visited %d", visited)
	}
}

func TestRBTreeManyInsertsDeletesStayBalanced(t *testing.T) {
	tree := NewRBTree(false)
	var levels []decimal.Decimal
	for i := 0; i < 200; i++ {
		p := decimal.NewFromInt(int64(i))
		levels = append(levels, p)
		tree.Insert(NewPriceLevel(p))
	}
	if tree.Size() != 200 {
		t.Fatalf("expected size 200, got %d", tree.Size())
	}

	for i, p := range levels {
		if i%2 == 0 {
			tree.Delete(p)
		}
	}
	if tree.Size() != 100 {
		t.Fatalf("expected size 100 after deleting half, got %d", tree.Size())
	}
	if got := tree.Min().Price; !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected min price 1 (0 deleted), got %s", got)
	}
}
