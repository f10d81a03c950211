package matching

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
)

func price(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestPlaceRestsWhenNoCross(t *testing.T) {
	b := NewBook("AAPL")
	buy := &domain.Order{ID: 1, Side: domain.SideBuy, Kind: domain.OrderKindLimit, Size: 100, Price: price("10.00")}

	fills := b.Place(buy)
	if len(fills) != 0 {
		t.Fatalf("expected no fills, got %d", len(fills))
	}
	if buy.Status != domain.OrderStatusNew {
		t.Errorf("expected NEW, got %s", buy.Status)
	}
	if b.MaxBid.Price == nil || !b.MaxBid.Price.Equal(*price("10.00")) {
		t.Errorf("expected best bid 10.00, got %v", b.MaxBid.Price)
	}
}

func TestPlaceMatchesAtRestingPrice(t *testing.T) {
	b := NewBook("AAPL")
	sell := &domain.Order{ID: 1, Side: domain.SideSell, Kind: domain.OrderKindLimit, Size: 50, Price: price("10.50"), Issuer: "maker"}
	b.Place(sell)

	buy := &domain.Order{ID: 2, Side: domain.SideBuy, Kind: domain.OrderKindLimit, Size: 50, Price: price("11.00"), Issuer: "taker"}
	fills := b.Place(buy)

	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	f := fills[0]
	if !f.Price.Equal(*price("10.50")) {
		t.Errorf("trade should execute at the resting price 10.50, got %s", f.Price)
	}
	if f.Size != 50 {
		t.Errorf("expected fill size 50, got %d", f.Size)
	}
	if buy.Status != domain.OrderStatusFilled || buy.Left != 0 {
		t.Errorf("taker should be fully filled, got status=%s left=%d", buy.Status, buy.Left)
	}
	if !b.IsEmpty() {
		t.Error("book should be empty after a fully matched cross")
	}
}

func TestPlacePriceTimePriority(t *testing.T) {
	b := NewBook("AAPL")
	// Two resting sells at the same price; first-in should be filled first.
	first := &domain.Order{ID: 1, Side: domain.SideSell, Kind: domain.OrderKindLimit, Size: 30, Price: price("10.00"), Issuer: "first"}
	second := &domain.Order{ID: 2, Side: domain.SideSell, Kind: domain.OrderKindLimit, Size: 30, Price: price("10.00"), Issuer: "second"}
	b.Place(first)
	b.Place(second)

	buy := &domain.Order{ID: 3, Side: domain.SideBuy, Kind: domain.OrderKindLimit, Size: 30, Price: price("10.00")}
	fills := b.Place(buy)

	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	if fills[0].BookID != first.ID {
		t.Errorf("expected the earlier resting order (%d) to fill first, got %d", first.ID, fills[0].BookID)
	}
}

func TestPlaceMarketOrderWithNoLiquidityCancels(t *testing.T) {
	b := NewBook("AAPL")
	order := &domain.Order{ID: 1, Side: domain.SideBuy, Kind: domain.OrderKindMarket, Size: 10}

	fills := b.Place(order)
	if len(fills) != 0 {
		t.Fatalf("expected no fills, got %d", len(fills))
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", order.Status)
	}
	if order.Left != order.Size {
		t.Errorf("expected Left unchanged at %d, got %d", order.Size, order.Left)
	}
}

func TestPlacePartialFillRests(t *testing.T) {
	b := NewBook("AAPL")
	sell := &domain.Order{ID: 1, Side: domain.SideSell, Kind: domain.OrderKindLimit, Size: 20, Price: price("10.00")}
	b.Place(sell)

	buy := &domain.Order{ID: 2, Side: domain.SideBuy, Kind: domain.OrderKindLimit, Size: 50, Price: price("10.00")}
	fills := b.Place(buy)

	if len(fills) != 1 || fills[0].Size != 20 {
		t.Fatalf("expected a single 20-size fill, got %+v", fills)
	}
	if buy.Status != domain.OrderStatusPartiallyFilled || buy.Left != 30 {
		t.Errorf("expected PARTIALLY_FILLED with 30 left, got status=%s left=%d", buy.Status, buy.Left)
	}
	if b.MaxBid.Price == nil || !b.MaxBid.Price.Equal(*price("10.00")) {
		t.Error("the unfilled remainder should rest as the new best bid")
	}
}

func TestDeleteRemovesRestingOrder(t *testing.T) {
	b := NewBook("AAPL")
	order := &domain.Order{ID: 1, Side: domain.SideBuy, Kind: domain.OrderKindLimit, Size: 10, Price: price("5.00")}
	b.Place(order)

	removed, ok := b.Delete(1, domain.SideBuy)
	if !ok || removed.ID != 1 {
		t.Fatalf("expected to find and remove order 1, got ok=%v removed=%v", ok, removed)
	}
	if !b.IsEmpty() {
		t.Error("book should be empty after deleting its only resting order")
	}
	if _, ok := b.Delete(1, domain.SideBuy); ok {
		t.Error("deleting an already-removed order should report not found")
	}
}

func TestCurrentPriceRequiresBothSides(t *testing.T) {
	b := NewBook("AAPL")
	if b.CurrentPrice() != nil {
		t.Error("expected nil current price with an empty book")
	}

	b.Place(&domain.Order{ID: 1, Side: domain.SideBuy, Kind: domain.OrderKindLimit, Size: 10, Price: price("9.00")})
	if b.CurrentPrice() != nil {
		t.Error("expected nil current price with only one side present")
	}

	b.Place(&domain.Order{ID: 2, Side: domain.SideSell, Kind: domain.OrderKindLimit, Size: 10, Price: price("11.00")})
	mid := b.CurrentPrice()
	if mid == nil || !mid.Equal(*price("10.00")) {
		t.Errorf("expected mid 10.00, got %v", mid)
	}
}

func TestLastAvailableFallsBackToPreviousClose(t *testing.T) {
	b := NewBook("AAPL")
	prevClose := price("8.00")
	if got := b.LastAvailableBid(prevClose); !got.Equal(*prevClose) {
		t.Errorf("expected fallback to previousClose 8.00, got %s", got)
	}
}

func TestCancelAllEmptiesBook(t *testing.T) {
	b := NewBook("AAPL")
	b.Place(&domain.Order{ID: 1, Side: domain.SideBuy, Kind: domain.OrderKindLimit, Size: 10, Price: price("9.00")})
	b.Place(&domain.Order{ID: 2, Side: domain.SideSell, Kind: domain.OrderKindLimit, Size: 10, Price: price("11.00")})

	var cancelled []uint64
	b.CancelAll(func(o *domain.Order) { cancelled = append(cancelled, o.ID) })

	if len(cancelled) != 2 {
		t.Fatalf("expected 2 cancelled orders, got %d", len(cancelled))
	}
	if !b.IsEmpty() {
		t.Error("book should be empty after CancelAll")
	}
}
