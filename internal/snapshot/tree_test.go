package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
)

func TestAddUserIsIdempotent(t *testing.T) {
	tr := NewTree()
	if !tr.AddUser("alice") {
		t.Fatal("expected the first AddUser to succeed")
	}
	if tr.AddUser("alice") {
		t.Error("expected a duplicate AddUser to fail")
	}
}

func TestWithUserMutatesLedger(t *testing.T) {
	tr := NewTree()
	tr.AddUser("alice")
	ok := tr.WithUser("alice", func(u *domain.UserLedger) {
		u.Current.Cash = u.Current.Cash.Add(decimal.NewFromInt(10))
	})
	if !ok {
		t.Fatal("expected WithUser to find alice")
	}
	var cash decimal.Decimal
	tr.WithUser("alice", func(u *domain.UserLedger) { cash = u.Current.Cash })
	if !cash.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected alice's current cash to be 10 after the mutation, got %s", cash)
	}
	if tr.WithUser("ghost", func(u *domain.UserLedger) {}) {
		t.Error("expected WithUser to fail for an unknown user")
	}
}

func TestRenameUserMovesLedgerAndPrincipal(t *testing.T) {
	tr := NewTree()
	tr.AddUser("alice")
	if !tr.RenameUser("alice", "alicia") {
		t.Fatal("expected rename to succeed")
	}
	if tr.WithUser("alice", func(u *domain.UserLedger) {}) {
		t.Error("expected the old name to be gone")
	}
	found := false
	tr.WithPrincipal("alicia", func(p *domain.Principal) {
		found = true
		if p.Name != "alicia" {
			t.Errorf("expected principal name updated to alicia, got %q", p.Name)
		}
	})
	if !found {
		t.Error("expected the renamed principal to be reachable under the new name")
	}
}

func TestRenameUserFailsWhenTargetTaken(t *testing.T) {
	tr := NewTree()
	tr.AddUser("alice")
	tr.AddUser("bob")
	if tr.RenameUser("alice", "bob") {
		t.Error("expected rename to fail when the target name is taken")
	}
}

func TestAddAssetIndexesByClass(t *testing.T) {
	tr := NewTree()
	if !tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1") {
		t.Fatal("expected AddAsset to succeed")
	}
	if tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1") {
		t.Error("expected a duplicate ticker to fail")
	}
	classes := tr.ClassTickers()
	if got := classes["EQUITY"]; len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("expected [AAPL] under EQUITY, got %v", got)
	}
}

func TestRemoveAssetDropsFromBothIndices(t *testing.T) {
	tr := NewTree()
	tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")
	tr.RemoveAsset("AAPL", domain.AssetClass("EQUITY"))
	if tr.AssetGuard("AAPL") != nil {
		t.Error("expected the asset guard to be gone")
	}
	if got := tr.ClassTickers()["EQUITY"]; len(got) != 0 {
		t.Errorf("expected no tickers left under EQUITY, got %v", got)
	}
}

func TestRenameTickerMovesAssetAndUpdatesTicker(t *testing.T) {
	tr := NewTree()
	tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")
	if !tr.RenameTicker("AAPL", "AAPL2") {
		t.Fatal("expected rename to succeed")
	}
	if tr.AssetGuard("AAPL") != nil {
		t.Error("expected the old ticker to be gone")
	}
	g := tr.AssetGuard("AAPL2")
	if g == nil {
		t.Fatal("expected the new ticker to resolve")
	}
	if (*g.Peek()).Ticker != "AAPL2" {
		t.Errorf("expected the asset's own Ticker field updated, got %q", (*g.Peek()).Ticker)
	}
}

func TestOrderLifecycle(t *testing.T) {
	tr := NewTree()
	order := &domain.Order{ID: 1, Issuer: "alice"}
	tr.AddOrder(order)

	if got, ok := tr.GetOrder(1); !ok || got.ID != 1 {
		t.Fatalf("expected to find order 1, got %v, %v", got, ok)
	}
	if len(tr.OrdersSnapshot()) != 1 {
		t.Errorf("expected one order in the snapshot, got %d", len(tr.OrdersSnapshot()))
	}

	tr.RemoveOrder(1)
	if _, ok := tr.GetOrder(1); ok {
		t.Error("expected the order to be gone after RemoveOrder")
	}
}

func TestOpenDateRoundTrip(t *testing.T) {
	tr := NewTree()
	if tr.GetOpenDate() != "" {
		t.Errorf("expected an empty open date by default, got %q", tr.GetOpenDate())
	}
	tr.SetOpenDate("2026-07-30")
	if tr.GetOpenDate() != "2026-07-30" {
		t.Errorf("expected 2026-07-30, got %q", tr.GetOpenDate())
	}
}

func TestTreeMarshalUnmarshalRoundTrip(t *testing.T) {
	tr := NewTree()
	tr.AddUser("alice")
	tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")
	tr.AddOrder(&domain.Order{ID: 1, Issuer: "alice"})
	tr.SetOpenDate("2026-07-30")

	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out := NewTree()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.GetOpenDate() != "2026-07-30" {
		t.Errorf("expected open date preserved, got %q", out.GetOpenDate())
	}
	if !out.WithUser("alice", func(u *domain.UserLedger) {}) {
		t.Error("expected alice to round-trip")
	}
	if out.AssetGuard("AAPL") == nil {
		t.Error("expected AAPL to round-trip")
	}
	if _, ok := out.GetOrder(1); !ok {
		t.Error("expected order 1 to round-trip")
	}
}
