package registry

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/snapshot"
)

func p(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func TestAddMarketAndPlaceLimitOrder(t *testing.T) {
	tr := snapshot.NewTree()
	tr.AddUser("alice")
	tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")

	reg := New(tr)
	reg.AddMarket("AAPL", tr.AssetGuard("AAPL"))
	reg.Open()

	mgr, ok := reg.Market("AAPL")
	if !ok {
		t.Fatal("expected AAPL market to be registered")
	}

	order, err := mgr.PlaceLimit(domain.SideBuy, 5, p(t, "10.00"), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reg.Get(order.ID); !ok {
		t.Error("expected the order to be reachable via Get")
	}
}

func TestCancelOrderWrongIssuerIsRejected(t *testing.T) {
	tr := snapshot.NewTree()
	tr.AddUser("alice")
	tr.AddUser("bob")
	tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")

	reg := New(tr)
	reg.AddMarket("AAPL", tr.AssetGuard("AAPL"))
	reg.Open()

	mgr, _ := reg.Market("AAPL")
	order, err := mgr.PlaceLimit(domain.SideBuy, 5, p(t, "10.00"), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := reg.CancelOrder(order.ID, "bob"); err != ErrWrongIssuer {
		t.Errorf("expected ErrWrongIssuer, got %v", err)
	}
	if err := reg.CancelOrder(order.ID, "alice"); err != nil {
		t.Errorf("expected the real issuer's cancel to succeed, got %v", err)
	}
	if _, ok := reg.Get(order.ID); ok {
		t.Error("expected the order to be gone after a successful cancel")
	}
}

func TestCancelOrderUnknownID(t *testing.T) {
	tr := snapshot.NewTree()
	reg := New(tr)
	if err := reg.CancelOrder(999, "alice"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRenameMarketMovesManager(t *testing.T) {
	tr := snapshot.NewTree()
	tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")
	reg := New(tr)
	mgr := reg.AddMarket("AAPL", tr.AssetGuard("AAPL"))

	reg.RenameMarket("AAPL", "AAPL2")
	if _, ok := reg.Market("AAPL"); ok {
		t.Error("expected the old ticker to be gone")
	}
	got, ok := reg.Market("AAPL2")
	if !ok || got != mgr {
		t.Error("expected the same manager reachable under the new ticker")
	}
}

func TestRemoveMarketDropsManager(t *testing.T) {
	tr := snapshot.NewTree()
	tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")
	reg := New(tr)
	reg.AddMarket("AAPL", tr.AssetGuard("AAPL"))
	reg.RemoveMarket("AAPL")
	if _, ok := reg.Market("AAPL"); ok {
		t.Error("expected the market to be removed")
	}
}

func TestOpenReplaysPersistedOrders(t *testing.T) {
	tr := snapshot.NewTree()
	tr.AddUser("alice")
	tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")
	tr.AddOrder(&domain.Order{
		ID: 7, Kind: domain.OrderKindLimit, Side: domain.SideBuy,
		Instrument: "AAPL", Issuer: "alice", Size: 3, Left: 3,
		Price: func() *decimal.Decimal { d := p(t, "10.00"); return &d }(),
		Status: domain.OrderStatusNew,
	})

	reg := New(tr)
	reg.Open()

	if _, ok := reg.Market("AAPL"); !ok {
		t.Fatal("expected Open to have created the AAPL market")
	}
	if _, ok := reg.Get(7); !ok {
		t.Error("expected the replayed order to be registered live")
	}

	// The allocator must be seeded past the highest replayed ID.
	mgr, _ := reg.Market("AAPL")
	fresh, err := mgr.PlaceLimit(domain.SideSell, 1, p(t, "10.00"), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh.ID <= 7 {
		t.Errorf("expected a freshly allocated ID greater than the replayed 7, got %d", fresh.ID)
	}
}

func TestMarketsReturnsAllRegisteredTickers(t *testing.T) {
	tr := snapshot.NewTree()
	tr.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")
	tr.AddAsset("MSFT", domain.AssetClass("EQUITY"), "issuer1")
	reg := New(tr)
	reg.AddMarket("AAPL", tr.AssetGuard("AAPL"))
	reg.AddMarket("MSFT", tr.AssetGuard("MSFT"))

	markets := reg.Markets()
	if len(markets) != 2 {
		t.Errorf("expected 2 markets, got %d", len(markets))
	}
}
