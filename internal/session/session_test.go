package session

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/auth"
	creditstore "github.com/Alessandro-Salerno/NSE-Market-System/internal/credit"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
	historystore "github.com/Alessandro-Salerno/NSE-Market-System/internal/history"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/protocol"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/registry"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/snapshot"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

// newTestSession wires a Session directly against real components,
// bypassing the transport/network layer entirely.
func newTestSession(t *testing.T, principal string) (*Session, *snapshot.Tree, *registry.Registry) {
	t.Helper()
	tree := snapshot.NewTree()
	reg := registry.New(tree)
	authStore := auth.NewStore(tree)

	credits, err := creditstore.Open(filepath.Join(t.TempDir(), "credit.db"))
	if err != nil {
		t.Fatalf("open credit store: %v", err)
	}
	t.Cleanup(func() { credits.Close() })

	hist, err := historystore.Open(filepath.Join(t.TempDir(), "history.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	if err := authStore.Signup(principal, principal+"@example.com", "password"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	s := &Session{
		deps: Deps{
			Tree:            tree,
			Registry:        reg,
			Auth:            authStore,
			History:         hist,
			Credits:         credits,
			Logger:          zap.NewNop(),
			ProtocolVersion: protocol.ProtocolVersion,
		},
		principal: principal,
	}
	return s, tree, reg
}

func cmd(name string, privileged bool, args ...string) *protocol.Command {
	return &protocol.Command{Name: name, Args: args, Privileged: privileged}
}

func TestDispatchLocalCommandIsRejected(t *testing.T) {
	s, _, _ := newTestSession(t, "alice")
	reply := s.dispatch(&protocol.Command{Name: "connect", Local: true})
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Code != protocol.CodeExc {
		t.Fatalf("expected EXC for a local command reaching the server, got %+v", reply)
	}
}

func TestDispatchUnknownCommandIsExc(t *testing.T) {
	s, _, _ := newTestSession(t, "alice")
	reply := s.dispatch(cmd("bogus", false))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Code != protocol.CodeExc {
		t.Fatalf("expected EXC for an unknown command, got %+v", reply)
	}
}

func TestDispatchArityMismatchIsExc(t *testing.T) {
	s, _, _ := newTestSession(t, "alice")
	reply := s.dispatch(cmd("whoami", false, "extra"))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Code != protocol.CodeExc {
		t.Fatalf("expected EXC for an arg-count mismatch, got %+v", reply)
	}
}

func TestDispatchPrivilegedCommandDeniedWithoutAdminRole(t *testing.T) {
	s, _, _ := newTestSession(t, "alice")
	reply := s.dispatch(cmd("stop", true))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Code != protocol.CodeDeny {
		t.Fatalf("expected DENY for a privileged command from a non-admin, got %+v", reply)
	}
}

func TestDispatchPrivilegedCommandAllowedWithAdminRole(t *testing.T) {
	s, _, _ := newTestSession(t, "root")
	if err := s.deps.Auth.AddRole("root", "admin"); err != nil {
		t.Fatalf("add role: %v", err)
	}
	reply := s.dispatch(cmd("stop", true))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Mode != protocol.StatusOK {
		t.Fatalf("expected OK for an admin running a privileged command, got %+v", reply)
	}
}

func TestDispatchRecoversFromPanickingHandler(t *testing.T) {
	s, _, _ := newTestSession(t, "root")
	if err := s.deps.Auth.AddRole("root", "admin"); err != nil {
		t.Fatalf("add role: %v", err)
	}

	spec := commandSpec{0, 0, func(*Session, *protocol.Command) (interface{}, error) {
		panic("boom")
	}}
	reply := s.invoke(spec, cmd("panics", true))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Code != protocol.CodeExc {
		t.Fatalf("expected a panicking handler to be reported as EXC, got %+v", reply)
	}
}

func TestCmdWhoami(t *testing.T) {
	s, _, _ := newTestSession(t, "alice")
	reply := s.dispatch(cmd("whoami", false))
	val, ok := reply.(protocol.ValueMessage)
	if !ok || val.Value != "alice" {
		t.Fatalf("expected a VALUE reply naming alice, got %+v", reply)
	}
}

func TestCmdBalanceReturnsMultiOfSettledAndCurrent(t *testing.T) {
	s, tree, _ := newTestSession(t, "alice")
	tree.WithUser("alice", func(u *domain.UserLedger) {
		u.Settled.Cash = dec(t, "100")
		u.Current.Cash = dec(t, "5")
	})

	reply := s.dispatch(cmd("balance", false))
	multi, ok := reply.(protocol.MultiMessage)
	if !ok || len(multi.Messages) != 2 {
		t.Fatalf("expected a two-part MULTI reply, got %+v", reply)
	}
}

func TestCmdDeleteOrderUnknownID(t *testing.T) {
	s, _, _ := newTestSession(t, "alice")
	reply := s.dispatch(cmd("deleteorder", false, "999"))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Code != protocol.CodeDeny {
		t.Fatalf("expected DENY for an unknown order id, got %+v", reply)
	}
	if errno, _ := status.Message["errno"].(int); errno != -1 {
		t.Errorf("expected errno -1 for a not-found order, got %v", status.Message["errno"])
	}
}

func TestCmdDeleteOrderWrongIssuer(t *testing.T) {
	s, tree, reg := newTestSession(t, "alice")
	tree.AddUser("bob")
	tree.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")
	mgr := reg.AddMarket("AAPL", tree.AssetGuard("AAPL"))
	reg.Open()

	order, err := mgr.PlaceLimit(domain.SideBuy, 5, dec(t, "10.00"), "bob")
	if err != nil {
		t.Fatalf("place limit: %v", err)
	}

	reply := s.dispatch(cmd("deleteorder", false, itoa(order.ID)))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Code != protocol.CodeDeny {
		t.Fatalf("expected DENY when cancelling someone else's order, got %+v", reply)
	}
	if errno, _ := status.Message["errno"].(int); errno != -2 {
		t.Errorf("expected errno -2 for a wrong-issuer cancel, got %v", status.Message["errno"])
	}
}

func TestCmdDeleteOrderSuccess(t *testing.T) {
	s, tree, reg := newTestSession(t, "alice")
	tree.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")
	mgr := reg.AddMarket("AAPL", tree.AssetGuard("AAPL"))
	reg.Open()

	order, err := mgr.PlaceLimit(domain.SideBuy, 5, dec(t, "10.00"), "alice")
	if err != nil {
		t.Fatalf("place limit: %v", err)
	}

	reply := s.dispatch(cmd("deleteorder", false, itoa(order.ID)))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Mode != protocol.StatusOK {
		t.Fatalf("expected OK when cancelling one's own order, got %+v", reply)
	}
	if _, ok := reg.Get(order.ID); ok {
		t.Error("expected the order to be gone from the registry after deletion")
	}
}

func TestCmdBuyLimitThenSellLimitCross(t *testing.T) {
	s, tree, reg := newTestSession(t, "alice")
	tree.AddUser("bob")
	tree.AddAsset("AAPL", domain.AssetClass("EQUITY"), "issuer1")
	reg.AddMarket("AAPL", tree.AssetGuard("AAPL"))
	reg.Open()

	reply := s.dispatch(cmd("buylimit", false, "AAPL", "10", "20.00"))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Mode != protocol.StatusOK {
		t.Fatalf("expected OK for a resting buy limit, got %+v", reply)
	}
	if filled, _ := status.Message["filled"].(int64); filled != 0 {
		t.Errorf("expected no fill on a resting order with no counterparty, got %v", status.Message["filled"])
	}

	seller := &Session{deps: s.deps, principal: "bob"}
	reply = seller.dispatch(cmd("selllimit", false, "AAPL", "10", "20.00"))
	status, ok = reply.(protocol.StatusMessage)
	if !ok || status.Mode != protocol.StatusOK {
		t.Fatalf("expected OK for the crossing sell limit, got %+v", reply)
	}
	if filled, _ := status.Message["filled"].(int64); filled != 10 {
		t.Errorf("expected the crossing sell to be fully filled, got %v", status.Message["filled"])
	}
}

func TestCmdAddTickerAndSetBalAdmin(t *testing.T) {
	s, tree, _ := newTestSession(t, "root")
	if err := s.deps.Auth.AddRole("root", "admin"); err != nil {
		t.Fatalf("add role: %v", err)
	}

	reply := s.dispatch(cmd("addticker", true, "MSFT", "equity"))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Mode != protocol.StatusOK {
		t.Fatalf("expected OK creating a new ticker, got %+v", reply)
	}
	if _, ok := s.deps.Registry.Market("MSFT"); !ok {
		t.Error("expected a market manager to exist for the new ticker")
	}

	tree.AddUser("alice")
	reply = s.dispatch(cmd("setbal", true, "alice", "500"))
	status, ok = reply.(protocol.StatusMessage)
	if !ok || status.Mode != protocol.StatusOK {
		t.Fatalf("expected OK setting a balance, got %+v", reply)
	}
	tree.WithUser("alice", func(u *domain.UserLedger) {
		if !u.Settled.Cash.Equal(dec(t, "500")) {
			t.Errorf("expected settled cash 500, got %s", u.Settled.Cash)
		}
	})
}

func TestCmdSetBalUnknownUser(t *testing.T) {
	s, _, _ := newTestSession(t, "root")
	if err := s.deps.Auth.AddRole("root", "admin"); err != nil {
		t.Fatalf("add role: %v", err)
	}
	reply := s.dispatch(cmd("setbal", true, "ghost", "100"))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Code != protocol.CodeBad {
		t.Fatalf("expected BAD for an unknown user, got %+v", reply)
	}
}

func TestCmdStop(t *testing.T) {
	s, _, _ := newTestSession(t, "root")
	if err := s.deps.Auth.AddRole("root", "admin"); err != nil {
		t.Fatalf("add role: %v", err)
	}

	called := make(chan struct{}, 1)
	s.deps.Shutdown = func() { called <- struct{}{} }

	reply := s.dispatch(cmd("stop", true))
	status, ok := reply.(protocol.StatusMessage)
	if !ok || status.Mode != protocol.StatusOK {
		t.Fatalf("expected OK acknowledging shutdown, got %+v", reply)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Error("expected Shutdown to be invoked")
	}
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}
