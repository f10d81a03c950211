// Package registry implements the global registry (spec §4.8):
// markets-by-ticker, orders-by-ID, the order ID allocator, and the
// startup replay that reconstructs every book from the persisted
// orders-by-ID map.
//
// Grounded on the teacher's internal/matching/engine.go (AddSymbol /
// NextOrderID atomic counter — here generalized to a guarded counter
// since replay must *set* the allocator to an arbitrary seen ID, not
// only increment it) combined with original_source/src/global_market.py
// (next_order_index, add_order/remove_order, the startup replay loop
// that treats the persisted order rows as ground truth and rebuilds
// books by replaying them through add_limit_order/add_market_order).
package registry

import (
	"fmt"
	"sync"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/guard"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/market"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/snapshot"
)

// allocator is a guarded monotonically-advancing order-ID counter.
type allocator struct {
	mu   sync.Mutex
	next uint64
}

func (a *allocator) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return a.next
}

// setFloor advances the allocator so the next Next() call returns at
// least floor+1, without ever moving it backwards.
func (a *allocator) setFloor(floor uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if floor > a.next {
		a.next = floor
	}
}

// Registry is the singleton holding every instrument's market.Manager,
// the live order map, and the ID allocator.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*market.Manager

	orders sync.Map // uint64 -> *domain.Order

	ids   *allocator
	tree  *snapshot.Tree
	ready bool
}

func New(tree *snapshot.Tree) *Registry {
	return &Registry{
		markets: make(map[string]*market.Manager),
		ids:     &allocator{},
		tree:    tree,
	}
}

// Register installs order into the live map and, once the registry is
// ready (i.e. not still replaying at startup), persists a row into the
// snapshot tree and the owning user's order list (spec §4.8 add_order).
func (r *Registry) Register(order *domain.Order) {
	r.orders.Store(order.ID, order)
	r.mu.RLock()
	ready := r.ready
	r.mu.RUnlock()
	if !ready {
		return
	}
	r.tree.AddOrder(order)
	r.tree.WithUser(order.Issuer, func(u *domain.UserLedger) {
		u.Orders = append(u.Orders, order.ID)
	})
}

// Unregister undoes Register: drops order from the live map, the
// snapshot tree, and the issuer's order list (spec §4.8 remove_order).
func (r *Registry) Unregister(order *domain.Order) {
	r.orders.Delete(order.ID)
	r.tree.RemoveOrder(order.ID)
	r.tree.WithUser(order.Issuer, func(u *domain.UserLedger) {
		u.RemoveOrder(order.ID)
	})
}

// Get looks up a live order by ID.
func (r *Registry) Get(id uint64) (*domain.Order, bool) {
	v, ok := r.orders.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*domain.Order), true
}

// CancelOrder authorizes and delegates a cancel (spec §4.8
// cancel_order): -1 not found, -2 wrong issuer, nil success.
func (r *Registry) CancelOrder(id uint64, issuer string) error {
	order, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	if order.Issuer != issuer {
		return ErrWrongIssuer
	}
	mgr, ok := r.Market(order.Instrument)
	if !ok {
		return ErrNotFound
	}
	return mgr.Cancel(order)
}

var (
	ErrNotFound    = fmt.Errorf("registry: order not found")
	ErrWrongIssuer = fmt.Errorf("registry: caller is not the order's issuer")
)

// AddMarket installs a fresh market.Manager for ticker, wired to this
// registry's allocator, order store, and the snapshot tree's user
// ledgers.
func (r *Registry) AddMarket(ticker string, asset *guard.Guard[domain.Asset]) *market.Manager {
	mgr := market.NewManager(ticker, asset, r.ids, r, r.tree)
	r.mu.Lock()
	r.markets[ticker] = mgr
	r.mu.Unlock()
	return mgr
}

// RemoveMarket drops a ticker's manager (spec §4.7 close with delete).
func (r *Registry) RemoveMarket(ticker string) {
	r.mu.Lock()
	delete(r.markets, ticker)
	r.mu.Unlock()
}

// RenameMarket moves a manager to a new ticker key (spec §6 chticker).
func (r *Registry) RenameMarket(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mgr, ok := r.markets[from]; ok {
		delete(r.markets, from)
		r.markets[to] = mgr
	}
}

// Market looks up the manager for ticker.
func (r *Registry) Market(ticker string) (*market.Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mgr, ok := r.markets[ticker]
	return mgr, ok
}

// Markets returns every registered ticker's manager.
func (r *Registry) Markets() map[string]*market.Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*market.Manager, len(r.markets))
	for k, v := range r.markets {
		out[k] = v
	}
	return out
}

// Open rebuilds the registry from the snapshot tree at startup (spec
// §4.8): for each instrument, reset its depth-by-price map and create a
// market manager if none is registered yet (an existing manager is
// kept); then for each persisted order row, set the allocator
// to row.ID-1 and replay it through the matching order-placement path
// so books and top-of-book are recomputed from scratch — the on-disk
// orders map is the durable ground truth, not the book state itself.
// Finally the allocator is set to the highest seen ID and ready is set.
func (r *Registry) Open() {
	for _, ticker := range r.tree.Tickers() {
		g := r.tree.AssetGuard(ticker)
		g.With(func(a *domain.Asset) {
			a.Quote.DepthBid = make(map[string]int64)
			a.Quote.DepthAsk = make(map[string]int64)
		})
		if _, ok := r.Market(ticker); !ok {
			r.AddMarket(ticker, g)
		}
	}

	var highest uint64
	for _, order := range r.tree.OrdersSnapshot() {
		if order.ID > 0 {
			r.ids.setFloor(order.ID - 1)
		}
		r.replay(order)
		if order.ID > highest {
			highest = order.ID
		}
	}
	r.ids.setFloor(highest)

	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
}

// replay re-places a persisted order exactly as it was originally
// submitted, preserving its original ID.
func (r *Registry) replay(order *domain.Order) {
	mgr, ok := r.Market(order.Instrument)
	if !ok {
		return
	}
	_, _ = mgr.Replay(order)
}
