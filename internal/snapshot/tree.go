// Package snapshot holds the exchange's durable state tree (spec §4.3):
// users, assets, asset classes, and orders. Each user ledger, principal
// and asset has its own guard; the asset-class index, the order map and
// the open date are covered only by the tree's own lock. Serialization
// holds that lock's read side for the whole save, so registering or
// removing an entry waits until the save finishes.
//
// Grounded on original_source/src/exdb.py's ExchangeDatabase (the same
// four top-level indices: usersByName, assetsByTicker, assetsByClass,
// ordersById, plus openDate), restructured around internal/guard's
// typed Guard[T] instead of ObjectLock-wrapped dicts.
package snapshot

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/guard"
)

// Tree is the full exchange state. Tree.mu protects the top-level maps
// (registration/removal of a user, asset, or order) along with
// AssetsByClass, Orders and OpenDate; mutation of an existing user,
// principal or asset goes through that entity's own Guard.
type Tree struct {
	mu sync.RWMutex

	Users         map[string]*guard.Guard[domain.UserLedger]
	Principals    map[string]*guard.Guard[domain.Principal]
	Assets        map[string]*guard.Guard[domain.Asset]
	AssetsByClass map[string][]string
	Orders        map[uint64]*domain.Order
	OpenDate      string
}

func NewTree() *Tree {
	return &Tree{
		Users:         make(map[string]*guard.Guard[domain.UserLedger]),
		Principals:    make(map[string]*guard.Guard[domain.Principal]),
		Assets:        make(map[string]*guard.Guard[domain.Asset]),
		AssetsByClass: make(map[string][]string),
		Orders:        make(map[uint64]*domain.Order),
	}
}

// AddUser registers name with a fresh ledger and principal, if absent.
// Returns false if the name is already taken.
func (t *Tree) AddUser(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.Users[name]; ok {
		return false
	}
	t.Users[name] = guard.New(*domain.NewUserLedger())
	t.Principals[name] = guard.New(*domain.NewPrincipal(name))
	return true
}

// WithUser runs fn with the named user's ledger, returning false if the
// user doesn't exist.
func (t *Tree) WithUser(name string, fn func(*domain.UserLedger)) bool {
	t.mu.RLock()
	g, ok := t.Users[name]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	g.With(fn)
	return true
}

// WithPrincipal runs fn with the named principal, returning false if
// the user doesn't exist.
func (t *Tree) WithPrincipal(name string, fn func(*domain.Principal)) bool {
	t.mu.RLock()
	g, ok := t.Principals[name]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	g.With(fn)
	return true
}

// RenameUser moves a user's ledger and principal to a new name (spec §6
// supplemented chname cascade); returns false if from is absent or to
// is taken.
func (t *Tree) RenameUser(from, to string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	userG, ok := t.Users[from]
	if !ok {
		return false
	}
	if _, taken := t.Users[to]; taken {
		return false
	}
	principalG := t.Principals[from]

	delete(t.Users, from)
	delete(t.Principals, from)
	t.Users[to] = userG
	t.Principals[to] = principalG
	principalG.With(func(p *domain.Principal) { p.Name = to })
	return true
}

// AddAsset registers a new tradable instrument, if ticker is unused.
func (t *Tree) AddAsset(ticker string, class domain.AssetClass, issuer string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.Assets[ticker]; ok {
		return false
	}
	t.Assets[ticker] = guard.New(*domain.NewAsset(ticker, class, issuer))
	t.AssetsByClass[string(class)] = append(t.AssetsByClass[string(class)], ticker)
	return true
}

// WithAsset runs fn with the named asset, returning false if unknown.
func (t *Tree) WithAsset(ticker string, fn func(*domain.Asset)) bool {
	t.mu.RLock()
	g, ok := t.Assets[ticker]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	g.With(fn)
	return true
}

// AssetGuard exposes the raw guard for a ticker, used by market.Manager
// which needs to hold it across multiple operations. Returns nil if
// unknown.
func (t *Tree) AssetGuard(ticker string) *guard.Guard[domain.Asset] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Assets[ticker]
}

// RemoveAsset deletes ticker from both indices (spec §4.7 close with
// delete=true).
func (t *Tree) RemoveAsset(ticker string, class domain.AssetClass) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.Assets, ticker)
	list := t.AssetsByClass[string(class)]
	out := list[:0]
	for _, tk := range list {
		if tk != ticker {
			out = append(out, tk)
		}
	}
	t.AssetsByClass[string(class)] = out
}

// RenameTicker moves an asset entry to a new ticker symbol (spec §6
// supplemented chticker cascade).
func (t *Tree) RenameTicker(from, to string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.Assets[from]
	if !ok {
		return false
	}
	if _, taken := t.Assets[to]; taken {
		return false
	}
	delete(t.Assets, from)
	t.Assets[to] = g
	g.With(func(a *domain.Asset) { a.Ticker = to })
	return true
}

// Ticker listing, used by settlement/scheduler rollover passes.
func (t *Tree) Tickers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.Assets))
	for tk := range t.Assets {
		out = append(out, tk)
	}
	return out
}

// ClassTickers returns every asset class paired with its sorted ticker
// list (spec §4.11 `market`/`marketposition`, which iterate classes in
// sorted order).
func (t *Tree) ClassTickers() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]string, len(t.AssetsByClass))
	for class, list := range t.AssetsByClass {
		cp := make([]string, len(list))
		copy(cp, list)
		sort.Strings(cp)
		out[class] = cp
	}
	return out
}

func (t *Tree) Usernames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.Users))
	for name := range t.Users {
		out = append(out, name)
	}
	return out
}

// GetOpenDate returns the exchange's currently open trading date.
func (t *Tree) GetOpenDate() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.OpenDate
}

// SetOpenDate advances the exchange's open trading date (spec §4.9
// phase 3).
func (t *Tree) SetOpenDate(date string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.OpenDate = date
}

// AddOrder/RemoveOrder/GetOrder implement the registry's persisted
// orders-by-ID map (spec §4.8).
func (t *Tree) AddOrder(order *domain.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Orders[order.ID] = order
}

func (t *Tree) RemoveOrder(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.Orders, id)
}

func (t *Tree) GetOrder(id uint64) (*domain.Order, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.Orders[id]
	return o, ok
}

// OrdersSnapshot returns every persisted order, ordered by ID — used
// only by the registry's startup replay (spec §4.8).
func (t *Tree) OrdersSnapshot() []*domain.Order {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*domain.Order, 0, len(t.Orders))
	for _, o := range t.Orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// treeAlias mirrors Tree's exported fields for JSON (de)serialization
// without recursing into Tree's own Marshal/UnmarshalJSON.
type treeAlias struct {
	Users         map[string]*guard.Guard[domain.UserLedger] `json:"users"`
	Principals    map[string]*guard.Guard[domain.Principal]  `json:"principals"`
	Assets        map[string]*guard.Guard[domain.Asset]      `json:"assets"`
	AssetsByClass map[string][]string                        `json:"assetsByClass"`
	Orders        map[uint64]*domain.Order                   `json:"orders"`
	OpenDate      string                                      `json:"openDate"`
}

// MarshalJSON takes the tree's map-level lock (spec §4.3: "save must be
// reentrant-safe against concurrent mutation of guarded sub-trees: each
// guard is taken in turn while serializing its sub-tree" — the RLock
// here only protects iteration of the maps themselves; each entity's
// own Guard[T].MarshalJSON takes that entity's lock as it is reached).
func (t *Tree) MarshalJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return json.Marshal(treeAlias{
		Users:         t.Users,
		Principals:    t.Principals,
		Assets:        t.Assets,
		AssetsByClass: t.AssetsByClass,
		Orders:        t.Orders,
		OpenDate:      t.OpenDate,
	})
}

func (t *Tree) UnmarshalJSON(data []byte) error {
	var a treeAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Users = a.Users
	t.Principals = a.Principals
	t.Assets = a.Assets
	t.AssetsByClass = a.AssetsByClass
	t.Orders = a.Orders
	t.OpenDate = a.OpenDate
	if t.Users == nil {
		t.Users = make(map[string]*guard.Guard[domain.UserLedger])
	}
	if t.Principals == nil {
		t.Principals = make(map[string]*guard.Guard[domain.Principal])
	}
	if t.Assets == nil {
		t.Assets = make(map[string]*guard.Guard[domain.Asset])
	}
	if t.AssetsByClass == nil {
		t.AssetsByClass = make(map[string][]string)
	}
	if t.Orders == nil {
		t.Orders = make(map[uint64]*domain.Order)
	}
	return nil
}
