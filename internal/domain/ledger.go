package domain

import "github.com/shopspring/decimal"

// Balance is a cash + per-asset position sub-balance, used for both the
// settled and current halves of a UserLedger (spec §3).
type Balance struct {
	Cash   decimal.Decimal
	Assets map[string]int64
}

func NewBalance() Balance {
	return Balance{Assets: make(map[string]int64)}
}

// AddAsset adds delta to the asset's net position, dropping the key if it
// nets to zero (spec §4.7 trade application step 4).
func (b *Balance) AddAsset(ticker string, delta int64) {
	if b.Assets == nil {
		b.Assets = make(map[string]int64)
	}
	b.Assets[ticker] += delta
	if b.Assets[ticker] == 0 {
		delete(b.Assets, ticker)
	}
}

// UserLedger is a principal's settled + current balances and open orders.
type UserLedger struct {
	Settled Balance
	Current Balance
	Orders  []uint64
}

func NewUserLedger() *UserLedger {
	return &UserLedger{
		Settled: NewBalance(),
		Current: NewBalance(),
	}
}

// RemoveOrder deletes id from the order-ID list, preserving order.
func (u *UserLedger) RemoveOrder(id uint64) {
	out := u.Orders[:0]
	for _, existing := range u.Orders {
		if existing != id {
			out = append(out, existing)
		}
	}
	u.Orders = out
}

// Principal is an authenticated user or service identity.
type Principal struct {
	Name     string
	Email    string
	PassHash string
	Roles    map[string]bool
}

func NewPrincipal(name string) *Principal {
	return &Principal{Name: name, Roles: map[string]bool{"user": true}}
}

func (p *Principal) HasRole(role string) bool {
	return p.Roles != nil && p.Roles[role]
}

// Payment is a recorded cash transfer (spec §4.5 Payments table).
type Payment struct {
	ID       int64
	Sender   string
	Receiver string
	Amount   decimal.Decimal
	Currency string
	Day      string
	Time     string
	Category string
}
