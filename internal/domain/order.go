// Package domain defines the core value types shared by the matching,
// market, registry, settlement, and session packages: orders, fills,
// trades, assets, ledgers, credits, and principals.
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the side of an order (buy or sell).
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind distinguishes limit orders (rest in the book if they don't
// cross) from market orders (consume liquidity at whatever price exists).
type OrderKind int

const (
	OrderKindLimit OrderKind = iota
	OrderKindMarket
)

func (k OrderKind) String() string {
	if k == OrderKindMarket {
		return "MARKET"
	}
	return "LIMIT"
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus int

const (
	OrderStatusNew OrderStatus = iota
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "NEW"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Order is a single resting or transient order in the matching layer.
//
// Price is nil for market orders. Size is the remaining book size, mutated
// during matching; Left is the unfilled portion of the order as observed
// by the incoming (taker) side of a single matching call — see spec §3.
type Order struct {
	ID         uint64
	Kind       OrderKind
	Side       Side
	Instrument string
	Issuer     string
	Size       int64
	Left       int64
	Price      *decimal.Decimal
	FillCost   decimal.Decimal
	Status     OrderStatus
}

// IsActive reports whether the order can still be matched or cancelled.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}

func (o *Order) String() string {
	price := "MKT"
	if o.Price != nil {
		price = o.Price.String()
	}
	return fmt.Sprintf("Order{ID:%d %s %s %s size=%d left=%d price=%s status=%s}",
		o.ID, o.Side, o.Kind, o.Instrument, o.Size, o.Left, price, o.Status)
}

// Fill is a single execution produced by matching an incoming order
// against a resting order.
type Fill struct {
	TradeID        uint64
	IncomingID     uint64
	BookID         uint64
	Side           Side // side of the taker (incoming order)
	Price          decimal.Decimal
	Size           int64
	Instrument     string
	IncomingIssuer string
	BookIssuer     string
}

// ExecutionResult is the outcome of placing an order into the book.
type ExecutionResult struct {
	Order *Order
	Fills []Fill
}
