// Package matching implements the per-instrument matching layer (spec
// §4.6): a live order book backed by two price-ordered red-black trees
// (internal/orderbook), producing trades in strict price-time priority
// and maintaining the four derived top-of-book quantities every market
// manager reads to update quotes.
//
// Grounded on the teacher's internal/matching/engine.go, generalized
// from int64-cents prices to decimal.Decimal and reworked so that the
// top-of-book is always derived live from the red-black tree rather
// than tracked as a separately-debited counter: the original engine
// (and the Python predecessor it is adapted from) keeps max_bid_size/
// min_offer_size as a cache that is debited optimistically during a
// match and only recomputed from the tree once it goes non-positive.
// Since our tree is always consistent, recomputeSide/sanitize below
// just re-derive the top from the tree on demand; they are kept as
// named operations (spec §4.6) rather than inlined, so the call sites
// documented in the spec (after place, after delete) are still visible
// in the code.
package matching

import (
	"github.com/shopspring/decimal"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/orderbook"
)

// Book is the resting-order state for one instrument. It is not
// goroutine-safe by itself; callers hold the owning market.Manager's
// engine guard for the duration of any operation.
type Book struct {
	Instrument string

	bids *orderbook.RBTree // descending: best bid is the highest price
	asks *orderbook.RBTree // ascending: best ask is the lowest price

	nodes map[uint64]*orderbook.OrderNode

	MaxBid   domain.TopOfBook
	MinOffer domain.TopOfBook

	lastBid *decimal.Decimal
	lastAsk *decimal.Decimal

	nextTradeID uint64
}

func NewBook(instrument string) *Book {
	return &Book{
		Instrument: instrument,
		bids:       orderbook.NewRBTree(true),
		asks:       orderbook.NewRBTree(false),
		nodes:      make(map[uint64]*orderbook.OrderNode),
	}
}

func (b *Book) treeFor(side domain.Side) *orderbook.RBTree {
	if side == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

// Place runs order against the book (spec §4.6 place). order.Left is
// initialized to order.Size. It returns the trades produced, in strict
// price-time order, and leaves order.Status/Left reflecting the
// outcome: Filled, PartiallyFilled-and-resting (limit only), New (limit,
// unmatched, resting), or PartiallyFilled/Cancelled for a market order
// whose remainder found no liquidity (market orders never rest).
func (b *Book) Place(order *domain.Order) []domain.Fill {
	order.Left = order.Size

	opposite := b.treeFor(order.Side.Opposite())
	var fills []domain.Fill

	for order.Left > 0 {
		level := opposite.Min()
		if level == nil || level.IsEmpty() {
			break
		}
		if order.Kind == domain.OrderKindLimit && !b.crosses(order, level.Price) {
			break
		}
		fills = append(fills, b.consumeLevel(order, level)...)
	}

	b.recomputeSide(order.Side.Opposite())

	switch {
	case order.Left == 0:
		order.Status = domain.OrderStatusFilled
	case order.Kind == domain.OrderKindLimit:
		if order.Left == order.Size {
			order.Status = domain.OrderStatusNew
		} else {
			order.Status = domain.OrderStatusPartiallyFilled
		}
		b.rest(order)
	default: // market order, residual size: no resting, liquidity exhausted
		if order.Left == order.Size {
			order.Status = domain.OrderStatusCancelled
		} else {
			order.Status = domain.OrderStatusPartiallyFilled
		}
	}

	return fills
}

// crosses reports whether order (a limit order) crosses the given
// opposite-side price.
func (b *Book) crosses(order *domain.Order, opposite decimal.Decimal) bool {
	if order.Price == nil {
		return true
	}
	if order.Side == domain.SideBuy {
		return order.Price.GreaterThanOrEqual(opposite)
	}
	return order.Price.LessThanOrEqual(opposite)
}

// consumeLevel matches order against the resting queue at level, in
// FIFO order, removing fully-consumed resting orders from the book.
func (b *Book) consumeLevel(order *domain.Order, level *orderbook.PriceLevel) []domain.Fill {
	var fills []domain.Fill

	node := level.Head()
	for node != nil && order.Left > 0 {
		next := node.Next()
		resting := node.Order

		size := order.Left
		if resting.Left < size {
			size = resting.Left
		}

		b.nextTradeID++
		fills = append(fills, domain.Fill{
			TradeID:        b.nextTradeID,
			IncomingID:     order.ID,
			BookID:         resting.ID,
			Side:           order.Side,
			Price:          level.Price,
			Size:           size,
			Instrument:     b.Instrument,
			IncomingIssuer: order.Issuer,
			BookIssuer:     resting.Issuer,
		})

		order.Left -= size
		resting.Left -= size
		level.UpdateQuantity(-size)

		if resting.Left == 0 {
			resting.Status = domain.OrderStatusFilled
			level.Remove(node)
			delete(b.nodes, resting.ID)
		} else {
			resting.Status = domain.OrderStatusPartiallyFilled
		}

		node = next
	}

	if level.IsEmpty() {
		opposite := b.treeFor(order.Side.Opposite())
		opposite.Delete(level.Price)
	}

	return fills
}

// rest inserts order's residual size as a new resting order on its own
// side and refreshes that side's top-of-book.
func (b *Book) rest(order *domain.Order) {
	if order.Price == nil {
		return
	}
	tree := b.treeFor(order.Side)
	level := tree.Get(*order.Price)
	if level == nil {
		level = orderbook.NewPriceLevel(*order.Price)
		tree.Insert(level)
	}
	node := level.Append(order)
	b.nodes[order.ID] = node
	b.recomputeSide(order.Side)
}

// Delete removes id from the book (spec §4.6 delete), if present, and
// refreshes the affected side's top-of-book. Returns the removed order
// and whether it was found.
func (b *Book) Delete(id uint64, side domain.Side) (*domain.Order, bool) {
	node, ok := b.nodes[id]
	if !ok {
		return nil, false
	}
	order := node.Order
	level := b.levelOf(order)
	level.Remove(node)
	delete(b.nodes, id)

	tree := b.treeFor(side)
	if level.IsEmpty() {
		tree.Delete(level.Price)
	}
	b.recomputeSide(side)
	return order, true
}

func (b *Book) levelOf(order *domain.Order) *orderbook.PriceLevel {
	return b.treeFor(order.Side).Get(*order.Price)
}

// recomputeSide re-derives the top-of-book for side from the live tree
// and sanitizes it (spec §4.6 recompute_side, sanitize).
func (b *Book) recomputeSide(side domain.Side) {
	tree := b.treeFor(side)
	level := tree.Min()

	top := domain.TopOfBook{}
	if level != nil {
		price := level.Price
		top.Price = &price
		top.Size = level.TotalQty
		top.IDs = level.IDs()
	}
	b.sanitize(&top)

	if side == domain.SideBuy {
		b.MaxBid = top
		if top.Price != nil {
			b.lastBid = top.Price
		}
	} else {
		b.MinOffer = top
		if top.Price != nil {
			b.lastAsk = top.Price
		}
	}
}

// sanitize forces top-of-book to empty if its size is non-positive
// (spec §4.6 sanitize). decimal.Decimal has no infinity/NaN, which
// already rules out the non-finite-price corner case the original
// float-based engine had to guard against.
func (b *Book) sanitize(top *domain.TopOfBook) {
	if top.Size <= 0 {
		*top = domain.TopOfBook{}
	}
}

// CurrentPrice is defined only when both sides are present (spec §4.6
// current_price): half the sum of the best bid and best offer, rounded
// to three decimals.
func (b *Book) CurrentPrice() *decimal.Decimal {
	if b.MaxBid.Price == nil || b.MinOffer.Price == nil {
		return nil
	}
	mid := b.MaxBid.Price.Add(*b.MinOffer.Price).
		DivRound(decimal.NewFromInt(2), 3)
	return &mid
}

// LastAvailableBid returns the last meaningful bid quote (spec §4.6
// last_available_bid/ask): the current top if present, else the last
// observed top before it vanished, else previousClose, else zero.
func (b *Book) LastAvailableBid(previousClose *decimal.Decimal) decimal.Decimal {
	return lastAvailable(b.MaxBid.Price, b.lastBid, previousClose)
}

func (b *Book) LastAvailableAsk(previousClose *decimal.Decimal) decimal.Decimal {
	return lastAvailable(b.MinOffer.Price, b.lastAsk, previousClose)
}

func lastAvailable(current, last, previousClose *decimal.Decimal) decimal.Decimal {
	if current != nil {
		return *current
	}
	if last != nil {
		return *last
	}
	if previousClose != nil {
		return *previousClose
	}
	return decimal.Zero
}

// IsEmpty reports whether the book holds no resting orders on either
// side.
func (b *Book) IsEmpty() bool {
	return b.bids.IsEmpty() && b.asks.IsEmpty()
}

// CancelAll removes every resting order from the book, invoking fn for
// each (used by market.Manager.Close(delete=true), spec §4.7).
func (b *Book) CancelAll(fn func(order *domain.Order)) {
	for id, node := range b.nodes {
		fn(node.Order)
		delete(b.nodes, id)
	}
	b.bids = orderbook.NewRBTree(true)
	b.asks = orderbook.NewRBTree(false)
	b.MaxBid = domain.TopOfBook{}
	b.MinOffer = domain.TopOfBook{}
}
