package domain

import "github.com/shopspring/decimal"

// AnyHolderIsIssuer is the special issuer value meaning "every holder
// counts as the issuer" (spec §3, Instrument.issuer).
const AnyHolderIsIssuer = "*"

// TopOfBook is the best price level on one side of a book: its price,
// aggregate resting size, and the ordered list of resting order IDs.
type TopOfBook struct {
	Price *decimal.Decimal
	Size  int64
	IDs   []uint64
}

// Quote is the live top-of-book / last-traded snapshot for an instrument.
type Quote struct {
	Bid       *decimal.Decimal
	Ask       *decimal.Decimal
	Mid       *decimal.Decimal
	LastBid   *decimal.Decimal
	LastAsk   *decimal.Decimal
	BidVolume *int64
	AskVolume *int64

	// DepthBid/DepthAsk map a price (as its decimal string, for stable
	// JSON-map keys) to the aggregate resting size at that price.
	DepthBid map[string]int64
	DepthAsk map[string]int64
}

func NewQuote() Quote {
	return Quote{
		DepthBid: make(map[string]int64),
		DepthAsk: make(map[string]int64),
	}
}

// SessionData is the intraday accumulator for an instrument, reset at
// each settlement rollover (spec §4.9 phase 2).
type SessionData struct {
	BuyVolume     int64
	SellVolume    int64
	TradedValue   decimal.Decimal
	Open          *decimal.Decimal
	Close         *decimal.Decimal
	PreviousClose *decimal.Decimal
}

// Asset is a tradable instrument ("ticker").
type Asset struct {
	Ticker  string
	Class   AssetClass
	Issuer  string
	Quote   Quote
	Session SessionData

	// OutstandingUnits tracks the issuer's net outstanding supply,
	// rolled up at settlement (supplemented from original_source's
	// settlement.py; see SPEC_FULL.md §6).
	OutstandingUnits int64

	Tradable bool
}

func NewAsset(ticker string, class AssetClass, issuer string) *Asset {
	return &Asset{
		Ticker:   ticker,
		Class:    class,
		Issuer:   issuer,
		Quote:    NewQuote(),
		Tradable: true,
	}
}

// AssetClass is the asset-class tag an instrument belongs to.
type AssetClass string
