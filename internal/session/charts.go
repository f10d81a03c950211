package session

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/protocol"
)

// Chart-building handlers for spec §4.11's price/spread series
// commands (`today`, `todayspread`, `intraday`, `intradayspread`,
// `daily`, `depth`), grounded on command_backend.py's _today_chart /
// _intraday_chart / _daily_chart / _now_series / _spread_series /
// __DEPTH__ property vocabulary in original_source. Each resolves to
// one of two underlying series builders: a live-quote-property walk
// over AssetIntraday rows, or a property walk over AssetDaily rows.

const timeFormat = "15:04:05"

func cmdToday(s *Session, cmd *protocol.Command) (interface{}, error) {
	return intradaySeries(s, cmd.Args[0], s.deps.Tree.GetOpenDate(), "mid")
}

func cmdTodaySpread(s *Session, cmd *protocol.Command) (interface{}, error) {
	return intradaySeries(s, cmd.Args[0], s.deps.Tree.GetOpenDate(), "spread")
}

func cmdIntraday(s *Session, cmd *protocol.Command) (interface{}, error) {
	return intradaySeries(s, cmd.Args[0], cmd.Args[1], "mid")
}

func cmdIntradaySpread(s *Session, cmd *protocol.Command) (interface{}, error) {
	return intradaySeries(s, cmd.Args[0], cmd.Args[1], "spread")
}

func intradaySeries(s *Session, tickerArg, day, property string) (interface{}, error) {
	ticker := strings.ToUpper(tickerArg)
	if _, ok := s.deps.Registry.Market(ticker); !ok {
		return nil, Bad("No such ticker '%s'", ticker)
	}

	rows, err := s.deps.History.Intraday(ticker, day)
	if err != nil {
		return nil, err
	}

	xs := make([]interface{}, 0, len(rows))
	ys := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		var y interface{}
		switch property {
		case "spread":
			if r.Bid != nil && r.Ask != nil {
				y = r.Ask.Sub(*r.Bid)
			}
		default:
			if r.Mid != nil {
				y = *r.Mid
			}
		}
		if y == nil {
			continue
		}
		xs = append(xs, r.Time)
		ys = append(ys, y)
	}

	title := ticker
	ylabel := "Price"
	if property == "spread" {
		ylabel = "Spread"
	}
	xformat := timeFormat
	return protocol.NewChart(title, &xformat, "Time", ylabel, []protocol.ChartSeries{{Name: ticker, X: xs, Y: ys}}), nil
}

// cmdDaily charts an instrument's closing price across every recorded
// trading day (command_backend.py's _daily_chart, property 'close',
// current_property 'mid' appended as the still-open today's point).
func cmdDaily(s *Session, cmd *protocol.Command) (interface{}, error) {
	ticker := strings.ToUpper(cmd.Args[0])
	if _, ok := s.deps.Registry.Market(ticker); !ok {
		return nil, Bad("No such ticker '%s'", ticker)
	}

	rows, err := s.deps.History.DailyRange(ticker, "0000-00-00", "9999-99-99")
	if err != nil {
		return nil, err
	}

	xs := make([]interface{}, 0, len(rows)+1)
	ys := make([]interface{}, 0, len(rows)+1)
	for _, r := range rows {
		if r.Close == nil {
			continue
		}
		xs = append(xs, r.Day)
		ys = append(ys, *r.Close)
	}

	var mid *decimal.Decimal
	s.deps.Tree.WithAsset(ticker, func(a *domain.Asset) { mid = a.Quote.Mid })
	if mid != nil {
		xs = append(xs, s.deps.Tree.GetOpenDate())
		ys = append(ys, *mid)
	}

	dateFormat := "2006-01-02"
	return protocol.NewChart(ticker, &dateFormat, "Day", "Close", []protocol.ChartSeries{{Name: ticker, X: xs, Y: ys}}), nil
}

// cmdDepth charts an instrument's live order-book depth by price
// (spec §4.11 `depth`, command_backend.py's __DEPTH__ property): one
// series for the bid side, one for the ask side, each price sorted
// toward the touch.
func cmdDepth(s *Session, cmd *protocol.Command) (interface{}, error) {
	ticker := strings.ToUpper(cmd.Args[0])
	if _, ok := s.deps.Registry.Market(ticker); !ok {
		return nil, Bad("No such ticker '%s'", ticker)
	}

	var bidLevels, askLevels []depthLevel
	s.deps.Tree.WithAsset(ticker, func(a *domain.Asset) {
		for price, size := range a.Quote.DepthBid {
			if p, err := decimal.NewFromString(price); err == nil {
				bidLevels = append(bidLevels, depthLevel{p, size})
			}
		}
		for price, size := range a.Quote.DepthAsk {
			if p, err := decimal.NewFromString(price); err == nil {
				askLevels = append(askLevels, depthLevel{p, size})
			}
		}
	})
	// Best bid (highest price) and best ask (lowest price) are the
	// touch; each side is sorted outward from there.
	sort.Slice(bidLevels, func(i, j int) bool { return bidLevels[i].price.GreaterThan(bidLevels[j].price) })
	sort.Slice(askLevels, func(i, j int) bool { return askLevels[i].price.LessThan(askLevels[j].price) })

	bidXs, bidYs := depthSeries(bidLevels)
	askXs, askYs := depthSeries(askLevels)

	return protocol.NewChart(ticker, nil, "Price", "Size", []protocol.ChartSeries{
		{Name: "BID", X: bidXs, Y: bidYs},
		{Name: "ASK", X: askXs, Y: askYs},
	}), nil
}

// depthLevel pairs one price level's parsed price with its resting
// size, so the raw string-keyed depth maps can be sorted numerically.
type depthLevel struct {
	price decimal.Decimal
	size  int64
}

func depthSeries(levels []depthLevel) (xs, ys []interface{}) {
	xs = make([]interface{}, 0, len(levels))
	ys = make([]interface{}, 0, len(levels))
	for _, l := range levels {
		xs = append(xs, l.price)
		ys = append(ys, l.size)
	}
	return xs, ys
}
