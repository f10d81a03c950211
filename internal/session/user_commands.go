package session

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/history"
	marketpkg "github.com/Alessandro-Salerno/NSE-Market-System/internal/market"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/protocol"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/registry"
)

// userCommands is the static table of ordinary (unprivileged) session
// commands (spec §4.11), grounded command-for-command on
// original_source/src/server_commands.py's ExchangeUserCommandHandler.
var userCommands = map[string]commandSpec{
	"whoami":         {0, 0, cmdWhoami},
	"balance":        {0, 0, cmdBalance},
	"market":         {0, 0, cmdMarket},
	"today":          {1, 1, cmdToday},
	"todayspread":    {1, 1, cmdTodaySpread},
	"intraday":       {2, 2, cmdIntraday},
	"intradayspread": {2, 2, cmdIntradaySpread},
	"daily":          {1, 1, cmdDaily},
	"depth":          {1, 1, cmdDepth},
	"selllimit":      {3, 3, cmdSellLimit},
	"sellmarket":     {2, 2, cmdSellMarket},
	"buylimit":       {3, 3, cmdBuyLimit},
	"buymarket":      {2, 2, cmdBuyMarket},
	"orders":         {0, 0, cmdOrders},
	"deleteorder":    {1, 1, cmdDeleteOrder},
	"clearorders":    {1, 1, cmdClearOrders},
	"positions":      {0, 0, cmdPositions},
	"marketposition": {0, 0, cmdMarketPosition},
	"pay":            {2, 2, cmdPay},
	"transfer":       {3, 3, cmdTransfer},
	"passwd":         {2, 2, cmdPasswd},
	"emaddr":         {1, 1, cmdEmaddr},
	"chname":         {1, 1, cmdChname},
	"query":          {3, 3, cmdQuery},
}

func cmdWhoami(s *Session, cmd *protocol.Command) (interface{}, error) {
	return protocol.NewValue("User", s.principal), nil
}

func cmdBalance(s *Session, cmd *protocol.Command) (interface{}, error) {
	var settled, current decimal.Decimal
	s.deps.Tree.WithUser(s.principal, func(u *domain.UserLedger) {
		settled = u.Settled.Cash
		current = u.Current.Cash
	})
	return protocol.NewMulti(
		protocol.NewValue("settled Balance", settled),
		protocol.NewValue("Unsettled Profit & Loss", current),
	)
}

// cmdMarket builds one table per asset class (spec §4.11 `market`),
// grounded on server_commands.py's market handler: ticker, bid, ask,
// mid, bidVol, askVol, and the percent change against previousClose.
func cmdMarket(s *Session, cmd *protocol.Command) (interface{}, error) {
	classes := s.deps.Tree.ClassTickers()
	classNames := sortedKeys(classes)

	tables := make([]interface{}, 0, len(classNames))
	for _, class := range classNames {
		rows := make([][]interface{}, 0, len(classes[class]))
		for _, ticker := range classes[class] {
			var bid, ask, mid, prevClose *decimal.Decimal
			var bidVol, askVol *int64
			s.deps.Tree.WithAsset(ticker, func(a *domain.Asset) {
				bid, ask, mid = a.Quote.Bid, a.Quote.Ask, a.Quote.Mid
				bidVol, askVol = a.Quote.BidVolume, a.Quote.AskVolume
				prevClose = a.Session.PreviousClose
			})

			change := "—"
			if mid != nil && prevClose != nil && !prevClose.IsZero() {
				pct := mid.Sub(*prevClose).Div(*prevClose).Mul(decimal.NewFromInt(100))
				change = fmt.Sprintf("%+.2f%%", pct.InexactFloat64())
			}

			rows = append(rows, []interface{}{ticker, bid, ask, mid, bidVol, askVol, change})
		}
		tables = append(tables, protocol.NewTable(fmt.Sprintf("CLASS %s MARKET", class),
			[]string{"TICKER", "BID", "ASK", "MID", "BID V", "ASK V", "CHANGE"}, rows))
	}

	return protocol.NewMulti(tables...)
}

// cmdMarketPosition mirrors server_commands.py's market_position:
// per-class table of last-traded bid/ask, session volumes, traded
// value, bps spread, and each instrument's short exposure (summed over
// its non-issuer holders) as a percentage of that instrument's
// outstanding units.
func cmdMarketPosition(s *Session, cmd *protocol.Command) (interface{}, error) {
	classes := s.deps.Tree.ClassTickers()
	classNames := sortedKeys(classes)
	usernames := s.deps.Tree.Usernames()

	tables := make([]interface{}, 0, len(classNames))
	for _, class := range classNames {
		rows := make([][]interface{}, 0, len(classes[class]))
		for _, ticker := range classes[class] {
			var issuer string
			var lastBid, lastAsk, bid, ask, mid *decimal.Decimal
			var buyVol, sellVol, outstanding int64
			var tradedValue decimal.Decimal
			s.deps.Tree.WithAsset(ticker, func(a *domain.Asset) {
				issuer = a.Issuer
				lastBid, lastAsk = a.Quote.LastBid, a.Quote.LastAsk
				bid, ask, mid = a.Quote.Bid, a.Quote.Ask, a.Quote.Mid
				buyVol, sellVol = a.Session.BuyVolume, a.Session.SellVolume
				tradedValue = a.Session.TradedValue
				outstanding = a.OutstandingUnits
			})

			var shortAbs int64
			for _, username := range usernames {
				if issuer == username || issuer == domain.AnyHolderIsIssuer {
					continue
				}
				var qty int64
				s.deps.Tree.WithUser(username, func(u *domain.UserLedger) {
					qty = u.Settled.Assets[ticker]
					if u.Current.Assets[ticker] < 0 {
						qty += u.Current.Assets[ticker]
					}
				})
				if qty < 0 {
					shortAbs += -qty
				}
			}

			var spread interface{}
			if bid != nil && ask != nil && mid != nil && !mid.IsZero() {
				bps := ask.Sub(*bid).Div(mid.Round(3)).Mul(decimal.NewFromInt(10000)).Round(2)
				spread = bps
			}

			shortPct := "0.00%"
			if outstanding > 0 {
				shortPct = fmt.Sprintf("%.2f%%", float64(shortAbs)/float64(outstanding)*100)
			}

			rows = append(rows, []interface{}{ticker, lastBid, lastAsk, buyVol, sellVol, tradedValue, spread, shortPct})
		}
		tables = append(tables, protocol.NewTable(fmt.Sprintf("CLASS %s MARKET", class),
			[]string{"TICKER", "L BID", "L ASK", "BUY V", "SELL V", "TRADED", "SPREAD", "SHORT"}, rows))
	}

	return protocol.NewMulti(tables...)
}

func cmdOrders(s *Session, cmd *protocol.Command) (interface{}, error) {
	var ids []uint64
	s.deps.Tree.WithUser(s.principal, func(u *domain.UserLedger) { ids = append(ids, u.Orders...) })

	rows := make([][]interface{}, 0, len(ids))
	for _, id := range ids {
		order, ok := s.deps.Registry.Get(id)
		if !ok {
			continue
		}
		var price interface{}
		if order.Price != nil {
			price = *order.Price
		}
		rows = append(rows, []interface{}{order.Instrument, order.ID, order.Kind.String(), order.Side.String(), order.Left, price})
	}

	return protocol.NewTable("PENDING ORDERS", []string{"TICKER", "ORDER", "EXEC", "SIDE", "SIZE", "PRICE"}, rows), nil
}

func cmdDeleteOrder(s *Session, cmd *protocol.Command) (interface{}, error) {
	id, err := parseOrderID(cmd.Args[0])
	if err != nil {
		return nil, err
	}

	err = s.deps.Registry.CancelOrder(id, s.principal)
	switch {
	case err == nil:
		return protocol.StatusMessage{
			Type: protocol.MessageStatus, Mode: protocol.StatusOK, Code: protocol.CodeDone,
			Message: map[string]interface{}{"errno": nil, "content": "Order deleted"},
		}, nil
	case errors.Is(err, registry.ErrNotFound):
		return nil, DenyErrno(-1, "No such Order ID '%d'", id)
	case errors.Is(err, registry.ErrWrongIssuer):
		return nil, DenyErrno(-2, "Permission denied")
	default:
		return nil, err
	}
}

func cmdClearOrders(s *Session, cmd *protocol.Command) (interface{}, error) {
	ticker := strings.ToUpper(cmd.Args[0])
	if _, ok := s.deps.Registry.Market(ticker); !ok {
		return nil, Bad("No such ticker '%s'", ticker)
	}

	var ids []uint64
	s.deps.Tree.WithUser(s.principal, func(u *domain.UserLedger) { ids = append(ids, u.Orders...) })

	var matching []uint64
	for _, id := range ids {
		if order, ok := s.deps.Registry.Get(id); ok && order.Instrument == ticker {
			matching = append(matching, id)
		}
	}

	successful := 0
	for _, id := range matching {
		if err := s.deps.Registry.CancelOrder(id, s.principal); err == nil {
			successful++
		}
	}

	total := len(matching)
	failed := total - successful
	return protocol.NewOK(map[string]interface{}{
		"total":      total,
		"successful": successful,
		"failed":     failed,
		"content":    fmt.Sprintf("%d orders processed, %d successful, %d failed", total, successful, failed),
	}), nil
}

// cmdPositions implements spec §4.11's merged layout: table(ticker,
// settled, unsettled, value).
func cmdPositions(s *Session, cmd *protocol.Command) (interface{}, error) {
	var rows [][]interface{}
	s.deps.Tree.WithUser(s.principal, func(u *domain.UserLedger) {
		seen := make(map[string]bool, len(u.Settled.Assets)+len(u.Current.Assets))
		for ticker := range u.Settled.Assets {
			seen[ticker] = true
		}
		for ticker := range u.Current.Assets {
			seen[ticker] = true
		}
		tickers := make([]string, 0, len(seen))
		for ticker := range seen {
			tickers = append(tickers, ticker)
		}
		sort.Strings(tickers)

		for _, ticker := range tickers {
			settled := u.Settled.Assets[ticker]
			unsettled := u.Current.Assets[ticker]

			var mid *decimal.Decimal
			s.deps.Tree.WithAsset(ticker, func(a *domain.Asset) { mid = a.Quote.Mid })

			var value interface{}
			if mid != nil {
				value = mid.Mul(decimal.NewFromInt(settled + unsettled)).Round(3)
			}
			rows = append(rows, []interface{}{ticker, settled, unsettled, value})
		}
	})

	return protocol.NewTable("POSITIONS", []string{"TICKER", "SETTLED", "UNSETTLED", "VALUE"}, rows), nil
}

// cmdPay wires cash with role-aware semantics (spec §4.11): a
// central-bank sender mints (the receiver is simply credited, nothing
// is deducted); a central-bank receiver burns (nothing is credited).
// Grounded on server_commands.py's pay, including its exact
// deduct-from-current-in-full fallback when settled alone can't cover
// the amount.
func cmdPay(s *Session, cmd *protocol.Command) (interface{}, error) {
	who := cmd.Args[0]
	if ok := s.deps.Tree.WithUser(who, func(*domain.UserLedger) {}); !ok {
		return nil, Bad("No such user '%s'", who)
	}

	amount, err := decimal.NewFromString(cmd.Args[1])
	if err != nil || amount.IsNegative() {
		return nil, Bad("Invalid value '%s' for transaction size", cmd.Args[1])
	}
	amount = amount.Round(3)

	senderIsCentralBank := s.deps.Auth.HasRole(s.principal, "centralbank")
	if !senderIsCentralBank {
		var insufficient bool
		s.deps.Tree.WithUser(s.principal, func(u *domain.UserLedger) {
			if u.Settled.Cash.Add(u.Current.Cash).LessThan(amount) {
				insufficient = true
				return
			}
			if u.Settled.Cash.LessThan(amount) {
				u.Current.Cash = u.Current.Cash.Sub(amount).Round(3)
			} else {
				u.Settled.Cash = u.Settled.Cash.Sub(amount).Round(3)
			}
		})
		if insufficient {
			return nil, Deny("Insufficient capital")
		}
	}

	if !s.deps.Auth.HasRole(who, "centralbank") {
		s.deps.Tree.WithUser(who, func(u *domain.UserLedger) {
			u.Settled.Cash = u.Settled.Cash.Add(amount).Round(3)
		})
	}

	day := s.deps.Tree.GetOpenDate()
	if _, err := s.deps.History.AppendPayment(history.PaymentRow{
		Sender: s.principal, Receiver: who, Amount: amount, Currency: "USD",
		Day: day, Time: time.Now().Format("15:04:05"), Category: "pay",
	}); err != nil {
		s.deps.Logger.Error("session: append payment failed", zap.Error(err))
	}

	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("Transfered %s to '%s'", amount, who)}), nil
}

// cmdTransfer moves settled units between accounts (spec §4.11
// `transfer`), subject to a holdings check unless the sender is the
// instrument's issuer. Grounded on server_commands.py's transfer.
func cmdTransfer(s *Session, cmd *protocol.Command) (interface{}, error) {
	ticker := strings.ToUpper(cmd.Args[0])
	if _, ok := s.deps.Registry.Market(ticker); !ok {
		return nil, Bad("No such ticker '%s'", ticker)
	}

	qty, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil || qty <= 0 {
		return nil, Bad("Invalid value '%s' for quantity", cmd.Args[1])
	}

	who := cmd.Args[2]
	if ok := s.deps.Tree.WithUser(who, func(*domain.UserLedger) {}); !ok {
		return nil, Bad("No such user '%s'", who)
	}

	var isIssuer bool
	s.deps.Tree.WithAsset(ticker, func(a *domain.Asset) {
		isIssuer = a.Issuer == s.principal || a.Issuer == domain.AnyHolderIsIssuer
	})

	if !isIssuer {
		var held int64
		s.deps.Tree.WithUser(s.principal, func(u *domain.UserLedger) { held = u.Settled.Assets[ticker] })
		if held < qty {
			return nil, Deny("The specified amount of %d units is higher than your settled portfolio allows", qty)
		}
	}

	s.deps.Tree.WithUser(s.principal, func(u *domain.UserLedger) { u.Settled.AddAsset(ticker, -qty) })
	s.deps.Tree.WithUser(who, func(u *domain.UserLedger) { u.Settled.AddAsset(ticker, qty) })

	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("Transfered %d units of '%s' to '%s'", qty, ticker, who)}), nil
}

func cmdPasswd(s *Session, cmd *protocol.Command) (interface{}, error) {
	if err := s.deps.Auth.ChangePassword(s.principal, cmd.Args[0], cmd.Args[1]); err != nil {
		return nil, Deny("Wrong password")
	}
	return protocol.NewOK(map[string]interface{}{"content": "Password updated"}), nil
}

func cmdEmaddr(s *Session, cmd *protocol.Command) (interface{}, error) {
	if err := s.deps.Auth.SetEmail(s.principal, cmd.Args[0]); err != nil {
		return nil, Bad("no such user")
	}
	return protocol.NewOK(map[string]interface{}{"content": "E-Mail Address updated"}), nil
}

// cmdChname renames the calling principal everywhere it is referenced
// (spec §6 supplemented feature): the principal/ledger, history rows,
// and credit rows.
func cmdChname(s *Session, cmd *protocol.Command) (interface{}, error) {
	newName := cmd.Args[0]
	oldName := s.principal

	if err := s.deps.Auth.Rename(oldName, newName); err != nil {
		return nil, Deny("username '%s' is already taken", newName)
	}
	if err := s.deps.History.RenameUser(oldName, newName); err != nil {
		s.deps.Logger.Error("session: history rename failed", zap.Error(err))
	}
	if err := s.deps.Credits.RenameParty(oldName, newName); err != nil {
		s.deps.Logger.Error("session: credit rename failed", zap.Error(err))
	}

	s.principal = newName
	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("renamed to '%s'", newName)}), nil
}

// cmdQuery is the structured history query named by spec §4.11
// (`query …`): daily bars for a ticker over a date range.
func cmdQuery(s *Session, cmd *protocol.Command) (interface{}, error) {
	ticker := strings.ToUpper(cmd.Args[0])
	start, end := cmd.Args[1], cmd.Args[2]

	rows, err := s.deps.History.DailyRange(ticker, start, end)
	if err != nil {
		return nil, err
	}

	out := make([][]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, []interface{}{r.Day, r.BuyVolume, r.SellVolume, r.TradedValue, r.Open, r.Close})
	}
	return protocol.NewTable(ticker, []string{"DAY", "BUY V", "SELL V", "TRADED", "OPEN", "CLOSE"}, out), nil
}

// placeOrder implements spec §4.11's place_order for all four
// order-entry commands. Grounded on command_backend.py's place_order:
// reply carries `filled` (size actually matched), `price` (average
// execution price across this order's own fills, 0 when unfilled),
// and `id`.
func placeOrder(s *Session, tickerArg string, side domain.Side, sizeArg, priceArg string, market bool) (interface{}, error) {
	ticker := strings.ToUpper(tickerArg)
	mgr, ok := s.deps.Registry.Market(ticker)
	if !ok {
		return nil, Bad("No such ticker '%s'", ticker)
	}

	size, err := parseSize(sizeArg)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	if market {
		order, err = mgr.PlaceMarket(side, size, s.principal)
	} else {
		price, perr := parsePrice(priceArg)
		if perr != nil {
			return nil, perr
		}
		order, err = mgr.PlaceLimit(side, size, price, s.principal)
	}
	if err != nil {
		if errors.Is(err, marketpkg.ErrNotTradable) {
			return nil, Deny("instrument '%s' is not open for trading", ticker)
		}
		return nil, err
	}

	filled := order.Size - order.Left
	price := decimal.Zero
	if filled > 0 {
		price = order.FillCost.Div(decimal.NewFromInt(filled)).Round(3)
	}

	return protocol.NewOK(map[string]interface{}{
		"filled":  filled,
		"price":   price,
		"id":      order.ID,
		"content": fmt.Sprintf("order %d: %d/%d filled at avg price %s", order.ID, filled, size, price),
	}), nil
}

func cmdSellLimit(s *Session, cmd *protocol.Command) (interface{}, error) {
	return placeOrder(s, cmd.Args[0], domain.SideSell, cmd.Args[1], cmd.Args[2], false)
}
func cmdSellMarket(s *Session, cmd *protocol.Command) (interface{}, error) {
	return placeOrder(s, cmd.Args[0], domain.SideSell, cmd.Args[1], "", true)
}
func cmdBuyLimit(s *Session, cmd *protocol.Command) (interface{}, error) {
	return placeOrder(s, cmd.Args[0], domain.SideBuy, cmd.Args[1], cmd.Args[2], false)
}
func cmdBuyMarket(s *Session, cmd *protocol.Command) (interface{}, error) {
	return placeOrder(s, cmd.Args[0], domain.SideBuy, cmd.Args[1], "", true)
}

func parseSize(raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, Bad("Invalid value '%s' for order size", raw)
	}
	return n, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil || d.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, Bad("Invalid value '%s' for order price", raw)
	}
	return d, nil
}

func parseOrderID(raw string) (uint64, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, Bad("Invalid value '%s' for order id", raw)
	}
	return n, nil
}

func sortedKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
