package session

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/protocol"
)

// adminCommands is the static table of privileged (`*`-sigil) session
// commands (spec §4.11), grounded on
// original_source/src/server_commands.py's ExchangeAdminCommandHandler.
var adminCommands = map[string]commandSpec{
	"stop":          {0, 0, cmdStop},
	"setbal":        {2, 2, cmdSetBal},
	"addbal":        {2, 2, cmdAddBal},
	"addticker":     {2, 2, cmdAddTicker},
	"setticker":     {3, 3, cmdSetTicker},
	"rmticker":      {1, 1, cmdRmTicker},
	"chticker":      {2, 2, cmdChTicker},
	"newsession":    {0, 0, cmdNewSession},
	"addrole":       {2, 2, cmdAddRole},
	"rmrole":        {2, 2, cmdRmRole},
	"newsupdate":    {0, 0, cmdNewUpdate},
	"newcredit":     {7, 7, cmdNewCredit},
	"newbenchmark":  {2, 2, cmdNewBenchmark},
	"setbenchmark":  {2, 2, cmdSetBenchmark},
	"json":          {1, 1, cmdJSON},
}

// cmdStop implements the admin `stop` command (spec §5): trigger an
// orderly shutdown of the whole process. The actual close-every-market
// / snapshot-then-exit sequence lives in cmd/server's Shutdown, which
// this only signals.
func cmdStop(s *Session, cmd *protocol.Command) (interface{}, error) {
	if s.deps.Shutdown != nil {
		go s.deps.Shutdown()
	}
	return protocol.NewOK(map[string]interface{}{"content": "shutting down"}), nil
}

func cmdSetBal(s *Session, cmd *protocol.Command) (interface{}, error) {
	who := cmd.Args[0]
	amount, err := decimal.NewFromString(cmd.Args[1])
	if err != nil {
		return nil, Bad("Invalid value '%s' for balance", cmd.Args[1])
	}
	if ok := s.deps.Tree.WithUser(who, func(u *domain.UserLedger) { u.Settled.Cash = amount.Round(3) }); !ok {
		return nil, Bad("No such user '%s'", who)
	}
	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("balance of '%s' set to %s", who, amount.Round(3))}), nil
}

func cmdAddBal(s *Session, cmd *protocol.Command) (interface{}, error) {
	who := cmd.Args[0]
	amount, err := decimal.NewFromString(cmd.Args[1])
	if err != nil {
		return nil, Bad("Invalid value '%s' for balance", cmd.Args[1])
	}
	if ok := s.deps.Tree.WithUser(who, func(u *domain.UserLedger) { u.Settled.Cash = u.Settled.Cash.Add(amount).Round(3) }); !ok {
		return nil, Bad("No such user '%s'", who)
	}
	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("credited %s to '%s'", amount.Round(3), who)}), nil
}

// cmdAddTicker creates a new tradable instrument (spec §4.11
// `addticker`). original_source's add_asset defaults the issuer to the
// literal string "admin"; here the calling admin's own principal is
// used instead, so multiple admins each issue under their own name
// rather than colliding on one shared "admin" issuer.
func cmdAddTicker(s *Session, cmd *protocol.Command) (interface{}, error) {
	ticker := strings.ToUpper(cmd.Args[0])
	class := domain.AssetClass(strings.ToUpper(cmd.Args[1]))

	if !s.deps.Tree.AddAsset(ticker, class, s.principal) {
		return nil, Bad("Ticker '%s' already exists", ticker)
	}
	g := s.deps.Tree.AssetGuard(ticker)
	s.deps.Registry.AddMarket(ticker, g)

	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("created ticker '%s' (class %s)", ticker, class)}), nil
}

// cmdSetTicker updates a bounded allow-list of per-instrument
// attributes (spec §4.11 `setticker`). original_source's setticker is
// a generic `eval(vtype)(value)` setter reaching into arbitrary dict
// sections — not ported, since it amounts to evaluating
// attacker-influenced code server-side; this instead exposes exactly
// the attributes a real operator needs to adjust.
func cmdSetTicker(s *Session, cmd *protocol.Command) (interface{}, error) {
	ticker := strings.ToUpper(cmd.Args[0])
	attribute := strings.ToLower(cmd.Args[1])
	value := cmd.Args[2]

	var apply func(a *domain.Asset) error
	switch attribute {
	case "tradable":
		tradable, err := strconv.ParseBool(value)
		if err != nil {
			return nil, Bad("Invalid value '%s' for attribute 'tradable'", value)
		}
		apply = func(a *domain.Asset) error {
			if mgr, ok := s.deps.Registry.Market(ticker); ok {
				if tradable {
					mgr.Open()
				} else {
					mgr.Close(false)
				}
			}
			a.Tradable = tradable
			return nil
		}
	case "previousclose":
		price, err := decimal.NewFromString(value)
		if err != nil {
			return nil, Bad("Invalid value '%s' for attribute 'previousClose'", value)
		}
		apply = func(a *domain.Asset) error {
			a.Session.PreviousClose = &price
			return nil
		}
	default:
		return nil, Bad("Unknown attribute '%s'", attribute)
	}

	var applyErr error
	if ok := s.deps.Tree.WithAsset(ticker, func(a *domain.Asset) { applyErr = apply(a) }); !ok {
		return nil, Bad("No such ticker '%s'", ticker)
	}
	if applyErr != nil {
		return nil, applyErr
	}

	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("'%s' of '%s' set to %s", attribute, ticker, value)}), nil
}

// cmdRmTicker removes an instrument entirely (spec §4.11 `rmticker`),
// cancelling every resting order and zeroing every holder's position
// (closing an asset means it no longer exists, so no one can hold it).
// Grounded on server_commands.py's rmticker: the reply is a MULTI of
// the DONE status plus one VALUE message per holder whose units were
// reclaimed.
func cmdRmTicker(s *Session, cmd *protocol.Command) (interface{}, error) {
	ticker := strings.ToUpper(cmd.Args[0])

	var class domain.AssetClass
	found := s.deps.Tree.WithAsset(ticker, func(a *domain.Asset) { class = a.Class })
	if !found {
		return nil, Bad("No such ticker '%s'", ticker)
	}

	if mgr, ok := s.deps.Registry.Market(ticker); ok {
		mgr.Close(true)
	}
	s.deps.Registry.RemoveMarket(ticker)

	messages := []interface{}{protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("ticker '%s' removed", ticker)})}
	for _, username := range s.deps.Tree.Usernames() {
		var reclaimed int64
		s.deps.Tree.WithUser(username, func(u *domain.UserLedger) {
			reclaimed = u.Settled.Assets[ticker] + u.Current.Assets[ticker]
			delete(u.Settled.Assets, ticker)
			delete(u.Current.Assets, ticker)
		})
		if reclaimed != 0 {
			messages = append(messages, protocol.NewValue(fmt.Sprintf("Reclaimed from %s", username), reclaimed))
		}
	}

	s.deps.Tree.RemoveAsset(ticker, class)
	return protocol.NewMulti(messages...)
}

func cmdChTicker(s *Session, cmd *protocol.Command) (interface{}, error) {
	from, to := strings.ToUpper(cmd.Args[0]), strings.ToUpper(cmd.Args[1])
	if !s.deps.Tree.RenameTicker(from, to) {
		return nil, Bad("No such ticker '%s' or '%s' already exists", from, to)
	}
	s.deps.Registry.RenameMarket(from, to)
	if err := s.deps.History.RenameTicker(from, to); err != nil {
		s.deps.Logger.Error("session: history rename ticker failed", zap.Error(err))
	}
	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("renamed '%s' to '%s'", from, to)}), nil
}

// cmdNewSession manually fires the settlement routine (spec §4.11
// `newsession`), equivalent to forcing the scheduler's midnight
// rollover early.
func cmdNewSession(s *Session, cmd *protocol.Command) (interface{}, error) {
	if s.deps.Settlement == nil {
		return nil, Bad("settlement engine unavailable")
	}
	today := s.deps.Tree.GetOpenDate()
	tomorrow := today
	if parsed, err := time.Parse("2006-01-02", today); err == nil {
		tomorrow = parsed.AddDate(0, 0, 1).Format("2006-01-02")
	}
	s.deps.Settlement.Run(today, tomorrow)
	return protocol.NewOK(map[string]interface{}{"content": "settlement run"}), nil
}

// cmdNewUpdate manually fires the daily digest (spec §4.11
// `newsupdate`), equivalent to forcing the scheduler's noon trigger.
func cmdNewUpdate(s *Session, cmd *protocol.Command) (interface{}, error) {
	if s.deps.Digest == nil {
		return nil, Bad("digest unavailable")
	}
	if err := s.deps.Digest.Send(context.Background()); err != nil {
		return nil, err
	}
	return protocol.NewOK(map[string]interface{}{"content": "digest sent"}), nil
}

func cmdAddRole(s *Session, cmd *protocol.Command) (interface{}, error) {
	who, role := cmd.Args[0], cmd.Args[1]
	if err := s.deps.Auth.AddRole(who, role); err != nil {
		return nil, Bad("No such user '%s'", who)
	}
	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("granted '%s' to '%s'", role, who)}), nil
}

func cmdRmRole(s *Session, cmd *protocol.Command) (interface{}, error) {
	who, role := cmd.Args[0], cmd.Args[1]
	if err := s.deps.Auth.RemoveRole(who, role); err != nil {
		return nil, Bad("No such user '%s'", who)
	}
	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("revoked '%s' from '%s'", role, who)}), nil
}

// cmdNewCredit opens a bilateral obligation (spec §6 supplemented
// credit module). Unlike most admin commands here, this has no
// original_source counterpart to port line-for-line — server_commands.py
// never implements a newcredit handler — so the argument shape and
// reply are built directly from credit.Store.AddCredit's own fields.
func cmdNewCredit(s *Session, cmd *protocol.Command) (interface{}, error) {
	creditor, debtor := cmd.Args[0], cmd.Args[1]
	amount, err := decimal.NewFromString(cmd.Args[2])
	if err != nil {
		return nil, Bad("Invalid value '%s' for amount", cmd.Args[2])
	}
	duration, err := strconv.ParseInt(cmd.Args[3], 10, 64)
	if err != nil || duration <= 0 {
		return nil, Bad("Invalid value '%s' for duration", cmd.Args[3])
	}
	frequency, err := strconv.ParseInt(cmd.Args[4], 10, 64)
	if err != nil || frequency <= 0 {
		return nil, Bad("Invalid value '%s' for frequency", cmd.Args[4])
	}
	spreadBP, err := strconv.ParseInt(cmd.Args[5], 10, 64)
	if err != nil {
		return nil, Bad("Invalid value '%s' for spread", cmd.Args[5])
	}
	collateral, err := decimal.NewFromString(cmd.Args[6])
	if err != nil {
		return nil, Bad("Invalid value '%s' for collateral", cmd.Args[6])
	}

	for _, who := range []string{creditor, debtor} {
		if ok := s.deps.Tree.WithUser(who, func(*domain.UserLedger) {}); !ok {
			return nil, Bad("No such user '%s'", who)
		}
	}

	id, err := s.deps.Credits.AddCredit(domain.Credit{
		Creditor:   creditor,
		Debtor:     debtor,
		Amount:     amount.Round(3),
		AmountDue:  amount.Round(3),
		Duration:   duration,
		Frequency:  frequency,
		SpreadBP:   spreadBP,
		Collateral: collateral.Round(3),
	}, s.deps.Tree.GetOpenDate())
	if err != nil {
		return nil, err
	}

	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("opened credit #%d", id), "id": id}), nil
}

func cmdNewBenchmark(s *Session, cmd *protocol.Command) (interface{}, error) {
	name := cmd.Args[0]
	valueBP, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil {
		return nil, Bad("Invalid value '%s' for benchmark rate", cmd.Args[1])
	}
	id, err := s.deps.Credits.AddBenchmark(domain.Benchmark{Name: name, Issuer: s.principal, ValueBP: valueBP})
	if err != nil {
		return nil, err
	}
	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("created benchmark '%s'", name), "id": id}), nil
}

func cmdSetBenchmark(s *Session, cmd *protocol.Command) (interface{}, error) {
	id, err := strconv.ParseInt(cmd.Args[0], 10, 64)
	if err != nil {
		return nil, Bad("Invalid value '%s' for benchmark id", cmd.Args[0])
	}
	valueBP, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil {
		return nil, Bad("Invalid value '%s' for benchmark rate", cmd.Args[1])
	}
	if err := s.deps.Credits.SetBenchmark(id, valueBP); err != nil {
		return nil, err
	}
	return protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("benchmark #%d set to %d bp", id, valueBP)}), nil
}

// cmdJSON is an admin-only guarded read of a slash-delimited sub-path
// of live state (spec §7 Open Question (c): json is admin-only).
// Grounded on server_commands.py's json handler; restricted here to a
// small set of roots rather than arbitrary attribute traversal.
func cmdJSON(s *Session, cmd *protocol.Command) (interface{}, error) {
	parts := strings.Split(strings.Trim(cmd.Args[0], "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil, Bad("Unknown key")
	}

	switch parts[0] {
	case "openDate":
		return protocol.NewValue("openDate", s.deps.Tree.GetOpenDate()), nil
	case "tickers":
		tickers := s.deps.Tree.Tickers()
		sort.Strings(tickers)
		return protocol.NewValue("tickers", tickers), nil
	case "users":
		return protocol.NewValue("users", s.deps.Tree.Usernames()), nil
	case "asset":
		if len(parts) < 2 {
			return nil, Bad("Unknown key")
		}
		ticker := strings.ToUpper(parts[1])
		var out map[string]interface{}
		found := s.deps.Tree.WithAsset(ticker, func(a *domain.Asset) {
			out = map[string]interface{}{
				"ticker": a.Ticker, "class": a.Class, "issuer": a.Issuer,
				"tradable": a.Tradable, "outstandingUnits": a.OutstandingUnits,
				"bid": a.Quote.Bid, "ask": a.Quote.Ask, "mid": a.Quote.Mid,
			}
		})
		if !found {
			return nil, Bad("Unknown key")
		}
		return protocol.NewValue(strings.Join(parts, "/"), out), nil
	default:
		return nil, Bad("Unknown key")
	}
}
