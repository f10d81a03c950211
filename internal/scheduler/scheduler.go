// Package scheduler runs the exchange's wall-clock periodic triggers
// (spec §4.10): intraday snapshot ticks at :00/:10/:20/:30/:40/:50 past
// every hour, daily settlement at local midnight, and a daily digest
// at noon, all in Europe/Rome local time, with a startup catch-up run
// of settlement if the persisted open date has fallen behind today.
//
// Grounded on original_source/src/scheduler.py's three `schedule.every`
// registrations and its run_pending/sleep(60) poll loop, restructured
// around a single time.Ticker the way the teacher's
// internal/disruptor/batcher.go structures its periodic-flush loop
// (ticker.C case alongside a shutdown channel) rather than a
// busy-poll.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/history"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/settlement"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/snapshot"
)

// Digest sends the daily external digest (spec §4.10: "outbound daily
// digest (external collaborator)"); the scheduler only triggers it.
type Digest interface {
	Send(ctx context.Context) error
}

// Scheduler owns the wall-clock tick loop. It is not itself safe to
// Run from two goroutines.
type Scheduler struct {
	tree       *snapshot.Tree
	settlement *settlement.Engine
	history    *history.Store
	digest     Digest
	location   *time.Location
	logger     *zap.Logger

	lastTick time.Time
}

func New(tree *snapshot.Tree, settle *settlement.Engine, hist *history.Store, digest Digest, logger *zap.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		tree:       tree,
		settlement: settle,
		history:    hist,
		digest:     digest,
		location:   loc,
		logger:     logger,
	}, nil
}

// Run polls every second for a wall-clock minute boundary and fires
// whichever triggers match; it first runs a startup catch-up if the
// persisted open date has already fallen behind today (spec §4.10:
// "On startup, if the persisted openDate ≠ today, run settlement
// immediately before arming the timers.").
func (s *Scheduler) Run(ctx context.Context) {
	now := time.Now().In(s.location)
	if s.tree.GetOpenDate() != dateString(now) {
		s.runSettlement(now)
	}
	s.lastTick = now

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.tick(t.In(s.location))
		}
	}
}

// tick fires whichever trigger's boundary now lands on. A one-second
// ticker means every wall-clock second is observed exactly once, so
// there is no backlog to catch up on between calls.
func (s *Scheduler) tick(now time.Time) {
	s.lastTick = now

	if now.Second() != 0 {
		return
	}
	if now.Minute()%10 == 0 {
		s.snapshotIntraday(now)
	}
	if now.Minute() == 0 && now.Hour() == 0 {
		s.runSettlement(now)
	}
	if now.Minute() == 0 && now.Hour() == 12 {
		s.runDigest(now)
	}
}

func (s *Scheduler) snapshotIntraday(now time.Time) {
	day := dateString(now)
	clock := now.Format("15:04:05")
	for _, ticker := range s.tree.Tickers() {
		row := history.IntradayRow{Ticker: ticker, Day: day, Time: clock}
		s.tree.WithAsset(ticker, func(a *domain.Asset) {
			row.Bid, row.Ask, row.Mid = a.Quote.Bid, a.Quote.Ask, a.Quote.Mid
		})
		if err := s.history.AppendIntraday(row); err != nil {
			s.logger.Error("scheduler: append intraday failed", zap.String("ticker", ticker), zap.Error(err))
		}
	}
}

func (s *Scheduler) runSettlement(now time.Time) {
	today := s.tree.GetOpenDate()
	tomorrow := dateString(now)
	if today == "" {
		today = tomorrow
	}
	s.logger.Info("scheduler: running settlement", zap.String("from", today), zap.String("to", tomorrow))
	s.settlement.Run(today, tomorrow)
}

func (s *Scheduler) runDigest(now time.Time) {
	if s.digest == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.digest.Send(ctx); err != nil {
		s.logger.Error("scheduler: digest send failed", zap.Error(err))
	}
}

func dateString(t time.Time) string {
	return t.Format("2006-01-02")
}
