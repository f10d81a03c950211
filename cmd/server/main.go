// Command server runs the NSE exchange: matching, settlement, and the
// framed-TCP session protocol (spec §6), all wired together here.
//
// Grounded on the teacher's cmd/server/main.go: a long-lived Server
// struct assembled once in NewServer, started by Start, torn down in
// an explicit, ordered Shutdown driven by a SIGINT/SIGTERM handler.
// The teacher wires an HTTP mux and an LMAX ring buffer; this wires a
// session.Server over a length-prefixed TCP listener plus the
// snapshot/scheduler background loops, but keeps the same shape:
// construct dependencies bottom-up, start background loops, accept
// connections, then reverse the order on shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/auth"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/config"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/credit"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/digest"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/history"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/logging"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/registry"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/scheduler"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/session"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/settlement"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/snapshot"
)

// Server is every long-lived component the exchange process owns, plus
// the order in which Shutdown must retire them.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	snapStore *snapshot.Store
	hist      *history.Store
	credits   *credit.Store
	reg       *registry.Registry
	sched     *scheduler.Scheduler
	session   *session.Server
	cancel    context.CancelFunc
	stopOnce  sync.Once

	wg sync.WaitGroup
}

// NewServer loads the snapshot tree, opens the SQL-backed stores,
// replays the order registry, and assembles the scheduler and session
// listener. Nothing is accepting connections yet; call Start for that.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	tree := snapshot.NewTree()
	snapStore := snapshot.NewStore(cfg.SnapshotPath, tree, logger)
	if err := snapStore.Load(); err != nil {
		logger.Warn("no snapshot loaded, starting from an empty tree", zap.Error(err))
	}

	hist, err := history.Open(cfg.HistoryDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	credits, err := credit.Open(cfg.CreditDBPath)
	if err != nil {
		return nil, fmt.Errorf("open credit store: %w", err)
	}

	authStore := auth.NewStore(tree)

	reg := registry.New(tree)
	reg.Open()

	settle := settlement.New(tree, reg, credits, hist, logger)

	var dig scheduler.Digest
	if cfg.DigestSMTPHost != "" {
		dig = digest.New(tree, authStore, cfg.DigestSMTPHost, cfg.DigestSMTPUser, cfg.DigestSMTPPass, cfg.DigestFrom)
	}

	sched, err := scheduler.New(tree, settle, hist, dig, logger)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		snapStore: snapStore,
		hist:      hist,
		credits:   credits,
		reg:       reg,
		sched:     sched,
	}

	deps := session.Deps{
		Tree:            tree,
		Registry:        reg,
		Auth:            authStore,
		History:         hist,
		Credits:         credits,
		Logger:          logger,
		Settlement:      settle,
		Digest:          dig,
		ProtocolVersion: cfg.ProtocolVersion,
		Shutdown:        srv.requestShutdown,
	}
	srv.session = session.NewServer(deps)

	return srv, nil
}

// requestShutdown lets the admin `stop` command (spec §5) trigger the
// same shutdown path as a SIGINT/SIGTERM, by cancelling the same root
// context main() is watching.
func (s *Server) requestShutdown() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// cancel is set by main (through setCancel, before Start) and invoked
// by requestShutdown; kept as a
// field (rather than captured only in main) so the admin `stop`
// command, routed through Deps.Shutdown, can reach it too.
func (s *Server) setCancel(cancel context.CancelFunc) { s.cancel = cancel }

// Start runs every background loop (snapshot periodic save, scheduler)
// and the session listener. It blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.snapStore.Run(ctx, s.cfg.SnapshotPeriod)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sched.Run(ctx)
	}()

	addr := fmt.Sprintf(":%d", s.cfg.ListenPort)
	return s.session.Serve(ctx, addr)
}

// Shutdown first stops trading on every market, then waits for the
// background loops to stop (they already react to ctx cancellation in
// Start) and forces one final snapshot save, matching spec §5's "stop
// the snapshot timer, forces a final save, and exits".
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	for _, mgr := range s.reg.Markets() {
		mgr.Close(false)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown grace period elapsed before background loops stopped")
	}

	if err := s.snapStore.Save(); err != nil {
		s.logger.Error("final snapshot save failed", zap.Error(err))
	}
	if err := s.hist.Close(); err != nil {
		s.logger.Error("history store close failed", zap.Error(err))
	}
	if err := s.credits.Close(); err != nil {
		s.logger.Error("credit store close failed", zap.Error(err))
	}
	return nil
}

func main() {
	var configPath string
	var logPath string

	root := &cobra.Command{
		Use:   "server",
		Short: "Run the NSE exchange server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := logging.New(logPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			srv, err := NewServer(cfg, logger)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			srv.setCancel(cancel)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info("received shutdown signal")
				cancel()
			}()

			serveErr := srv.Start(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown error", zap.Error(err))
			}

			return serveErr
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to a config file (optional; NSE_-prefixed env vars also apply)")
	root.Flags().StringVar(&logPath, "log", "", "path to a log file (in addition to stdout)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
