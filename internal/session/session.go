// Package session implements the per-connection protocol loop (spec
// §4.11): the AUTH handshake, then a read-dispatch-reply cycle over
// raw command strings parsed by internal/protocol.Parse.
//
// Grounded on the teacher's cmd/server/main.go Server/Shutdown wiring
// shape (a long-lived struct wrapping its dependencies, an Accept
// loop spun into its own goroutine per connection) generalized from
// the teacher's HTTP mux to the framed TCP protocol described in spec
// §6, and on original_source/src/server_commands.py +
// unet/server.py for the command-handler surface and per-session
// state machine.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/auth"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/credit"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/history"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/protocol"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/registry"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/scheduler"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/settlement"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/snapshot"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/transport"
)

// Deps is every shared component a Session's command handlers can
// reach. One Deps is shared read-only across every connection; all
// mutation goes through the guarded components it points to.
type Deps struct {
	Tree     *snapshot.Tree
	Registry *registry.Registry
	Auth     *auth.Store
	History  *history.Store
	Credits  *credit.Store
	Logger   *zap.Logger

	// Settlement and Digest back the admin `newsession`/`newsupdate`
	// commands, which force the scheduler's midnight rollover and
	// noon digest to run early (spec §4.11; grounded on
	// server_commands.py's MarketSettlement().settle() / EmailEngine().send()).
	Settlement *settlement.Engine
	Digest     scheduler.Digest

	// ProtocolVersion is compared against the client's AUTH message;
	// a mismatch yields STATUS ERR VER (spec §4.11).
	ProtocolVersion string

	// Shutdown is invoked by the admin `stop` command (spec §5:
	// "an admin stop closes every market, waits a short grace, stops
	// the snapshot timer, forces a final save, and exits"). Wired by
	// cmd/server to cancel the process's root context.
	Shutdown func()
}

// Server accepts connections and spins up one Session per connection.
type Server struct {
	deps Deps
}

func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Serve listens on addr until ctx is cancelled, at which point the
// listener is closed and Serve returns nil.
func (srv *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("session: listen %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	srv.deps.Logger.Info("session: listening", zap.String("addr", addr))
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				srv.deps.Logger.Error("session: accept failed", zap.Error(err))
				return err
			}
		}
		sess := &Session{deps: srv.deps, conn: transport.NewConn(conn)}
		go sess.Run()
	}
}

// Session is one authenticated connection's command loop.
type Session struct {
	deps      Deps
	conn      *transport.Conn
	principal string
}

// Run drives the AUTH handshake and then the command loop until the
// peer disconnects or a transport error occurs.
func (s *Session) Run() {
	defer s.conn.Close()

	if err := s.authenticate(); err != nil {
		s.deps.Logger.Info("session: auth failed", zap.Stringer("remote", s.conn.RemoteAddr()), zap.Error(err))
		return
	}
	s.deps.Logger.Info("session: authenticated", zap.String("principal", s.principal))

	for {
		payload, err := s.conn.Receive()
		if err != nil {
			s.deps.Logger.Info("session: disconnect", zap.String("principal", s.principal), zap.Error(err))
			return
		}

		cmd, perr := protocol.Parse(string(payload))
		if perr != nil {
			if !s.reply(protocol.NewErr(protocol.CodeExc, perr.Error())) {
				return
			}
			continue
		}

		if !s.reply(s.dispatch(cmd)) {
			return
		}
	}
}

// authenticate reads exactly one AUTH frame and resolves it via
// LOGIN/SIGNUP (spec §4.11).
func (s *Session) authenticate() error {
	payload, err := s.conn.Receive()
	if err != nil {
		return err
	}

	var a protocol.AuthMessage
	if err := json.Unmarshal(payload, &a); err != nil {
		s.reply(protocol.NewErr(protocol.CodeExc, "malformed AUTH message"))
		return err
	}

	if a.Version != s.deps.ProtocolVersion {
		s.reply(protocol.NewErr(protocol.CodeVer, fmt.Sprintf("protocol version mismatch: server=%s client=%s", s.deps.ProtocolVersion, a.Version)))
		return fmt.Errorf("session: protocol version mismatch")
	}

	switch a.Mode {
	case protocol.AuthSignup:
		if err := s.deps.Auth.Signup(a.Name, a.Email, a.Password); err != nil {
			s.reply(protocol.NewErr(protocol.CodeDeny, err.Error()))
			return err
		}
	case protocol.AuthLogin:
		if err := s.deps.Auth.Login(a.Name, a.Password); err != nil {
			s.reply(protocol.NewErr(protocol.CodeDeny, err.Error()))
			return err
		}
	default:
		err := fmt.Errorf("session: unknown auth mode %q", a.Mode)
		s.reply(protocol.NewErr(protocol.CodeExc, err.Error()))
		return err
	}

	s.principal = a.Name
	s.reply(protocol.NewOK(map[string]interface{}{"content": fmt.Sprintf("authenticated as '%s'", s.principal)}))
	return nil
}

// reply marshals and sends msg, returning false if the session should
// be torn down (marshal failure or a transport write error).
func (s *Session) reply(msg interface{}) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		s.deps.Logger.Error("session: marshal reply failed", zap.Error(err))
		return false
	}
	if err := s.conn.Send(data); err != nil {
		s.deps.Logger.Info("session: send failed, closing", zap.String("principal", s.principal), zap.Error(err))
		return false
	}
	return true
}
