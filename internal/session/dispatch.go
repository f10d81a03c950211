package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/protocol"
)

// Handler is one command's implementation. It returns either a wire
// message (StatusMessage/ValueMessage/TableMessage/ChartMessage/
// MultiMessage) or an error — a *bizError carries its own status code,
// anything else is reported as EXC.
type Handler func(s *Session, cmd *protocol.Command) (interface{}, error)

// commandSpec is one entry of the static, hand-written command tables
// (spec §4.11: "never reflection-driven — a fixed map from command
// name to handler"). MinArgs/MaxArgs bound the argument count; outside
// that range the dispatcher reports EXC before the handler ever runs.
type commandSpec struct {
	MinArgs, MaxArgs int
	Fn               Handler
}

// dispatch routes cmd to the user or admin command table by its sigil
// (spec §4.11): a privileged (`*`) command runs against adminCommands
// and requires the "admin" role; an ordinary command runs against
// userCommands and requires the "user" role (stripped only by a
// deliberate `rmrole user`); a client-local (`.`) command reaching the
// wire is a protocol violation, since local commands are resolved by
// the client itself and never transmitted.
func (s *Session) dispatch(cmd *protocol.Command) interface{} {
	if cmd.Local {
		return protocol.NewErr(protocol.CodeExc, fmt.Sprintf("'%s' is a client-local command and cannot be sent to the server", cmd.Name))
	}

	table := userCommands
	role := "user"
	if cmd.Privileged {
		table = adminCommands
		role = "admin"
	}

	if !s.deps.Auth.HasRole(s.principal, role) {
		return protocol.NewErr(protocol.CodeDeny, "permission denied")
	}

	spec, ok := table[cmd.Name]
	if !ok {
		return protocol.NewErr(protocol.CodeExc, fmt.Sprintf("unknown command '%s'", cmd.Name))
	}
	if len(cmd.Args) < spec.MinArgs || len(cmd.Args) > spec.MaxArgs {
		return protocol.NewErr(protocol.CodeExc, fmt.Sprintf("'%s' expects between %d and %d arguments, got %d", cmd.Name, spec.MinArgs, spec.MaxArgs, len(cmd.Args)))
	}

	return s.invoke(spec, cmd)
}

// invoke runs a handler with panic recovery (spec §7: "a panic inside
// a command handler is caught at the dispatch boundary and reported
// as EXC, never crashing the session or the process"). A handler
// returns one of the wire message types on success; invoke passes it
// straight through to be marshaled, and converts any error into the
// appropriate STATUS reply.
func (s *Session) invoke(spec commandSpec, cmd *protocol.Command) (result interface{}) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Error("session: command handler panicked",
				zap.String("command", cmd.Name), zap.Any("recover", r), zap.Stack("stack"))
			result = protocol.NewErr(protocol.CodeExc, fmt.Sprintf("internal error handling '%s'", cmd.Name))
		}
	}()

	out, err := spec.Fn(s, cmd)
	if err != nil {
		return errToStatus(err)
	}
	return out
}
