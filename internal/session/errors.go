package session

import (
	"fmt"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/protocol"
)

// bizError is a command-handler error that already carries its wire
// status code, as opposed to an unexpected internal failure (which the
// dispatcher reports as EXC). Grounded on original_source's
// deleteorder, which attaches an `errno` alongside its `content` text
// (spec §7's error taxonomy distinguishes BAD/DENY/EXC by cause, not by
// shape, so both carry the same envelope here).
type bizError struct {
	code  protocol.StatusCode
	msg   string
	extra map[string]interface{}
}

func (e *bizError) Error() string { return e.msg }

// Bad reports a client-supplied value that is malformed or refers to
// something that doesn't exist (unknown ticker, unknown user, a
// argument that fails to parse).
func Bad(format string, a ...interface{}) error {
	return &bizError{code: protocol.CodeBad, msg: fmt.Sprintf(format, a...)}
}

// Deny reports a well-formed request that is refused on authorization
// or business-rule grounds (wrong owner, insufficient funds/holdings,
// wrong password).
func Deny(format string, a ...interface{}) error {
	return &bizError{code: protocol.CodeDeny, msg: fmt.Sprintf(format, a...)}
}

// DenyErrno is Deny with an extra `errno` field in the reply, matching
// original_source's deleteorder (-1 not found, -2 wrong issuer).
func DenyErrno(errno int, format string, a ...interface{}) error {
	return &bizError{code: protocol.CodeDeny, msg: fmt.Sprintf(format, a...), extra: map[string]interface{}{"errno": errno}}
}

func errToStatus(err error) protocol.StatusMessage {
	if be, ok := err.(*bizError); ok {
		content := map[string]interface{}{"content": be.msg}
		for k, v := range be.extra {
			content[k] = v
		}
		return protocol.StatusMessage{Type: protocol.MessageStatus, Mode: protocol.StatusErr, Code: be.code, Message: content}
	}
	return protocol.NewErr(protocol.CodeExc, err.Error())
}
