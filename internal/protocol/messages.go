// Package protocol implements the exchange's wire message variants
// and command-string grammar (spec §6).
//
// Grounded directly on original_source/src/unet/protocol.py (message
// constructors, the message/mode/code vocabularies) translated from
// keyword-constructor functions to typed structs with `encoding/json`
// tags, and unet/command_parser.py (the character-scanner grammar,
// ported in parser.go).
package protocol

import "encoding/json"

// ProtocolVersion is the exchange protocol version carried in every
// AUTH message; a mismatch yields STATUS ERR VER.
const ProtocolVersion = "1.0.0"

// MessageType selects the JSON variant via the `type` field.
type MessageType string

const (
	MessageAuth   MessageType = "AUTH"
	MessageStatus MessageType = "STATUS"
	MessageValue  MessageType = "VALUE"
	MessageTable  MessageType = "TABLE"
	MessageChart  MessageType = "CHART"
	MessageMulti  MessageType = "MULTI"
)

// AuthMode distinguishes a login attempt from a signup.
type AuthMode string

const (
	AuthLogin  AuthMode = "LOGIN"
	AuthSignup AuthMode = "SIGNUP"
)

// StatusMode is the coarse outcome of a command.
type StatusMode string

const (
	StatusOK  StatusMode = "OK"
	StatusErr StatusMode = "ERR"
)

// StatusCode refines an ERR StatusMode into an error taxonomy (spec §7).
type StatusCode string

const (
	CodeDone StatusCode = "DONE"
	CodeExc  StatusCode = "EXC"
	CodeBad  StatusCode = "BAD"
	CodeVer  StatusCode = "VER"
	CodeDeny StatusCode = "DENY"
)

// AuthMessage is the client's login/signup request.
type AuthMessage struct {
	Type     MessageType `json:"type"`
	Version  string      `json:"version"`
	Mode     AuthMode    `json:"mode"`
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
}

func NewAuthMessage(mode AuthMode, name, email, password string) AuthMessage {
	return AuthMessage{Type: MessageAuth, Version: ProtocolVersion, Mode: mode, Name: name, Email: email, Password: password}
}

// StatusMessage is the reply envelope for every command.
type StatusMessage struct {
	Type    MessageType            `json:"type"`
	Mode    StatusMode             `json:"mode"`
	Code    StatusCode             `json:"code"`
	Message map[string]interface{} `json:"message"`
}

func NewOK(content map[string]interface{}) StatusMessage {
	return StatusMessage{Type: MessageStatus, Mode: StatusOK, Code: CodeDone, Message: content}
}

func NewErr(code StatusCode, text string) StatusMessage {
	return StatusMessage{Type: MessageStatus, Mode: StatusErr, Code: code, Message: map[string]interface{}{"content": text}}
}

// ValueMessage carries one named scalar (spec §6: `whoami`, balance
// halves, …).
type ValueMessage struct {
	Type  MessageType `json:"type"`
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

func NewValue(name string, value interface{}) ValueMessage {
	return ValueMessage{Type: MessageValue, Name: name, Value: value}
}

// TableMessage carries a titled grid (spec §6: `market`, `orders`,
// `positions`, …).
type TableMessage struct {
	Type    MessageType     `json:"type"`
	Title   string          `json:"title"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

func NewTable(title string, columns []string, rows [][]interface{}) TableMessage {
	return TableMessage{Type: MessageTable, Title: title, Columns: columns, Rows: rows}
}

// ChartSeries is one named (x, y) series within a CHART message.
type ChartSeries struct {
	Name string        `json:"name"`
	X    []interface{} `json:"x"`
	Y    []interface{} `json:"y"`
}

// ChartMessage carries one or more series plotted against a shared
// axis (spec §6: `today`, `intraday`, `daily`, …). XFormat is nil for
// a numeric axis or a strftime-style pattern for a time axis.
type ChartMessage struct {
	Type    MessageType   `json:"type"`
	Title   string        `json:"title"`
	XFormat *string       `json:"xformat"`
	XLabel  string        `json:"xlabel"`
	YLabel  string        `json:"ylabel"`
	Series  []ChartSeries `json:"series"`
}

func NewChart(title string, xformat *string, xlabel, ylabel string, series []ChartSeries) ChartMessage {
	return ChartMessage{Type: MessageChart, Title: title, XFormat: xformat, XLabel: xlabel, YLabel: ylabel, Series: series}
}

// MultiMessage bundles several already-encoded messages into one
// frame (spec §6: `balance` replies as MULTI(value settled, value
// current)).
type MultiMessage struct {
	Type     MessageType `json:"type"`
	Messages []string    `json:"messages"`
}

// NewMulti JSON-encodes each message and wraps the resulting strings.
func NewMulti(messages ...interface{}) (MultiMessage, error) {
	encoded := make([]string, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return MultiMessage{}, err
		}
		encoded = append(encoded, string(data))
	}
	return MultiMessage{Type: MessageMulti, Messages: encoded}, nil
}
