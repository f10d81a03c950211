package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewOKSetsDoneCode(t *testing.T) {
	msg := NewOK(map[string]interface{}{"content": "ok"})
	if msg.Mode != StatusOK || msg.Code != CodeDone {
		t.Errorf("expected OK/DONE, got %s/%s", msg.Mode, msg.Code)
	}
}

func TestNewErrSetsGivenCode(t *testing.T) {
	msg := NewErr(CodeDeny, "nope")
	if msg.Mode != StatusErr || msg.Code != CodeDeny {
		t.Errorf("expected ERR/DENY, got %s/%s", msg.Mode, msg.Code)
	}
	if msg.Message["content"] != "nope" {
		t.Errorf("expected content 'nope', got %v", msg.Message["content"])
	}
}

func TestNewMultiEncodesEachMessage(t *testing.T) {
	multi, err := NewMulti(NewValue("a", 1), NewValue("b", 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if multi.Type != MessageMulti || len(multi.Messages) != 2 {
		t.Fatalf("expected 2 encoded messages, got %d", len(multi.Messages))
	}

	var decoded ValueMessage
	if err := json.Unmarshal([]byte(multi.Messages[0]), &decoded); err != nil {
		t.Fatalf("failed to decode nested message: %v", err)
	}
	if decoded.Name != "a" {
		t.Errorf("expected nested name 'a', got %q", decoded.Name)
	}
}

func TestTableMessageMarshalsColumnsAndRows(t *testing.T) {
	table := NewTable("T", []string{"A", "B"}, [][]interface{}{{1, "x"}})
	data, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic["type"] != string(MessageTable) {
		t.Errorf("expected type TABLE, got %v", generic["type"])
	}
	rows, ok := generic["rows"].([]interface{})
	if !ok || len(rows) != 1 {
		t.Fatalf("expected one row, got %v", generic["rows"])
	}
}

func TestChartMessageNilXFormatOmitsNothing(t *testing.T) {
	chart := NewChart("C", nil, "x", "y", []ChartSeries{{Name: "s", X: []interface{}{1}, Y: []interface{}{2}}})
	data, err := json.Marshal(chart)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic["xformat"] != nil {
		t.Errorf("expected null xformat, got %v", generic["xformat"])
	}
}

func TestAuthMessageCarriesProtocolVersion(t *testing.T) {
	auth := NewAuthMessage(AuthLogin, "alice", "", "secret")
	if auth.Version != ProtocolVersion {
		t.Errorf("expected version %s, got %s", ProtocolVersion, auth.Version)
	}
	if auth.Mode != AuthLogin {
		t.Errorf("expected LOGIN mode, got %s", auth.Mode)
	}
}
