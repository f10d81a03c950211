package protocol

import "testing"

func TestParseOrdinaryCommandNoArgs(t *testing.T) {
	cmd, err := Parse("balance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Name != "balance" || cmd.Local || cmd.Privileged {
		t.Errorf("unexpected command: %+v", cmd)
	}
	if len(cmd.Args) != 0 {
		t.Errorf("expected no args, got %v", cmd.Args)
	}
}

func TestParseWithArgs(t *testing.T) {
	cmd, err := Parse("buylimit AAPL 10 150.25")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Name != "buylimit" {
		t.Errorf("expected name buylimit, got %q", cmd.Name)
	}
	want := []string{"AAPL", "10", "150.25"}
	if len(cmd.Args) != len(want) {
		t.Fatalf("expected %d args, got %d (%v)", len(want), len(cmd.Args), cmd.Args)
	}
	for i, w := range want {
		if cmd.Args[i] != w {
			t.Errorf("arg[%d] = %q, want %q", i, cmd.Args[i], w)
		}
	}
}

func TestParsePrivilegedSigil(t *testing.T) {
	cmd, err := Parse("*stop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cmd.Privileged || cmd.Local {
		t.Errorf("expected privileged-only command, got %+v", cmd)
	}
	if cmd.Name != "stop" {
		t.Errorf("expected name stop, got %q", cmd.Name)
	}
}

func TestParseLocalSigil(t *testing.T) {
	cmd, err := Parse(".clear")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cmd.Local || cmd.Privileged {
		t.Errorf("expected local-only command, got %+v", cmd)
	}
	if cmd.Name != "clear" {
		t.Errorf("expected name clear, got %q", cmd.Name)
	}
}

func TestParseQuotedArgWithEmbeddedSpace(t *testing.T) {
	cmd, err := Parse(`chname "John Doe"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cmd.Args) != 1 || cmd.Args[0] != "John Doe" {
		t.Fatalf("expected a single arg 'John Doe', got %v", cmd.Args)
	}
}

func TestParseEmptyLineIsError(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Error("expected an error parsing an empty command line")
	}
}

func TestParseUnterminatedQuoteIsError(t *testing.T) {
	if _, err := Parse(`chname "unterminated`); err == nil {
		t.Error("expected an error for an unterminated quoted string")
	}
}

func TestParseErrorIncludesCaret(t *testing.T) {
	_, err := Parse("")
	if err == nil {
		t.Fatal("expected an error")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Caret() == "" {
		t.Error("expected a non-empty caret rendering")
	}
}
