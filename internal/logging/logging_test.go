package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewWithEmptyPathReturnsUsableLogger(t *testing.T) {
	logger, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
	logger.Info("hello")
}

func TestNewWithPathCreatesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	logger, err := New(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hello")
	logger.Sync()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected the log file to be created at %s: %v", path, err)
	}
}
