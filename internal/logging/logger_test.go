package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")

	logger, err := New(Config{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("Expected global level debug, got %s", zerolog.GlobalLevel())
	}

	componentLogger := Component(logger, "test")
	componentLogger.Info().Msg("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"component":"test"`, `"service":"trademate"`, `"message":"hello"`} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %s in %q", want, line)
		}
	}
}
