package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leandrodaf/mpe/sdk/contracts"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]contracts.LogLevel{
		"":        contracts.InfoLevel,
		"debug":   contracts.DebugLevel,
		" WARN ":  contracts.WarnLevel,
		"warning": contracts.WarnLevel,
		"error":   contracts.ErrorLevel,
		"fatal":   contracts.FatalLevel,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: got=%d want=%d", raw, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestFileDestinationWritesStructuredFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpe.log")
	log := NewZapLogger()
	log.SetDestination(contracts.FileLog, path)
	log.SetLevel(contracts.WarnLevel)

	log.Info("hidden")
	log.Warn("voice stolen", log.Field().Uint8("channel", 3), log.Field().Error("error", errors.New("boom")))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written below warn level: %s", out)
	}
	for _, want := range []string{`"msg":"voice stolen"`, `"channel":3`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestNopLoggerAcceptsEverything(t *testing.T) {
	log := NewNopLogger()
	log.SetLevel(contracts.DebugLevel)
	log.SetDestination(contracts.FileLog, filepath.Join(t.TempDir(), "never.log"))
	log.Debug("x", log.Field().Int("n", 1))
	log.Error("y", log.Field().Bool("b", true))
}
