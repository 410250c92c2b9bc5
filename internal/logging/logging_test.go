package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("path", "/x").Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") || !strings.Contains(out, "path=/x") {
		t.Fatalf("output = %q", out)
	}
}

func TestNewUnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New("chatty", &buf)
	log.Debug().Msg("debug")
	log.Info().Msg("info")
	if out := buf.String(); strings.Contains(out, "debug") || !strings.Contains(out, "info") {
		t.Fatalf("output = %q", out)
	}
}
