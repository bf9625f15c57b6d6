// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package guard

import (
	"bytes"
	"strings"
	"testing"

	"github.com/decred/slog"
)

func TestNewLoggerMakerLevels(t *testing.T) {
	var buf bytes.Buffer

	lm, err := NewLoggerMaker(&buf, "info", true)
	if err != nil {
		t.Fatalf("single-level parse error: %v", err)
	}
	if lm.DefaultLevel != slog.LevelInfo {
		t.Fatalf("wrong default level: %v", lm.DefaultLevel)
	}

	lm, err = NewLoggerMaker(&buf, "RPC=debug,LIFE=trace", true)
	if err != nil {
		t.Fatalf("per-subsystem parse error: %v", err)
	}
	if lm.Levels["RPC"] != slog.LevelDebug || lm.Levels["LIFE"] != slog.LevelTrace {
		t.Fatalf("wrong subsystem levels: %v", lm.Levels)
	}

	if _, err = NewLoggerMaker(&buf, "loud", true); err == nil {
		t.Fatal("no error for a bogus level")
	}
	if _, err = NewLoggerMaker(&buf, "RPC=debug,LIFE", true); err == nil {
		t.Fatal("no error for a malformed pair")
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	lm, err := NewLoggerMaker(&buf, "LIFE=info", true)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	log := lm.NewLogger("LIFE")
	log.Debugf("hidden")
	log.Infof("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked through info level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("info line missing: %q", out)
	}
}
