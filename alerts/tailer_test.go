// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package alerts

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/commerceblock/guardnode/guard"
	"github.com/decred/slog"
)

// lockedBuffer makes the log output readable while the tailer goroutine is
// still writing.
type lockedBuffer struct {
	mtx sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.buf.String()
}

func TestTailer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	defer f.Close()
	// Pre-existing content must not be re-surfaced.
	if _, err := f.WriteString("old ERROR line\n"); err != nil {
		t.Fatalf("write error: %v", err)
	}

	out := new(lockedBuffer)
	tailer := New(path, guard.StdOutLogger("NODE", slog.LevelTrace, false, out))
	tailer.pollInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tailer.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	writeAndSync := func(s string) {
		t.Helper()
		if _, err := f.WriteString(s); err != nil {
			t.Fatalf("write error: %v", err)
		}
		if err := f.Sync(); err != nil {
			t.Fatalf("sync error: %v", err)
		}
	}
	writeAndSync("all fine\n")
	writeAndSync("split ERR")  // partial line, completed below
	writeAndSync("OR found\n")

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "split ERROR found") {
		if time.Now().After(deadline) {
			t.Fatalf("ERROR line never surfaced, log output: %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("tailer did not stop on cancellation")
	}

	logged := out.String()
	if strings.Contains(logged, "old ERROR line") {
		t.Fatalf("pre-existing content re-surfaced: %q", logged)
	}
	if strings.Contains(logged, "all fine") {
		t.Fatalf("non-error line surfaced: %q", logged)
	}
}

func TestTailerMissingFile(t *testing.T) {
	tailer := New(filepath.Join(t.TempDir(), "nope.log"), guard.StdOutLogger("NODE", slog.LevelTrace, false, os.Stdout))
	if err := tailer.Run(context.Background()); err == nil {
		t.Fatal("no error for a missing log file")
	}
}
