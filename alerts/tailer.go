// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package alerts follows the client node's own debug log and surfaces its
// ERROR lines through the guardnode logger, so a single log stream carries
// both agent and node problems.
package alerts

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/commerceblock/guardnode/guard"
)

const defaultPollInterval = 100 * time.Millisecond

// Tailer is a polling log-file follower. It shares nothing with the
// lifecycle loop beyond the supervisor's error flag.
type Tailer struct {
	path         string
	pollInterval time.Duration
	log          guard.Logger
}

// New creates a Tailer for the node log at path.
func New(path string, log guard.Logger) *Tailer {
	return &Tailer{
		path:         path,
		pollInterval: defaultPollInterval,
		log:          log,
	}
}

// Run tails the file until the context is canceled, starting from the
// current end of file. An unreadable file is fatal. Satisfies guard.Runner.
func (t *Tailer) Run(ctx context.Context) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("error opening node log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("error seeking node log file: %w", err)
	}
	t.log.Infof("Log file read: %s", t.path)

	reader := bufio.NewReader(f)
	var pending strings.Builder
	for {
		chunk, err := reader.ReadString('\n')
		pending.WriteString(chunk)
		switch {
		case err == io.EOF:
			// No full line yet; keep the partial and wait for more.
			timer := time.NewTimer(t.pollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		case err != nil:
			return fmt.Errorf("error reading node log file: %w", err)
		default:
			line := strings.TrimRight(pending.String(), "\n")
			pending.Reset()
			if strings.Contains(line, "ERROR") {
				t.log.Errorf("%s", line)
			}
		}
	}
}
