// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/commerceblock/guardnode/guard"
	"github.com/jrick/logrotate/rotator"
)

const (
	maxLogRolls = 16
)

// logRotator is one of the logging outputs. It should be closed on
// application shutdown.
var logRotator *rotator.Rotator

// logWriter implements an io.Writer that outputs to a rotating log file and
// mirrors to stdout.
type logWriter struct {
	*rotator.Rotator
}

// Write writes the data in p to stdout and the log file.
func (w logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	return w.Rotator.Write(p)
}

// InitLogging initializes the logging rotator to write logs to logFilename
// and create roll files in the same directory. InitLogging must be called
// before the package-global log rotator variable is used.
func InitLogging(logFilename, lvl string, utc bool) (lm *guard.LoggerMaker, closeFn func()) {
	logDirectory := filepath.Dir(logFilename)
	err := os.MkdirAll(logDirectory, 0700)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	logRotator, err = rotator.New(logFilename, 32*1024, false, maxLogRolls)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}
	lm, err = guard.NewLoggerMaker(logWriter{logRotator}, lvl, utc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create custom logger: %v\n", err)
		os.Exit(1)
	}
	return lm, func() {
		logRotator.Close()
	}
}
