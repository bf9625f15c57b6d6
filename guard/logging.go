// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package guard

import (
	"fmt"
	"io"
	"strings"

	"github.com/decred/slog"
)

// Every subsystem constructor accepts a Logger. All logging should take place
// through the provided logger.
type Logger = slog.Logger

// LoggerMaker allows creation of new log subsystems with predefined levels.
type LoggerMaker struct {
	*slog.Backend
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
}

// NewLoggerMaker parses the debug level string into a new *LoggerMaker. The
// debugLevel string can specify a single verbosity for the entire system
// ("trace", "debug", "info", "warn", "error", "critical") or the verbosity
// for individual subsystems, separating subsystems by commas and assigning
// each specifically ("RPC=debug,LIFE=trace").
func NewLoggerMaker(be io.Writer, debugLevel string, utc bool) (*LoggerMaker, error) {
	var opts []slog.BackendOption
	if utc {
		opts = append(opts, slog.WithFlags(slog.LUTC))
	}
	lm := &LoggerMaker{
		Backend:      slog.NewBackend(be, opts...),
		Levels:       make(map[string]slog.Level),
		DefaultLevel: slog.LevelDebug,
	}
	if debugLevel == "" {
		return lm, nil
	}

	// When the specified string doesn't have any delimiters, treat it as the
	// log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		lvl, ok := slog.LevelFromString(debugLevel)
		if !ok {
			return nil, fmt.Errorf("the specified debug level [%v] is invalid", debugLevel)
		}
		lm.DefaultLevel = lvl
		return lm, nil
	}

	// Split the specified string into subsystem/level pairs and update the
	// levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return nil, fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%v]", logLevelPair)
		}
		fields := strings.Split(logLevelPair, "=")
		if len(fields) != 2 {
			return nil, fmt.Errorf("the specified debug level has an invalid format [%v]", logLevelPair)
		}
		subsys, levelStr := fields[0], fields[1]
		lvl, ok := slog.LevelFromString(levelStr)
		if !ok {
			return nil, fmt.Errorf("the specified debug level [%v] is invalid", levelStr)
		}
		lm.Levels[subsys] = lvl
	}
	return lm, nil
}

// SubLogger creates a Logger with a subsystem name "parent[name]", using any
// known log level for the parent subsystem, defaulting to the DefaultLevel if
// the parent does not have an explicitly set level.
func (lm *LoggerMaker) SubLogger(parent, name string) Logger {
	// Use the parent logger's log level, if set.
	level, ok := lm.Levels[parent]
	if !ok {
		level = lm.DefaultLevel
	}
	logger := lm.Backend.Logger(fmt.Sprintf("%s[%s]", parent, name))
	logger.SetLevel(level)
	return logger
}

// NewLogger creates a new Logger for the subsystem with the given name. If a
// log level is specified, it is used for the Logger. Otherwise the DefaultLevel
// is used.
func (lm *LoggerMaker) NewLogger(name string, level ...slog.Level) Logger {
	lvl := lm.DefaultLevel
	if len(level) > 0 {
		lvl = level[0]
	}
	if explicit, ok := lm.Levels[name]; ok {
		lvl = explicit
	}
	logger := lm.Backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}

// StdOutLogger creates a Logger with the provided name and log level that
// writes to stdout. Mostly of use in tests.
func StdOutLogger(name string, lvl slog.Level, utc bool, out io.Writer) Logger {
	var opts []slog.BackendOption
	if utc {
		opts = append(opts, slog.WithFlags(slog.LUTC))
	}
	logger := slog.NewBackend(out, opts...).Logger(name)
	logger.SetLevel(lvl)
	return logger
}
