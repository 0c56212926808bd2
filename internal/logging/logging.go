// Package logging builds the zap loggers used for the library's own
// diagnostics. Telemetry shipped to the queue never goes through here.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Name is the logger name attached to every diagnostic entry.
const Name = "chouette-iot"

var (
	defaultOnce   sync.Once
	defaultLogger *zap.Logger
)

// Default returns the process-wide diagnostic logger: JSON on stderr at
// warn level, so store failures are visible without any setup.
func Default() *zap.Logger {
	defaultOnce.Do(func() {
		logger, err := New("warn", true)
		if err != nil {
			logger = zap.NewNop()
		}
		defaultLogger = logger
	})
	return defaultLogger
}

// New builds a named logger at the given level. Console encoding is used
// when jsonFormat is false.
func New(level string, jsonFormat bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if !jsonFormat {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	return logger.Named(Name), nil
}

// OrDefault returns logger, or Default when logger is nil.
func OrDefault(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return Default()
	}
	return logger
}

// Truncate shortens payloads attached to warnings to at most max bytes,
// never splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
