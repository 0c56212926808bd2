// Package logparse maps severity names between log producers, slog levels
// and the names shipped in log records.
package logparse

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// SeverityRegex matches common severity levels in log text.
var SeverityRegex = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL|CRITICAL)\b`)

// Extra slog levels for severities slog does not name.
const (
	LevelTrace    = slog.LevelDebug - 4
	LevelCritical = slog.LevelError + 4
)

// LevelNotSet ships everything.
const LevelNotSet = slog.Level(-1 << 10)

// NormalizeSeverity converts various severity level formats to consistent all caps short forms.
func NormalizeSeverity(severity string) string {
	normalized := strings.ToUpper(strings.TrimSpace(severity))

	switch normalized {
	case "TRACE", "TRAC", "TRC":
		return "TRACE"
	case "DEBUG", "DEBU", "DBG", "DEB":
		return "DEBUG"
	case "INFO", "INFORMATION", "INF":
		return "INFO"
	case "WARN", "WARNING", "WRNG", "WRN":
		return "WARN"
	case "ERROR", "ERR", "ERRO":
		return "ERROR"
	case "FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT":
		return "FATAL"
	case "PANIC", "PNC":
		return "FATAL"
	default:
		if len(normalized) >= 4 {
			prefix := normalized[:4]
			switch prefix {
			case "INFO":
				return "INFO"
			case "WARN":
				return "WARN"
			case "ERRO":
				return "ERROR"
			case "DEBU":
				return "DEBUG"
			case "TRAC":
				return "TRACE"
			case "FATA", "CRIT":
				return "FATAL"
			}
		}
		return "INFO"
	}
}

// ExtractSeverityFromText extracts severity level from log message text.
func ExtractSeverityFromText(message string) string {
	matches := SeverityRegex.FindStringSubmatch(message)
	if len(matches) > 1 {
		return NormalizeSeverity(matches[1])
	}
	return "INFO"
}

// PinoLevelToString converts pino/bunyan numeric levels to strings.
func PinoLevelToString(level int) string {
	switch {
	case level < 20:
		return "TRACE"
	case level < 30:
		return "DEBUG"
	case level < 40:
		return "INFO"
	case level < 50:
		return "WARN"
	case level < 60:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SeverityLevel maps a normalized severity to its slog level.
func SeverityLevel(severity string) slog.Level {
	switch NormalizeSeverity(severity) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "FATAL":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// ParseThreshold parses the minimum level to ship. NOTSET or an empty
// name ships everything. Numeric values use the 10/20/30/40/50 scale
// (DEBUG..CRITICAL) that CHOUETTE_LOG_LEVEL has always accepted.
func ParseThreshold(name string) (slog.Level, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(name))
	switch trimmed {
	case "", "NOTSET", "ALL":
		return LevelNotSet, nil
	}

	if n, err := strconv.Atoi(trimmed); err == nil {
		if n <= 0 {
			return LevelNotSet, nil
		}
		return numericLevel(n), nil
	}

	switch trimmed {
	case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "FATAL", "CRITICAL":
		return SeverityLevel(trimmed), nil
	}
	return 0, fmt.Errorf("logparse: unknown log level %q", name)
}

// numericLevel maps 10/20/30/40/50 onto slog levels, interpolating between.
func numericLevel(n int) slog.Level {
	// 20 (INFO) -> 0; every 10 steps is 4 slog steps.
	return slog.Level((n - 20) * 4 / 10)
}

// LevelName returns the level name written into log records.
func LevelName(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "TRACE"
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARNING"
	case level < LevelCritical:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}
