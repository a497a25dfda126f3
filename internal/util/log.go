// Package util provides shared logging and traffic statistics.
package util

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm's default logger.
// All output goes to stderr by default (pterm's default).

func LogTrace(format string, args ...interface{}) {
	pterm.DefaultLogger.Trace(fmt.Sprintf(format, args...))
}

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// SetLevel sets the logger level by name (trace, debug, info, warn, error).
func SetLevel(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		pterm.DefaultLogger.Level = pterm.LogLevelTrace
	case "debug":
		pterm.DefaultLogger.Level = pterm.LogLevelDebug
	case "", "info":
		pterm.DefaultLogger.Level = pterm.LogLevelInfo
	case "warn", "warning":
		pterm.DefaultLogger.Level = pterm.LogLevelWarn
	case "error":
		pterm.DefaultLogger.Level = pterm.LogLevelError
	default:
		return fmt.Errorf("unknown log level %q", name)
	}
	return nil
}
