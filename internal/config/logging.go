package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and carries the raw JSON
// payloads the provider clients exchange per generate, critique, and
// grade call. A refinement epoch is three round trips, so trace output
// grows fast; turn it on only when a provider misbehaves.
const LevelTrace = slog.Level(-8)

// ParseLogLevel maps the log_level config value to an [slog.Level].
// Matching is case-insensitive and ignores surrounding whitespace; the
// empty string means info. "warning" is accepted as an alias for
// "warn". Anything else is an error naming the valid values.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
}

// ReplaceLogLevelNames labels [LevelTrace] records as "TRACE". slog
// prints unknown levels relative to the nearest named one ("DEBUG-4"),
// which is useless in a grep. Install it as the handler's ReplaceAttr
// when building a logger that may run at trace level.
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
