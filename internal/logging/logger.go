package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const EnvLocal = "local"

// New builds the process logger. Local runs get the text handler, every other
// environment gets JSON.
func New(w io.Writer, env, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(env, EnvLocal) {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

// ParseLevel converts a LOG_LEVEL value to slog.Level. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

// Err is the attribute every component uses for errors.
func Err(err error) slog.Attr {
	return slog.String("error", err.Error())
}
