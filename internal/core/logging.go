package core

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// NewSlogLogger builds a structured logger writing text or json records at
// the given level (debug, info, warn, error).
func NewSlogLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if trimmed := strings.TrimSpace(level); trimmed != "" {
		if err := lvl.UnmarshalText([]byte(trimmed)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
