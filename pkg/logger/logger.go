// Package logger builds the zerolog logger shared by the server and CLI.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON lines to w at the named level. Unknown
// levels fall back to info. pretty switches to a human readable console
// format for local development.
func New(level string, pretty bool, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// ForEnvironment picks the level and format conventional for env.
func ForEnvironment(env, level string) zerolog.Logger {
	if level == "" {
		level = "debug"
		if env == "production" {
			level = "info"
		}
	}
	return New(level, env == "development", os.Stdout)
}

// Prefix shortens an opaque secret-bearing value such as an OAuth state to
// something safe to correlate in logs.
func Prefix(s string) string {
	const n = 8
	if len(s) <= n {
		return strings.Repeat("*", len(s))
	}
	return s[:n] + "..."
}
