// Package logging configures the zerolog loggers used by the server and the CLI.
package logging

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// ParseLogLevel parses a level name, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ParseLogFormat parses a format name, defaulting to JSON.
func ParseLogFormat(format string) LogFormat {
	if format == string(FormatText) {
		return FormatText
	}
	return FormatJSON
}

// New creates a logger writing to w (stdout when nil).
func New(level, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if ParseLogFormat(format) == FormatText {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(ParseLogLevel(level)).With().Timestamp().Logger()
}

// Component returns a sub-logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// FromContext retrieves a logger from the context, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// Progress returns a progress callback that logs at most once per step
// (a fraction such as 0.1) plus once on completion.
func Progress(l zerolog.Logger, msg string, step float64) func(float64) {
	var mu sync.Mutex
	next := step
	return func(fraction float64) {
		mu.Lock()
		defer mu.Unlock()
		if fraction < next && fraction < 1 {
			return
		}
		for next <= fraction {
			next += step
		}
		l.Debug().Float64("fraction", fraction).Msg(msg)
	}
}
