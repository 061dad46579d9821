package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs the process logger: JSON to stdout at level, plus any
// sinks such as a PGHandler. Each sink applies its own level filter.
func Setup(level string, sinks ...slog.Handler) slog.Handler {
	handler := newHandler(os.Stdout, level, sinks...)
	slog.SetDefault(slog.New(handler))
	return handler
}

func newHandler(w io.Writer, level string, sinks ...slog.Handler) slog.Handler {
	stdout := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	if len(sinks) == 0 {
		return stdout
	}
	return fanout(append([]slog.Handler{stdout}, sinks...))
}

// ParseLevel maps debug/info/warn/error to a slog level; anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanout hands each record to every enabled handler. A failing sink does not
// keep the record from the others.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
