// Package logger wires structured logging for the bot. A single slog base
// logger is configured once at startup; components obtain derived loggers
// carrying a stable "component" attribute so log lines can be filtered per
// subsystem.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	initOnce sync.Once
	levelVar slog.LevelVar

	// L is the base logger. It defaults to a text handler on stderr so that
	// code paths exercised before Init (and unit tests) still log somewhere.
	L = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &levelVar}))

	// TG logs Telegram transport and handler events.
	TG = L.With("component", "tg")
	// Quota logs admission control decisions.
	Quota = L.With("component", "quota")
	// Cache logs gallery existence cache activity.
	Cache = L.With("component", "gallery.cache")
	// Pay logs payment processing events.
	Pay = L.With("component", "payments")
	// WH logs webhook delivery events.
	WH = L.With("component", "webhook")
	// App logs application lifecycle events.
	App = L.With("component", "app")
)

// Options configure the base logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is "json" or "text". Empty means text.
	Format string
	// Output overrides the destination; nil means stdout.
	Output io.Writer
}

// Init configures the global logger. It may be called only once; later calls
// are no-ops.
func Init(opts Options) {
	initOnce.Do(func() {
		levelVar.Set(parseLevel(opts.Level))

		out := opts.Output
		if out == nil {
			out = os.Stdout
		}

		var handler slog.Handler
		hopts := &slog.HandlerOptions{Level: &levelVar}
		if strings.EqualFold(opts.Format, "json") {
			handler = slog.NewJSONHandler(out, hopts)
		} else {
			handler = slog.NewTextHandler(out, hopts)
		}

		L = slog.New(handler)
		slog.SetDefault(L)
		rewireComponents()
	})
}

func rewireComponents() {
	TG = L.With("component", "tg")
	Quota = L.With("component", "quota")
	Cache = L.With("component", "gallery.cache")
	Pay = L.With("component", "payments")
	WH = L.With("component", "webhook")
	App = L.With("component", "app")
}

// Component derives a logger for an ad-hoc component name.
func Component(name string) *slog.Logger {
	return L.With("component", name)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
