// Package logging configures structured JSON logging for the binaries.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup configures the standard library logger to emit structured JSON on
// stdout and returns the underlying slog.Logger. Every line carries the
// service name and, when set, the environment. The level is read from
// L2R_LOG_LEVEL and defaults to info.
func Setup(service, env string) *slog.Logger {
	base := New(os.Stdout, service, env, ParseLevel(os.Getenv("L2R_LOG_LEVEL")))
	slog.SetDefault(base)

	// Bridge the standard library logger so *log.Logger consumers share the format.
	log.SetOutput(StdLogger(base, "").Writer())
	log.SetFlags(0)
	log.SetPrefix("")
	return base
}

// New returns a JSON logger writing to w without touching global state.
func New(w io.Writer, service, env string, level slog.Leveler) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})
	attrs := []any{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return slog.New(handler).With(attrs...)
}

// StdLogger adapts logger for components that take a *log.Logger, such as the
// proposer and the HTTP middleware. component is attached to every line.
func StdLogger(logger *slog.Logger, component string) *log.Logger {
	if component = strings.TrimSpace(component); component != "" {
		logger = logger.With(slog.String("component", component))
	}
	std := slog.NewLogLogger(logger.Handler(), slog.LevelInfo)
	std.SetFlags(0)
	return std
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
