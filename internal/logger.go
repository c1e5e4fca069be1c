package internal

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// redactedSuffixes mark attribute keys whose values never reach the log output.
var redactedSuffixes = []string{"secret", "password", "api_key", "token", "signature", "authorization"}

func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	var h slog.Handler

	var l = new(slog.LevelVar) // Info by default
	switch level {
	case "debug":
		l.Set(slog.LevelDebug)
	case "info", "":
	case "warn":
		l.Set(slog.LevelWarn)
	case "error":
		l.Set(slog.LevelError)
	default:
		slog.Default().Warn("Invalid log level. Using default level: info", slog.String("value", level))
	}

	switch env {
	case "prod":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: l,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String("time", a.Value.Time().Format(time.RFC3339Nano))
				}
				return redact(a)
			},
		})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: l,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				return redact(a)
			},
		})
	}

	return slog.New(h).With("service", "tally")
}

func redact(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, suffix := range redactedSuffixes {
		if strings.HasSuffix(key, suffix) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}
