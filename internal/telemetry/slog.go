package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName tags every record written through the configured handler
const ServiceName = "msgcore"

// ParseLevel maps a configured level name to a slog.Level. Unknown names mean info.
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

// NewLogHandler builds the gateway's log handler over w.
// format "json" selects JSON output and anything else key=value text.
// Source locations are only added at debug level.
func NewLogHandler(w io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return handler.WithAttrs([]slog.Attr{slog.String("service", ServiceName)})
}

// SetupLogger installs a stdout handler as the slog default
func SetupLogger(format, level string) {
	slog.SetDefault(slog.New(NewLogHandler(os.Stdout, format, level)))
	slog.Info("logger initialised", "format", format, "level", ParseLevel(level).String())
}
