package telemetry

import (
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// levelVar holds the active log level so it can be swapped at runtime when
// the config file changes (see config.WatchLogLevel).
var levelVar = &slog.LevelVar{}

// currentFormat remembers the handler format chosen at startup; the format
// cannot change on reload, only the level.
var currentFormat atomic.Value

// SetupLogger installs the global slog default logger.
//
// format: "json" → JSONHandler (machine readable, production default);
// anything else → TextHandler (local development).
// level: "debug", "info", "warn", "error" (case-insensitive); defaults to "info".
//
// The logger is installed as the default so slog.Info/Warn/Error calls
// anywhere in the application use it without threading a *slog.Logger around.
func SetupLogger(format, level string) {
	levelVar.Set(parseLevel(level))
	currentFormat.Store(strings.ToLower(format))

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: levelVar.Level() == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", levelVar.Level().String())
}

// SetLogLevel adjusts the active level without rebuilding the handler.
// Called from the config reload hook.
func SetLogLevel(level string) {
	lvl := parseLevel(level)
	if lvl == levelVar.Level() {
		return
	}
	levelVar.Set(lvl)
	slog.Info("log level changed", "level", lvl.String())
}

func parseLevel(level string) slog.Level {
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
