package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

var Logger *slog.Logger

var level = new(slog.LevelVar) // adjusted by Init once config is loaded

func init() {
	Logger = slog.New(newHandler(os.Stdout, os.Getenv("LOG_FORMAT")))
}

func newHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// Init reconfigures the process logger from the loaded config.
// An empty format keeps whatever LOG_FORMAT selected at startup.
func Init(lvl, format string) {
	level.Set(ParseLevel(lvl))
	if format != "" {
		Logger = slog.New(newHandler(os.Stdout, format))
	}
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Shortcut helpers. They resolve Logger on every call so Init takes effect.
func Info(msg string, args ...any)  { Logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger.Warn(msg, args...) }
func Error(msg string, args ...any) { Logger.Error(msg, args...) }
func Debug(msg string, args ...any) { Logger.Debug(msg, args...) }

func Fatal(msg string, args ...any) {
	Logger.Error(msg, args...)
	os.Exit(1)
}

// WrapSlog returns a stdlib logger that forwards to slog at debug level,
// for libraries that only accept *log.Logger (goburrow handlers).
func WrapSlog(args ...any) *log.Logger {
	return slog.NewLogLogger(Logger.With(args...).Handler(), slog.LevelDebug)
}
