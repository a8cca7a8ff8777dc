package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var Log *slog.Logger

var level = new(slog.LevelVar)

func init() {
	SetLevel(os.Getenv("LOG_LEVEL"))
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	Log = slog.New(handler)
}

// SetLevel applies to both the slog logger and the zerolog global logger.
func SetLevel(name string) {
	l := ParseLevel(name)
	level.Set(l)
	switch l {
	case slog.LevelDebug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case slog.LevelWarn:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case slog.LevelError:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// SetOutput swaps the destination; the CLI sends logs to stderr so stdout stays readable.
func SetOutput(w io.Writer) {
	Log = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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
