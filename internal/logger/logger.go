package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type Config struct {
	Level     slog.Level
	Format    string
	Output    io.Writer
	AddSource bool
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: false,
	}
}

func ParseLevel(s string) slog.Level {
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

func NewHandler(cfg Config) slog.Handler {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	if cfg.Format == "json" {
		return slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{
			Level:     cfg.Level,
			AddSource: cfg.AddSource,
		})
	}

	out := cfg.Output
	noColor := true
	if f, ok := cfg.Output.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		out = colorable.NewColorable(f)
	}

	return tint.NewHandler(out, &tint.Options{
		Level:      cfg.Level,
		AddSource:  cfg.AddSource,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})
}

func Init(cfg Config) {
	slog.SetDefault(slog.New(NewHandler(cfg)))
}

func Debug(msg string, args ...any) { slog.Debug(msg, args...) }
func Info(msg string, args ...any)  { slog.Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }

// ForComponent resolves the default handler at call time, so loggers created
// in package-level vars still follow a later Init.
func ForComponent(component string) *slog.Logger {
	return slog.New(&deferredHandler{attrs: []slog.Attr{slog.String("component", component)}})
}

func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}
