// Package log owns the process-wide slog logger: tint on a terminal,
// JSON when shipping logs off the device.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var (
	global  *slog.Logger
	setupMu sync.Mutex
	isSetUp bool
)

// Options selects level, format and destination. The zero value logs
// info and above to stderr in console format.
type Options struct {
	Level  string    // debug, info, warn or error
	Format string    // console or json; json by default when GO_ENV=production
	Output io.Writer // os.Stderr when nil
}

// Init is Setup with only a level.
func Init(level string) {
	Setup(Options{Level: level})
}

// Setup installs the global logger and makes it slog's default. Only the
// first call has any effect.
func Setup(opts Options) {
	setupMu.Lock()
	defer setupMu.Unlock()
	if isSetUp {
		return
	}
	global = New(opts)
	slog.SetDefault(global)
	isSetUp = true
}

// New builds a logger from opts without installing it.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(opts.Level)

	format := opts.Format
	if format == "" && os.Getenv("GO_ENV") == "production" {
		format = "json"
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	}

	// Colors only make sense on a terminal; anything else gets plain text.
	tty := out == os.Stderr || out == os.Stdout
	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !tty,
	}))
}

// ParseLevel is forgiving: case and surrounding space are ignored and
// anything unknown means info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L returns the global logger, setting up the default one on first use.
func L() *slog.Logger {
	Setup(Options{})
	setupMu.Lock()
	defer setupMu.Unlock()
	return global
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }

// With returns the global logger with args attached.
func With(args ...any) *slog.Logger { return L().With(args...) }
