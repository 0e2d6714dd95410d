// Package logging configures structured logging for sensormon.
//
// It wraps log/slog so every component logs the same way:
//
//	logging.Init(logging.Options{Level: slog.LevelInfo})
//	log := logging.Component("writer")
//	log.Info("file opened", "sensor", name, "path", path)
//
// Text output goes through tint and is colored only when the writer is a
// terminal. JSON output uses the standard slog JSON handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Format selects the handler used for log output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures the global logger.
type Options struct {
	Level  slog.Level
	Format Format
	Writer io.Writer // defaults to os.Stderr
}

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Init installs the global logger and makes it the slog default.
func Init(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var handler slog.Handler
	switch opts.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     opts.Level,
			AddSource: opts.Level == slog.LevelDebug,
		})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			AddSource:  opts.Level == slog.LevelDebug,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(w),
		})
	}

	l := slog.New(handler)

	mu.Lock()
	logger = l
	mu.Unlock()

	slog.SetDefault(l)
	return l
}

// InitWithHandler installs a logger built on a custom handler. Tests use it
// to capture output.
func InitWithHandler(handler slog.Handler) *slog.Logger {
	l := slog.New(handler)

	mu.Lock()
	logger = l
	mu.Unlock()

	slog.SetDefault(l)
	return l
}

// Logger returns the global logger, initializing a text logger at info level
// on first use.
func Logger() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()

	if l == nil {
		return Init(Options{Level: slog.LevelInfo})
	}
	return l
}

// Component returns a logger tagged with the component name.
func Component(name string) *slog.Logger {
	return Logger().With("component", name)
}

// Or returns l when it is set and the named component logger otherwise.
func Or(l *slog.Logger, component string) *slog.Logger {
	if l != nil {
		return l
	}
	return Component(component)
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level.
// Unknown names map to info.
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

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
