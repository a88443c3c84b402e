package log

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Format selects the log encoding.
type Format int

const (
	// FormatConsole is human-readable tint output.
	FormatConsole Format = iota
	// FormatJSON is one JSON object per record.
	FormatJSON
)

// Options configures New.
type Options struct {
	// Verbose lowers the level to Debug. The default level is Info.
	Verbose bool

	// Format selects console or JSON output.
	Format Format

	// NoColor disables colour even on a terminal.
	NoColor bool
}

// New creates a logger writing to w. Output is always wrapped in a
// SecureHandler.
func New(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	switch opts.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    opts.NoColor || !IsTerminal(w),
		})
	}

	return slog.New(NewSecureHandler(handler))
}

// IsTerminal reports whether w is a terminal. Anything that is not an
// *os.File is treated as a pipe.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
