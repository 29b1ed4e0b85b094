// Package logger builds the application's slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a level.
// Anything else is info.
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

// New returns a text logger at level writing to sink, which is "stderr",
// "stdout", "discard" or "file:<path>". The returned closer releases the
// file, if one was opened. A file that cannot be opened falls back to stderr.
func New(level, sink string) (*slog.Logger, io.Closer) {
	w, closer := open(sink)
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func open(sink string) (io.Writer, io.Closer) {
	switch {
	case sink == "" || sink == "stderr":
		return os.Stderr, nopCloser{}
	case sink == "stdout":
		return os.Stdout, nopCloser{}
	case sink == "discard":
		return io.Discard, nopCloser{}
	case strings.HasPrefix(sink, "file:"):
		path := strings.TrimPrefix(sink, "file:")
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err == nil {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
			if err == nil {
				return f, f
			}
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown log sink %q, using stderr\n", sink)
	}
	return os.Stderr, nopCloser{}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
