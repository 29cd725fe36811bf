// Package logging holds the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type Options struct {
	Level string `koanf:"level"` // debug|info|warn|error
	JSON  bool   `koanf:"json"`

	// Source adds the calling file and line to every record.
	Source bool `koanf:"source"`
}

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(newLogger(os.Stderr, Options{}))
}

// Configure replaces the logger returned by L. Records go to stderr.
func Configure(opts Options) {
	current.Store(newLogger(os.Stderr, opts))
}

func newLogger(w io.Writer, opts Options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: parseLevel(opts.Level), AddSource: opts.Source}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// parseLevel accepts slog's level names, case-insensitively and with
// offsets such as "warn+2"; anything else is info.
func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func L() *slog.Logger { return current.Load() }

// Timer logs msg at debug level together with the elapsed time once the
// returned func is called.
//
//	defer logging.Timer("xslt transformation", "document", name)()
func Timer(msg string, args ...any) func() {
	start := time.Now()
	return func() {
		L().Debug(msg, append(args, "elapsed", time.Since(start))...)
	}
}
