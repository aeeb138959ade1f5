// Package grovelog is a thin, component-scoped structured logger
// built on log/slog, modeled on ethereum-go-ethereum's log package:
// callers get a named logger via New("component", name) and log with
// alternating key-value pairs.
package grovelog

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// Logger is satisfied by *slog.Logger; it is named so call sites don't
// need to import log/slog themselves.
type Logger = *slog.Logger

var defaultHandler atomic.Pointer[slog.Handler]

// verbosity is the glog-style global level knob: it gates every
// component logger's default handler uniformly, settable independently
// of any individual logger returned by New.
var verbosity = &slog.LevelVar{}

func init() {
	verbosity.Set(slog.LevelWarn)
	h := slog.Handler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: verbosity}))
	defaultHandler.Store(&h)
}

// SetDefault replaces the process-wide handler used by New. Tests use
// this to redirect output to a buffer or to slog.LevelDebug.
func SetDefault(h slog.Handler) {
	defaultHandler.Store(&h)
}

// SetVerbosity adjusts the global level knob in place, taking effect
// for every logger returned by New (past and future) that still uses
// the default handler, without needing to rebuild or reassign any of
// them individually.
func SetVerbosity(level slog.Level) {
	verbosity.Set(level)
}

// New returns a component-scoped logger, e.g.
// grovelog.New("component", "merk", "path", path).
func New(keyvals ...any) Logger {
	return slog.New(*defaultHandler.Load()).With(keyvals...)
}
