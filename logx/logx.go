// Package logx owns the process logger: a logiface logger over the stumpy
// JSON sink, stamping every record with a monotonically increasing
// sequence number so the sink sees the §6 syslog contract
// ({trace..fatal} levels, ordered records, pluggable destination).
//
// One *Logger is built in cmd/rtu and passed down to every service
// constructor; there is no package-level singleton (§9 "Cyclic
// structures").
package logx

import (
	"io"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Builder is the event builder handed back by the level methods; callers
// chain stumpy/logiface field methods on it and finish with Log/Logf.
type Builder = logiface.Builder[*stumpy.Event]

// Logger wraps the underlying logiface logger with the sequence counter.
type Logger struct {
	l   *logiface.Logger[*stumpy.Event]
	seq *atomic.Uint64
}

// New builds a Logger writing JSON records to w at the given minimum
// level. Records carry "lvl", "seq", "msg" and any caller fields.
func New(w io.Writer, level logiface.Level) *Logger {
	return &Logger{
		l: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
			stumpy.L.WithLevel(level),
		),
		seq: &atomic.Uint64{},
	}
}

// ParseLevel maps the §6 level names onto logiface levels. Unknown names
// resolve to info.
func ParseLevel(s string) logiface.Level {
	switch s {
	case "trace":
		return logiface.LevelTrace
	case "debug":
		return logiface.LevelDebug
	case "info":
		return logiface.LevelInformational
	case "warning", "warn":
		return logiface.LevelWarning
	case "error":
		return logiface.LevelError
	case "fatal":
		return logiface.LevelEmergency
	default:
		return logiface.LevelInformational
	}
}

func (l *Logger) build(b *Builder) *Builder {
	if b.Enabled() {
		b.Uint64("seq", l.seq.Add(1))
	}
	return b
}

// Trace .. Fatal open a builder at the corresponding §6 level. Fatal maps
// onto the syslog emergency level; it does not exit the process (exit
// policy belongs to cmd/rtu, not the logger).
func (l *Logger) Trace() *Builder   { return l.build(l.l.Trace()) }
func (l *Logger) Debug() *Builder   { return l.build(l.l.Debug()) }
func (l *Logger) Info() *Builder    { return l.build(l.l.Info()) }
func (l *Logger) Warning() *Builder { return l.build(l.l.Warning()) }
func (l *Logger) Err() *Builder     { return l.build(l.l.Err()) }
func (l *Logger) Fatal() *Builder   { return l.build(l.l.Emerg()) }

// Seq returns the last assigned sequence number, for tests and health
// reporting.
func (l *Logger) Seq() uint64 { return l.seq.Load() }
