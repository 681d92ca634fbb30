// Package dcontext carries a leveled logger on a context.Context: the
// library packages (scanner, detectloop) log through a context-scoped
// Logger, never a bare log.Printf; cmd/redr also logs through the global
// logrus logger directly.
package dcontext

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

type loggerKey struct{}

// Logger is the leveled-logging interface carried on a context. It is
// satisfied by *logrus.Entry.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the logger carried on ctx, falling back to the
// standard logrus logger if none was attached. Extra keys are resolved
// against ctx and attached as fields; field attachment only applies when
// the carried logger is a *logrus.Entry, since arbitrary Logger
// implementations have no WithFields equivalent to attach to.
func GetLogger(ctx context.Context, keys ...interface{}) Logger {
	carried := ctx.Value(loggerKey{})
	entry, isEntry := carried.(*logrus.Entry)
	if !isEntry {
		if logger, ok := carried.(Logger); ok {
			return logger
		}
		entry = logrus.NewEntry(logrus.StandardLogger())
	}

	fields := logrus.Fields{}
	for _, key := range keys {
		if v := ctx.Value(key); v != nil {
			fields[fmt.Sprint(key)] = v
		}
	}
	if len(fields) == 0 {
		return entry
	}
	return entry.WithFields(fields)
}

// WithLogrusEntry attaches a *logrus.Entry directly, for callers that want
// to configure fields/level once at startup.
func WithLogrusEntry(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry)
}
