// Package logrus adapts sirupsen/logrus to the core.Logger interface.
package logrus

import (
	"github.com/Swind/go-executor/core"
	"github.com/sirupsen/logrus"
)

// Logger forwards core.Logger calls to a logrus entry.
type Logger struct {
	entry *logrus.Entry
}

var _ core.Logger = (*Logger)(nil)

// New wraps l. A nil l uses logrus.StandardLogger().
func New(l *logrus.Logger) *Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Logger{entry: logrus.NewEntry(l)}
}

// NewWithEntry wraps an entry that may already carry fields.
func NewWithEntry(e *logrus.Entry) *Logger {
	if e == nil {
		return New(nil)
	}
	return &Logger{entry: e}
}

// With returns a logger that adds fields to every message.
func (l *Logger) With(fields ...core.Field) *Logger {
	return &Logger{entry: l.entry.WithFields(toFields(fields))}
}

func (l *Logger) Debug(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Debug(msg)
}

func (l *Logger) Info(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Info(msg)
}

func (l *Logger) Warn(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Warn(msg)
}

func (l *Logger) Error(msg string, fields ...core.Field) {
	l.entry.WithFields(toFields(fields)).Error(msg)
}

// toFields copies core fields into logrus.Fields; error values go under
// logrus.ErrorKey when the key is "error" so formatters render them as errors.
func toFields(fields []core.Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok && f.Key == "error" {
			out[logrus.ErrorKey] = err
			continue
		}
		out[f.Key] = f.Value
	}
	return out
}

// ParseLevel sets the level of l from a name such as "debug" or "warn".
func ParseLevel(l *logrus.Logger, name string) error {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	return nil
}
