// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

package rfb

import (
	"github.com/sirupsen/logrus"
)

// Field represents a structured logging field with a key-value pair.
type Field struct {
	Key   string
	Value interface{}
}

// Logger defines the interface for structured logging throughout the RFB library.
type Logger interface {
	// Debug logs debug-level messages with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs info-level messages with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs warning-level messages with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs error-level messages with optional structured fields.
	Error(msg string, fields ...Field)

	// With creates a new logger instance with the provided fields pre-populated.
	With(fields ...Field) Logger
}

// NoOpLogger is a Logger implementation that discards all log messages.
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}

// With returns a new NoOpLogger instance (ignores fields).
func (l *NoOpLogger) With(fields ...Field) Logger {
	return &NoOpLogger{}
}

// LogrusLogger backs the Logger interface with github.com/sirupsen/logrus,
// translating structured Fields into logrus.Fields.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps an existing *logrus.Logger. If logger is nil a
// default logrus.Logger at Info level writing to stderr is created.
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

func toLogrusFields(fields []Field) logrus.Fields {
	if len(fields) == 0 {
		return nil
	}
	f := make(logrus.Fields, len(fields))
	for _, field := range fields {
		f[field.Key] = field.Value
	}
	return f
}

func (l *LogrusLogger) Debug(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, fields ...Field) {
	l.entry.WithFields(toLogrusFields(fields)).Error(msg)
}

// With returns a new LogrusLogger with additional context fields attached
// to every subsequent log call.
func (l *LogrusLogger) With(fields ...Field) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(toLogrusFields(fields))}
}
