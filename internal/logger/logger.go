// Package logger wraps zap behind a small field-map interface shared by every
// component of the service.
package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Logger is the logging interface used across the service.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
	With(fields Fields) Logger
	WithError(err error) Logger
	Sync() error
}

// New builds a zap logger for the given level and format ("json" or "console").
func New(levelStr, format string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch levelStr {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// NewStructured returns a Logger backed by zap. It falls back to a no-op
// logger if zap cannot be built, so callers never deal with a nil Logger.
func NewStructured(levelStr, format string) Logger {
	l, err := New(levelStr, format)
	if err != nil {
		return NewNoOp()
	}
	return &zapLogger{l: l}
}

// NewZap adapts an existing *zap.Logger.
func NewZap(l *zap.Logger) Logger { return &zapLogger{l: l} }

// NewTest returns a Logger that writes through testing.TB.
func NewTest(t testing.TB) Logger { return &zapLogger{l: zaptest.NewLogger(t)} }

// NewNoOp returns a Logger that discards everything.
func NewNoOp() Logger { return &zapLogger{l: zap.NewNop()} }

type zapLogger struct {
	l *zap.Logger
}

func (z *zapLogger) Debug(msg string, fields Fields) { z.l.Debug(msg, toZap(fields)...) }
func (z *zapLogger) Info(msg string, fields Fields)  { z.l.Info(msg, toZap(fields)...) }
func (z *zapLogger) Warn(msg string, fields Fields)  { z.l.Warn(msg, toZap(fields)...) }
func (z *zapLogger) Error(msg string, fields Fields) { z.l.Error(msg, toZap(fields)...) }

func (z *zapLogger) With(fields Fields) Logger {
	return &zapLogger{l: z.l.With(toZap(fields)...)}
}

func (z *zapLogger) WithError(err error) Logger {
	return &zapLogger{l: z.l.With(zap.Error(err))}
}

func (z *zapLogger) Sync() error { return z.l.Sync() }

func toZap(fields Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
