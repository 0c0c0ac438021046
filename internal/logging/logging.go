// Package logging builds the zap loggers used by pharmanet binaries and
// adapts them to the service logging interface.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pharmanet/internal/core"
)

// New builds a logger. level is one of debug, info, warn, error (default
// info); format is json (default) or console. serviceName and the host name
// are attached to every entry. Entries go to outputs when any are given,
// otherwise JSON logs to stdout and console logs to stderr.
func New(level, format, serviceName string, outputs ...string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	if paths := nonEmpty(outputs); len(paths) > 0 {
		cfg.OutputPaths = paths
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if serviceName != "" {
		logger = logger.With(zap.String("service_name", serviceName))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		logger = logger.With(zap.String("hostname", hostname))
	}
	return logger, nil
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ServiceLogger adapts a zap logger to core.Logger. Arguments are passed as
// alternating key/value pairs.
type ServiceLogger struct {
	sugar *zap.SugaredLogger
}

var _ core.Logger = (*ServiceLogger)(nil)

// NewServiceLogger wraps logger; a nil logger discards everything.
func NewServiceLogger(logger *zap.Logger) *ServiceLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceLogger{sugar: logger.Sugar()}
}

func (l *ServiceLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *ServiceLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ServiceLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ServiceLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// Sync flushes buffered entries.
func (l *ServiceLogger) Sync() error { return l.sugar.Sync() }
