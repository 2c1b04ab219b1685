package observability

import (
	"fmt"
	"os"
	"sort"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Level string
	Dev   bool
	// File, when set, receives a copy of every entry and is rotated daily.
	File string
}

type Logger struct {
	base *zap.Logger
}

func NewLogger(cfg LoggerConfig) (*Logger, error) {
	lvl := levelFromString(cfg.Level)

	var encoder zapcore.Encoder
	if cfg.Dev {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderCfg.MessageKey = "message"
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), lvl)}
	if cfg.File != "" {
		writer, err := rotatelogs.New(
			cfg.File+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.File),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithMaxAge(7*24*time.Hour),
		)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		fileEncoder := zap.NewProductionEncoderConfig()
		fileEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
		fileEncoder.MessageKey = "message"
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoder), zapcore.AddSync(writer), lvl))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{base: base}, nil
}

// NewNopLogger discards everything. Used by tests.
func NewNopLogger() *Logger {
	return &Logger{base: zap.NewNop()}
}

// NewZapLogger wraps an existing zap logger, e.g. one built by zaptest.
func NewZapLogger(base *zap.Logger) *Logger {
	return &Logger{base: base}
}

func (l *Logger) Debug(message string, fields map[string]any) {
	l.base.Debug(message, toFields(fields)...)
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.base.Info(message, toFields(fields)...)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.base.Warn(message, toFields(fields)...)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.base.Error(message, toFields(fields)...)
}

func (l *Logger) Sync() error {
	return l.base.Sync()
}

func toFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
