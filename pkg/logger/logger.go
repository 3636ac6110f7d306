// Package logger is the structured local log channel. It wraps zap with the
// named event categories the rest of the toolkit emits (business, security,
// performance, transaction, system) and applies field redaction centrally.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/opscribe/opscribe/pkg/redact"
)

// Config controls output encoding and ambient metadata. Service is required.
type Config struct {
	Level       string
	Pretty      bool
	Service     string
	Environment string

	// RedactKeys extends the default sensitive-key set applied to category
	// payloads before they are written.
	RedactKeys []string

	// File enables rotated file output in addition to stdout.
	File     string
	MaxSize  int // megabytes
	MaxAge   int // days
	Backups  int
	Compress bool
}

// Logger is an explicitly constructed logging context. Pass it to whatever
// needs it instead of reaching for a package global.
type Logger struct {
	z    *zap.Logger
	keys *redact.KeySet
}

// New builds a Logger or fails fast on an invalid configuration.
func New(cfg Config) (*Logger, error) {
	if cfg.Service == "" {
		return nil, fmt.Errorf("logger: service name is required")
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		if cfg.Level != "" {
			return nil, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
		}
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.Pretty {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(devCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	sink := zapcore.AddSync(os.Stdout)
	if cfg.File != "" {
		rotated := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSize, 100),
			MaxAge:     orDefault(cfg.MaxAge, 14),
			MaxBackups: orDefault(cfg.Backups, 5),
			Compress:   cfg.Compress,
		})
		sink = zapcore.NewMultiWriteSyncer(sink, rotated)
	}

	core := zapcore.NewCore(enc, sink, level)
	z := zap.New(core).With(
		zap.String("service", cfg.Service),
		zap.String("environment", orDefaultStr(cfg.Environment, "development")),
	)

	return &Logger{z: z, keys: redact.NewKeySet(cfg.RedactKeys...)}, nil
}

// Nop returns a logger that discards everything. For tests.
func Nop() *Logger {
	return &Logger{z: zap.NewNop(), keys: redact.NewKeySet()}
}

// FromZap wraps an existing zap logger. Used by tests that observe output.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z, keys: redact.NewKeySet()}
}

// Zap exposes the underlying zap logger for framework adapters (ginzap).
func (l *Logger) Zap() *zap.Logger { return l.z }

// With returns a child logger carrying extra fixed context.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...), keys: l.keys}
}

// Trace maps to zap's debug level; zap has no level below it.
func (l *Logger) Trace(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.z.Fatal(msg, fields...) }

// LogError mirrors Error but tolerates a nil error.
func (l *Logger) LogError(err error, msg string, fields ...zap.Field) {
	if err == nil {
		return
	}
	l.z.Error(msg, append(fields, zap.Error(err))...)
}

// Business records a business-level event.
func (l *Logger) Business(event string, data map[string]interface{}) {
	l.category("business", event, data)
}

// Security records a security-relevant event.
func (l *Logger) Security(event string, data map[string]interface{}) {
	l.category("security", event, data)
}

// Performance records an operation timing.
func (l *Logger) Performance(op string, durationMs int64, data map[string]interface{}) {
	l.z.Info(op,
		zap.String("type", "performance"),
		zap.Int64("duration_ms", durationMs),
		zap.Any("data", l.sanitize(data)),
	)
}

// Transaction records an event tied to a transaction identifier.
func (l *Logger) Transaction(id, op string, data map[string]interface{}) {
	l.z.Info(op,
		zap.String("type", "transaction"),
		zap.String("transaction_id", id),
		zap.Any("data", l.sanitize(data)),
	)
}

// System records a process-level event (startup, shutdown, sink selection).
func (l *Logger) System(event string, data map[string]interface{}) {
	l.category("system", event, data)
}

func (l *Logger) category(kind, event string, data map[string]interface{}) {
	l.z.Info(event,
		zap.String("type", kind),
		zap.Any("data", l.sanitize(data)),
	)
}

func (l *Logger) sanitize(data map[string]interface{}) interface{} {
	if len(data) == 0 {
		return map[string]interface{}{}
	}
	return redact.Value(data, redact.Options{Keys: l.keys})
}

// Sync flushes buffered output. Errors on stdout sync are expected and
// ignored by callers.
func (l *Logger) Sync() error { return l.z.Sync() }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
