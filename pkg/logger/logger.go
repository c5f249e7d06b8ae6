// Package logger builds the zap logger used across classroll and carries
// domain field helpers and context propagation.
package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Format is "json" or "console". Empty or "auto" picks console on a TTY, json otherwise.
	Format string

	// File enables a rotating file sink in addition to stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Development enables caller info and stack traces on warnings.
	Development bool
}

// DefaultOptions returns options for local runs.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		MaxSizeMB:  16,
		MaxBackups: 32,
		MaxAgeDays: 365,
		Compress:   true,
	}
}

// ParseLevel parses a level name; unknown names mean info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONSTRUCTION
// ══════════════════════════════════════════════════════════════════════════════

// New builds a logger writing to stderr and, when configured, to a rotating file.
func New(opts Options) *zap.Logger {
	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	format := opts.Format
	if format == "" || format == "auto" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "console"
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var stderrEnc zapcore.Encoder
	if format == "console" {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		stderrEnc = zapcore.NewConsoleEncoder(consoleCfg)
	} else {
		stderrEnc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stderrEnc, zapcore.Lock(os.Stderr), level),
	}

	if opts.File != "" {
		sink := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(sink), level))
	}

	zopts := []zap.Option{zap.AddCaller()}
	if opts.Development {
		zopts = append(zopts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		zopts = append(zopts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zopts...)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type (
	ctxKey       struct{}
	requestIDKey struct{}
)

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// WithRequestID stores a correlation id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the correlation id stored in ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN FIELDS
// ══════════════════════════════════════════════════════════════════════════════

func UserID(id string) zap.Field           { return zap.String("user_id", id) }
func TeacherID(id string) zap.Field        { return zap.String("teacher_id", id) }
func StudentID(id string) zap.Field        { return zap.String("student_id", id) }
func Subject(name string) zap.Field        { return zap.String("subject", name) }
func Stage(stage string) zap.Field         { return zap.String("stage", stage) }
func Command(name string) zap.Field        { return zap.String("command", name) }
func RequestID(id string) zap.Field        { return zap.String("request_id", id) }
func Component(name string) zap.Field      { return zap.String("component", name) }
func Operation(name string) zap.Field      { return zap.String("operation", name) }
func Latency(d time.Duration) zap.Field    { return zap.Duration("latency", d) }
func Outcome(outcome string) zap.Field     { return zap.String("outcome", outcome) }
func Version(version uint64) zap.Field     { return zap.Uint64("version", version) }
func Recipient(recipient string) zap.Field { return zap.String("recipient", recipient) }
