// Package log provides structured JSON logging with stream context.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/chatwire/types"
)

// Logger provides structured logging with stream context.
// A nil *Logger discards everything.
type Logger struct {
	zap *zap.Logger
}

// Option configures a Logger at construction.
type Option func(*options)

type options struct {
	level zapcore.Level
	w     io.Writer
}

// WithLevel sets the minimum level. Default is debug.
func WithLevel(level zapcore.Level) Option {
	return func(o *options) { o.level = level }
}

// WithWriter sets the output. Default is os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.w = w }
}

// ParseLevel converts "debug", "info", "warn" or "error" to a zap level.
// Empty input yields info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// NewLogger creates a client-level logger with no stream context.
func NewLogger(opts ...Option) *Logger {
	o := options{level: zapcore.DebugLevel, w: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(o.w),
		o.level,
	)
	return &Logger{zap: zap.New(core)}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// ForStream returns a child logger carrying the stream identity fields.
func (l *Logger) ForStream(meta types.StreamMeta) *Logger {
	if l == nil {
		return nil
	}
	fields := []zap.Field{zap.String("stream", string(meta.Kind))}
	if meta.ConversationID != "" {
		fields = append(fields, zap.String("conversation_id", meta.ConversationID))
	}
	if meta.UserID != "" {
		fields = append(fields, zap.String("user_id", meta.UserID))
	}
	if meta.UploadID != "" {
		fields = append(fields, zap.String("upload_id", meta.UploadID))
	}
	return &Logger{zap: l.zap.With(fields...)}
}

// With returns a child logger with one extra context field.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{zap: l.zap.With(zap.Any(key, value))}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.zap.Sync()
}
