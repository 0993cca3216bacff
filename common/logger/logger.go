package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides the process-wide logging facade used by every package.
// It is backed by zap and falls back to a no-op logger until Init is called.

// LogLevel represents log severity levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	// CurrentLevel is the current logging level (default: Info)
	CurrentLevel = LevelInfo

	sugar = zap.NewNop().Sugar()
)

// Init builds the zap logger. format is "json" or "console".
func Init(level, format string) error {
	lvl := ParseLevel(level)
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(lvl))
	cfg.DisableStacktrace = true
	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	CurrentLevel = lvl
	sugar = base.Sugar()
	return nil
}

// Use swaps the underlying logger. Tests use it with zaptest or observer cores.
func Use(l *zap.Logger) {
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// Sync flushes buffered entries.
func Sync() {
	_ = sugar.Sync()
}

// ParseLevel maps a level name to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func toZapLevel(l LogLevel) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Debugf logs a debug message
func Debugf(format string, args ...interface{}) {
	if CurrentLevel > LevelDebug {
		return
	}
	sugar.Debugf(format, args...)
}

// Infof logs an info message
func Infof(format string, args ...interface{}) {
	if CurrentLevel > LevelInfo {
		return
	}
	sugar.Infof(format, args...)
}

// Warnf logs a warning message
func Warnf(format string, args ...interface{}) {
	if CurrentLevel > LevelWarn {
		return
	}
	sugar.Warnf(format, args...)
}

// Errorf logs an error message
func Errorf(format string, args ...interface{}) {
	sugar.Errorf(format, args...)
}

// SetLevel sets the minimum log level
func SetLevel(level LogLevel) {
	CurrentLevel = level
}

// ContextLogger carries structured fields such as request or conversation ids.
type ContextLogger struct {
	s *zap.SugaredLogger
}

// WithContext creates a new logger with context
func WithContext(context map[string]interface{}) *ContextLogger {
	kv := make([]interface{}, 0, len(context)*2)
	for k, v := range context {
		kv = append(kv, k, v)
	}
	return &ContextLogger{s: sugar.With(kv...)}
}

// With returns a child logger with additional key/value pairs.
func (c *ContextLogger) With(kv ...interface{}) *ContextLogger {
	return &ContextLogger{s: c.s.With(kv...)}
}

func (c *ContextLogger) Debugf(format string, args ...interface{}) {
	if CurrentLevel > LevelDebug {
		return
	}
	c.s.Debugf(format, args...)
}

// Infof logs with context
func (c *ContextLogger) Infof(format string, args ...interface{}) {
	if CurrentLevel > LevelInfo {
		return
	}
	c.s.Infof(format, args...)
}

// Warnf logs with context
func (c *ContextLogger) Warnf(format string, args ...interface{}) {
	if CurrentLevel > LevelWarn {
		return
	}
	c.s.Warnf(format, args...)
}

// Errorf logs with context
func (c *ContextLogger) Errorf(format string, args ...interface{}) {
	c.s.Errorf(format, args...)
}
