// Package logger holds the process-wide zap logger.
//
// Init is called once from main; packages then log through the helpers or
// through Named children. The level lives in an AtomicLevel and can be
// changed while running via SetLevel or the handler returned by Level.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu          sync.RWMutex
	base        *zap.Logger // for Named children
	helpers     *zap.Logger // base with one caller frame skipped
	atomicLevel = zap.NewAtomicLevel()
	once        sync.Once
)

// Init builds the global logger. format is "json" (default) or "console".
// Only the first call has an effect.
func Init(level, format string) error {
	var initErr error
	once.Do(func() {
		if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
			initErr = fmt.Errorf("parse log level %q: %w", level, err)
			return
		}

		cfg := zap.NewProductionConfig()
		if format == "console" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.Level = atomicLevel
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		l, err := cfg.Build()
		if err != nil {
			initErr = fmt.Errorf("build logger: %w", err)
			return
		}
		set(l)
	})
	return initErr
}

func set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	if l == nil {
		helpers = nil
		return
	}
	helpers = l.WithOptions(zap.AddCallerSkip(1))
}

// Replace swaps the global logger and returns a func restoring the previous
// one. Tests pass zaptest/observer cores.
func Replace(l *zap.Logger) func() {
	mu.RLock()
	prev := base
	mu.RUnlock()
	set(l)
	return func() { set(prev) }
}

func SetLevel(level string) error {
	return atomicLevel.UnmarshalText([]byte(level))
}

func GetLevel() zapcore.Level {
	return atomicLevel.Level()
}

// Level serves GET and PUT of the current level as JSON.
func Level() *zap.AtomicLevel {
	return &atomicLevel
}

// L returns the global logger. It panics before Init.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		panic("logger.Init() must be called before logger.L()")
	}
	return base
}

func h() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if helpers == nil {
		panic("logger.Init() must be called before logging")
	}
	return helpers
}

// Named returns a child logger tagged with a component field.
func Named(component string) *zap.Logger {
	return L().With(zap.String("component", component))
}

func Debug(msg string, fields ...zap.Field) { h().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { h().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { h().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { h().Error(msg, fields...) }

// Sync flushes buffered entries. It is a no-op before Init.
func Sync() error {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l == nil {
		return nil
	}
	return l.Sync()
}
