// Package logging provides the process-wide structured logger used across
// the reactor framework, grounded on the teacher's zap + lumberjack pairing
// (go.uber.org/zap, gopkg.in/natefinch/lumberjack.v2).
package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var current atomic.Value // holds *zap.Logger

func init() {
	current.Store(newDefault())
}

func newDefault() *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   "reactor.log",
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}),
		zap.InfoLevel,
	)
	return zap.New(core)
}

// L returns the current process-wide logger.
func L() *zap.Logger {
	return current.Load().(*zap.Logger)
}

// SetLogger replaces the process-wide logger, e.g. for tests that want a
// development console logger instead of the rotating-file default.
func SetLogger(logger *zap.Logger) {
	current.Store(logger)
}
