package log

import (
	"context"
	"sync"
	"sync/atomic"
)

var global = &loggerAppliance{}

var globalLevel atomic.Int32

type loggerAppliance struct {
	lock sync.RWMutex
	Logger
}

func init() {
	global.SetLogger(DefaultLogger)
	globalLevel.Store(int32(LevelInfo))
}

func (a *loggerAppliance) SetLogger(in Logger) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.Logger = in
}

func (a *loggerAppliance) GetLogger() Logger {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.Logger
}

// SetLogger should be called before any other log call.
// And it is NOT THREAD SAFE.
func SetLogger(logger Logger) {
	global.SetLogger(logger)
}

// GetLogger returns global logger appliance as logger in current process.
func GetLogger() Logger {
	return global.GetLogger()
}

// SetLevel sets the level used by the package level helpers.
func SetLevel(level Level) {
	globalLevel.Store(int32(level))
}

// Enabled reports whether the package level helpers emit records at level.
func Enabled(level Level) bool {
	return level >= Level(globalLevel.Load())
}

// Context with context logger.
func Context(ctx context.Context) *Helper {
	return NewHelper(WithContext(ctx, NewFilter(global.GetLogger(), FilterLevel(Level(globalLevel.Load())))))
}

func logf(level Level, format string, a ...any) {
	if !Enabled(level) {
		return
	}
	h := NewHelper(global.GetLogger())
	switch level {
	case LevelDebug:
		h.Debugf(format, a...)
	case LevelInfo:
		h.Infof(format, a...)
	case LevelWarn:
		h.Warnf(format, a...)
	case LevelError:
		h.Errorf(format, a...)
	case LevelFatal:
		h.Fatalf(format, a...)
	}
}

func Debugf(format string, a ...any) { logf(LevelDebug, format, a...) }

func Infof(format string, a ...any) { logf(LevelInfo, format, a...) }

func Warnf(format string, a ...any) { logf(LevelWarn, format, a...) }

func Errorf(format string, a ...any) { logf(LevelError, format, a...) }

// Fatalf logs a message at fatal level and exits.
func Fatalf(format string, a ...any) { logf(LevelFatal, format, a...) }

// Fatal logs a message at fatal level and exits.
func Fatal(a ...any) {
	NewHelper(global.GetLogger()).Fatal(a...)
}
