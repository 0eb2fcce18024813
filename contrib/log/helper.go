package log

import (
	"context"
	"fmt"
	"os"
)

// Helper is a logger helper.
type Helper struct {
	logger Logger
	msgKey string
}

// NewHelper new a logger helper.
func NewHelper(logger Logger) *Helper {
	return &Helper{
		logger: logger,
		msgKey: DefaultMessageKey,
	}
}

// WithContext returns a shallow copy of h with its context changed
// to ctx. The provided ctx must be non-nil.
func (h *Helper) WithContext(ctx context.Context) *Helper {
	return &Helper{
		logger: WithContext(ctx, h.logger),
		msgKey: h.msgKey,
	}
}

// Enabled reports whether the underlying logger emits records at level.
func (h *Helper) Enabled(level Level) bool {
	if l, ok := h.logger.(interface{ Enabled(Level) bool }); ok {
		return l.Enabled(level)
	}
	return Enabled(level)
}

// Logger returns the wrapped logger.
func (h *Helper) Logger() Logger {
	return h.logger
}

// Log Print log by level and keyvals.
func (h *Helper) Log(level Level, keyvals ...any) {
	_ = h.logger.Log(level, keyvals...)
}

func (h *Helper) Debug(a ...any) {
	_ = h.logger.Log(LevelDebug, h.msgKey, fmt.Sprint(a...))
}

func (h *Helper) Debugf(format string, a ...any) {
	_ = h.logger.Log(LevelDebug, h.msgKey, fmt.Sprintf(format, a...))
}

func (h *Helper) Debugw(keyvals ...any) {
	_ = h.logger.Log(LevelDebug, keyvals...)
}

func (h *Helper) Info(a ...any) {
	_ = h.logger.Log(LevelInfo, h.msgKey, fmt.Sprint(a...))
}

func (h *Helper) Infof(format string, a ...any) {
	_ = h.logger.Log(LevelInfo, h.msgKey, fmt.Sprintf(format, a...))
}

func (h *Helper) Infow(keyvals ...any) {
	_ = h.logger.Log(LevelInfo, keyvals...)
}

func (h *Helper) Warn(a ...any) {
	_ = h.logger.Log(LevelWarn, h.msgKey, fmt.Sprint(a...))
}

func (h *Helper) Warnf(format string, a ...any) {
	_ = h.logger.Log(LevelWarn, h.msgKey, fmt.Sprintf(format, a...))
}

func (h *Helper) Warnw(keyvals ...any) {
	_ = h.logger.Log(LevelWarn, keyvals...)
}

func (h *Helper) Error(a ...any) {
	_ = h.logger.Log(LevelError, h.msgKey, fmt.Sprint(a...))
}

func (h *Helper) Errorf(format string, a ...any) {
	_ = h.logger.Log(LevelError, h.msgKey, fmt.Sprintf(format, a...))
}

func (h *Helper) Errorw(keyvals ...any) {
	_ = h.logger.Log(LevelError, keyvals...)
}

func (h *Helper) Fatal(a ...any) {
	_ = h.logger.Log(LevelFatal, h.msgKey, fmt.Sprint(a...))
	os.Exit(1)
}

func (h *Helper) Fatalf(format string, a ...any) {
	_ = h.logger.Log(LevelFatal, h.msgKey, fmt.Sprintf(format, a...))
	os.Exit(1)
}

func (h *Helper) Fatalw(keyvals ...any) {
	_ = h.logger.Log(LevelFatal, keyvals...)
	os.Exit(1)
}
