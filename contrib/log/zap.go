package log

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _ Logger = (*ZapLogger)(nil)

// ZapLogger adapts a zap.Logger to Logger.
type ZapLogger struct {
	log    *zap.Logger
	msgKey string
}

// FileOptions configures a rotated file logger.
type FileOptions struct {
	Path       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	JSON       bool
}

// NewZapLogger wraps zl. The caller owns zl and should Sync it on exit.
func NewZapLogger(zl *zap.Logger) *ZapLogger {
	return &ZapLogger{log: zl, msgKey: DefaultMessageKey}
}

// NewStdLogger returns a console logger writing to stdout.
func NewStdLogger() *ZapLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = ""
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(os.Stdout),
		zapcore.DebugLevel,
	)
	return NewZapLogger(zap.New(core))
}

// NewFileLogger returns a logger writing to a lumberjack rotated file.
// An empty path falls back to stdout.
func NewFileLogger(opt FileOptions) *ZapLogger {
	if opt.Path == "" {
		return NewStdLogger()
	}

	_ = os.MkdirAll(filepath.Dir(opt.Path), 0o755)

	w := &lumberjack.Logger{
		Filename:   opt.Path,
		MaxSize:    opt.MaxSize,
		MaxBackups: opt.MaxBackups,
		MaxAge:     opt.MaxAge,
		LocalTime:  true,
		Compress:   opt.Compress,
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = ""
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	if opt.JSON {
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	return NewZapLogger(zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), zapcore.DebugLevel)))
}

// Log implements Logger.
func (l *ZapLogger) Log(level Level, keyvals ...any) error {
	if len(keyvals) == 0 || len(keyvals)%2 != 0 {
		l.log.Warn(fmt.Sprint("keyvalues must appear in pairs: ", keyvals))
		return nil
	}

	var msg string
	data := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		if keyvals[i] == l.msgKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		data = append(data, zap.Any(fmt.Sprint(keyvals[i]), keyvals[i+1]))
	}

	switch level {
	case LevelDebug:
		l.log.Debug(msg, data...)
	case LevelInfo:
		l.log.Info(msg, data...)
	case LevelWarn:
		l.log.Warn(msg, data...)
	case LevelError:
		l.log.Error(msg, data...)
	case LevelFatal:
		// Helper.Fatal exits on its own.
		l.log.Error(msg, data...)
	}
	return nil
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.log.Sync()
}
