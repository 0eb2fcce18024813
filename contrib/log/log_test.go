package log

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	level   Level
	keyvals []any
}

type captureLogger struct {
	mu      sync.Mutex
	records []record
}

func (c *captureLogger) Log(level Level, keyvals ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record{level: level, keyvals: keyvals})
	return nil
}

type ctxKey struct{}

func TestWithValuer(t *testing.T) {
	c := &captureLogger{}
	value := func(ctx context.Context) any {
		v, _ := ctx.Value(ctxKey{}).(string)
		return v
	}

	l := With(With(c, "module", "download"), "request_id", Valuer(value))
	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")

	NewHelper(l).WithContext(ctx).Infof("served %d bytes", 42)

	require.Len(t, c.records, 1)
	assert.Equal(t, LevelInfo, c.records[0].level)
	assert.Equal(t, []any{"module", "download", "request_id", "req-1", DefaultMessageKey, "served 42 bytes"}, c.records[0].keyvals)
}

func TestFilter(t *testing.T) {
	c := &captureLogger{}
	h := NewHelper(NewFilter(c, FilterLevel(LevelWarn)))

	h.Debug("dropped")
	h.Info("dropped")
	h.Warn("kept")
	h.Errorw("k", "v")

	require.Len(t, c.records, 2)
	assert.Equal(t, LevelWarn, c.records[0].level)
	assert.Equal(t, LevelError, c.records[1].level)
	assert.False(t, h.Enabled(LevelInfo))
	assert.True(t, h.Enabled(LevelError))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warn"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("whatever"))
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cellar.log")
	l := NewFileLogger(FileOptions{Path: path, MaxSize: 1})

	NewHelper(With(l, "module", "test")).Warnf("cache write failed")
	require.NoError(t, l.Sync())

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "WARN")
	assert.Contains(t, string(buf), "cache write failed")
	assert.Contains(t, string(buf), `"module": "test"`)
}
