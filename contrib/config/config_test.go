package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Cache *struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"cache"`
	Retry int           `yaml:"retry"`
	Delay time.Duration `yaml:"delay"`
}

func newBase() *testConfig {
	c := &testConfig{Retry: 3, Delay: time.Second}
	c.Cache = &struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	}{Enabled: true, Path: "/tmp/cache"}
	return c
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  path: /data/cache\ndelay: 5s\n"), 0o644))

	c, err := Load(path, newBase())
	require.NoError(t, err)

	assert.True(t, c.Cache.Enabled)
	assert.Equal(t, "/data/cache", c.Cache.Path)
	assert.Equal(t, 3, c.Retry)
	assert.Equal(t, 5*time.Second, c.Delay)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), newBase())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry: [1, 2"), 0o644))
	_, err = Load(path, newBase())
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry: 1\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var retry atomic.Int64
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, newBase, func(c *testConfig) {
			retry.Store(int64(c.Retry))
		})
	}()

	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("retry: 7\n"), 0o644))

	assert.Eventually(t, func() bool { return retry.Load() == 7 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
