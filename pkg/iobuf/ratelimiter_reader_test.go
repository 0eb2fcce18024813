package iobuf

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitReaderDisabled(t *testing.T) {
	src := io.NopCloser(bytes.NewReader([]byte("abc")))
	r := NewRateLimitReader(context.Background(), src, 0)
	_, throttled := r.(*throttledReader)
	assert.False(t, throttled)
	assert.Equal(t, src, r)
}

func TestRateLimitReader(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 3<<10)
	r := NewRateLimitReader(context.Background(), io.NopCloser(bytes.NewReader(payload)), 1)

	start := time.Now()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	// the first KiB is the burst, the other two are paced at 1 KiB/s
	assert.GreaterOrEqual(t, time.Since(start), 1500*time.Millisecond)
	require.NoError(t, r.Close())
}

func TestRateLimitReaderCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	payload := bytes.Repeat([]byte{'x'}, 4<<10)
	r := NewRateLimitReader(ctx, io.NopCloser(bytes.NewReader(payload)), 1)

	buf := make([]byte, 1<<10)
	_, err := r.Read(buf)
	require.NoError(t, err)

	cancel()
	n, err := r.Read(buf)
	assert.Equal(t, 1<<10, n)
	assert.ErrorIs(t, err, context.Canceled)
}
