package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	r, err := parse(`2026-10-19T10:00:00.000+0800 10.0.0.1:5120 7f9c "GET /resource?source=ddf&id=abc HTTP/1.1" 200 1048576 MISS 6ba7b810 42`)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:5120", r.RemoteAddr)
	assert.Equal(t, "7f9c", r.RequestID)
	assert.Equal(t, "GET", r.Method)
	assert.Equal(t, "/resource?source=ddf&id=abc", r.URI)
	assert.Equal(t, 200, r.Status)
	assert.EqualValues(t, 1<<20, r.SentBytes)
	assert.Equal(t, "MISS", r.CacheStatus)
	assert.Equal(t, "6ba7b810", r.DownloadID)
	assert.EqualValues(t, 42, r.DurationMS)
	assert.Contains(t, r.String(), "Sent: 1.0 MiB")
}

func TestParseDashes(t *testing.T) {
	r, err := parse(`2026-10-19T10:00:00.000+0800 10.0.0.1:5120 7f9c "GET /downloads HTTP/1.1" 200 2 - - 0`)
	require.NoError(t, err)
	assert.Empty(t, r.CacheStatus)
	assert.Empty(t, r.DownloadID)
	assert.NotContains(t, r.String(), "CacheStatus")
}

func TestParseMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"no request here",
		`t a b "GET / HTTP/1.1" 200 x - - 0`,
		`t a b "GET / HTTP/1.1" 200 1 - -`,
	} {
		_, err := parse(line)
		assert.ErrorIs(t, err, errMalformed, line)
	}
}
