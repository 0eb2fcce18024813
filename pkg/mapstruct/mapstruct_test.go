package mapstruct

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dbOptions struct {
	Bucket    string        `yaml:"bucket"`
	SyncWrite bool          `yaml:"sync_write"`
	Interval  time.Duration `yaml:"interval"`
	SegSize   int64         `yaml:"seg_size"`
}

func TestDecode(t *testing.T) {
	var opts dbOptions
	err := Decode(map[string]any{
		"bucket":     "products",
		"sync_write": "true",
		"interval":   "5s",
		"seg_size":   1024,
	}, &opts)
	require.NoError(t, err)

	assert.Equal(t, "products", opts.Bucket)
	assert.True(t, opts.SyncWrite)
	assert.Equal(t, 5*time.Second, opts.Interval)
	assert.EqualValues(t, 1024, opts.SegSize)
}

func TestDecodeNil(t *testing.T) {
	opts := dbOptions{Bucket: "keep"}
	require.NoError(t, Decode(nil, &opts))
	assert.Equal(t, "keep", opts.Bucket)
}
