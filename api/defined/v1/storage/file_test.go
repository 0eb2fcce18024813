package storage

import (
	"io"
	"testing"

	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapVFSFile(t *testing.T) {
	fs := vfs.NewMem()

	w, err := fs.Create("product.bin", vfs.WriteCategoryUnspecified)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := fs.Open("product.bin")
	require.NoError(t, err)

	file := WrapVFSFile(f, "/cache/product.bin")
	assert.Equal(t, "/cache/product.bin", file.Name())

	fi, err := file.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 5, fi.Size())

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, file.Close())
	// second close returns the first result
	assert.NoError(t, file.Close())
}
