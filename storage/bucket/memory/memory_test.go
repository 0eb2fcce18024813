package memory_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/api/defined/v1/storage/object"
	"github.com/omalloc/cellar/storage/bucket/memory"

	// register indexdb
	_ "github.com/omalloc/cellar/storage/indexdb/pebble"
)

func store(t *testing.T, bucket storage.Bucket, id *object.ID, body []byte) {
	t.Helper()
	ctx := context.Background()

	w, err := bucket.WriteFile(ctx, id)
	require.NoError(t, err)
	n, err := w.Write(body)
	require.NoError(t, err)
	require.Equal(t, len(body), n)
	_, err = w.Commit()
	require.NoError(t, err)

	md := object.NewMetadata(id, id.ResourceID(), "application/octet-stream")
	md.Size = int64(len(body))
	require.NoError(t, bucket.Store(ctx, md))
}

func TestMemoryBucket(t *testing.T) {
	bucket, err := memory.New(&storage.BucketConfig{Driver: "memory", DBType: "pebble"})
	require.NoError(t, err)
	defer bucket.Close()

	assert.Equal(t, "memory", bucket.Path())
	assert.True(t, bucket.Allow())

	id := object.NewID("ddf-1", "1.tif")
	buf := make([]byte, 1<<20)
	_, _ = rand.Read(buf)
	want := bytes.Clone(buf)
	store(t, bucket, id, buf)

	f, err := bucket.ReadFile(context.Background(), id)
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	_ = f.Close()
	assert.Equal(t, want, got)

	md, err := bucket.Lookup(context.Background(), id)
	require.NoError(t, err)
	assert.EqualValues(t, len(want), md.Size)

	require.NoError(t, bucket.Discard(context.Background(), id))
	_, err = bucket.ReadFile(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	assert.Zero(t, bucket.Objects())
}

func TestMemoryBucketEvict(t *testing.T) {
	bucket, err := memory.New(&storage.BucketConfig{Driver: "memory", DBType: "pebble", MaxObjectLimit: 2})
	require.NoError(t, err)
	defer bucket.Close()

	ctx := context.Background()
	hot := object.NewID("ddf-1", "hot")
	cold := object.NewID("ddf-1", "cold")
	store(t, bucket, hot, []byte("hot"))
	store(t, bucket, cold, []byte("cold"))

	for range 3 {
		_, err = bucket.Lookup(ctx, hot)
		require.NoError(t, err)
	}

	store(t, bucket, object.NewID("ddf-1", "new"), []byte("new"))

	assert.Eventually(t, func() bool {
		return !bucket.Exist(ctx, cold)
	}, time.Second, 10*time.Millisecond)
	assert.True(t, bucket.Exist(ctx, hot))
	assert.EqualValues(t, 2, bucket.Objects())

	_, err = bucket.ReadFile(ctx, cold)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}
