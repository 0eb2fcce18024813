package storage_test

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/cellar/api/defined/v1/event"
	storagev1 "github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/api/defined/v1/storage/object"
	"github.com/omalloc/cellar/conf"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/storage"
)

func newTestCache(t *testing.T, driver string, opts ...storage.Option) storagev1.ResourceCache {
	t.Helper()

	c, err := storage.New(&conf.Cache{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "product-cache"),
		Driver:  driver,
		DBType:  "pebble",
		Verify:  true,
	}, log.GetLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeProduct(t *testing.T, c storagev1.ResourceCache, id *object.ID, body string) *object.ReliableResource {
	t.Helper()
	ctx := context.Background()

	w, err := c.NewWriter(ctx, id, object.NewMetadata(id, "product.bin", "application/octet-stream"))
	require.NoError(t, err)

	for i := 0; i < len(body); i += 4 {
		end := min(i+4, len(body))
		_, err = w.Write([]byte(body[i:end]))
		require.NoError(t, err)
	}
	assert.EqualValues(t, len(body), w.Written())

	res, err := w.Commit(ctx)
	require.NoError(t, err)
	return res
}

func readAll(t *testing.T, res *object.ReliableResource) string {
	t.Helper()
	rc, err := res.Open()
	require.NoError(t, err)
	defer rc.Close()
	buf, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(buf)
}

func TestCachePendingLifecycle(t *testing.T) {
	for _, driver := range []string{"native", "memory"} {
		t.Run(driver, func(t *testing.T) {
			c := newTestCache(t, driver)
			ctx := context.Background()
			id := object.NewID("ddf-1", "abc123")

			assert.False(t, c.IsPending(id.Key()))
			require.True(t, c.MarkPending(id.Key()))
			assert.False(t, c.MarkPending(id.Key()), "only one owner")
			assert.True(t, c.IsPending(id.Key()))

			released := c.Pending(id.Key())
			select {
			case <-released:
				t.Fatal("pending channel closed too early")
			default:
			}

			_, err := c.Get(ctx, id.Key())
			assert.ErrorIs(t, err, storagev1.ErrKeyNotFound, "partial product is never visible")

			res := writeProduct(t, c, id, "the quick brown fox")
			require.NoError(t, c.Put(ctx, res))

			<-released
			assert.False(t, c.IsPending(id.Key()), "put clears the pending marker")
			assert.False(t, c.MarkPending(id.Key()), "committed keys are never pending")

			got, err := c.Get(ctx, id.Key())
			require.NoError(t, err)
			assert.Equal(t, "the quick brown fox", readAll(t, got))
			assert.EqualValues(t, 19, got.Size())
			assert.Equal(t, res.Checksum(), got.Checksum())
			assert.Contains(t, c.Keys(), id.Key())
		})
	}
}

func TestCacheAbortLeavesNothing(t *testing.T) {
	c := newTestCache(t, "native")
	ctx := context.Background()
	id := object.NewID("ddf-1", "aborted")

	require.True(t, c.MarkPending(id.Key()))
	w, err := c.NewWriter(ctx, id, object.NewMetadata(id, "a.bin", ""))
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())
	c.RemovePendingCacheEntry(id.Key())

	_, err = w.Write([]byte("more"))
	assert.ErrorIs(t, err, storagev1.ErrWriterClosed)

	_, err = c.Get(ctx, id.Key())
	assert.ErrorIs(t, err, storagev1.ErrKeyNotFound)
	assert.False(t, c.IsPending(id.Key()))

	// no file or temporary file left behind
	var files []string
	_ = filepath.WalkDir(c.GetProductCacheDirectory(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == ".indexdb" {
			return filepath.SkipDir
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	assert.Empty(t, files)
}

func TestCacheVerifyDropsCorruptFile(t *testing.T) {
	c := newTestCache(t, "native")
	ctx := context.Background()
	id := object.NewID("ddf-1", "corrupt")

	require.True(t, c.MarkPending(id.Key()))
	res := writeProduct(t, c, id, "original content")
	require.NoError(t, c.Put(ctx, res))

	require.NoError(t, os.WriteFile(res.Path(), []byte("tampered content"), 0o644))

	_, err := c.Get(ctx, id.Key())
	assert.ErrorIs(t, err, storagev1.ErrKeyNotFound)

	// the entry is gone for good
	assert.True(t, c.MarkPending(id.Key()))
}

// scribbleBucket hands out writers that overwrite the caller's slice after
// writing it, which vfs files are allowed to do.
type scribbleBucket struct {
	storagev1.Bucket
}

func (b scribbleBucket) WriteFile(ctx context.Context, id *object.ID) (storagev1.FileWriter, error) {
	fw, err := b.Bucket.WriteFile(ctx, id)
	if err != nil {
		return nil, err
	}
	return scribbleWriter{fw}, nil
}

type scribbleWriter struct {
	storagev1.FileWriter
}

func (w scribbleWriter) Write(p []byte) (int, error) {
	n, err := w.FileWriter.Write(p)
	for i := range p {
		p[i] = 0xff
	}
	return n, err
}

func TestCacheChecksumSurvivesModifiedWrites(t *testing.T) {
	b, err := storage.NewBucket(&storagev1.BucketConfig{Driver: "memory", DBType: "pebble"})
	require.NoError(t, err)

	c := newTestCache(t, "memory", storage.WithBucket(scribbleBucket{b}))
	ctx := context.Background()
	id := object.NewID("ddf-1", "scribbled")

	require.True(t, c.MarkPending(id.Key()))
	require.NoError(t, c.Put(ctx, writeProduct(t, c, id, "the quick brown fox")))

	got, err := c.Get(ctx, id.Key())
	require.NoError(t, err, "verified hit")
	assert.Equal(t, "the quick brown fox", readAll(t, got))
}

func TestCacheRemove(t *testing.T) {
	c := newTestCache(t, "memory")
	ctx := context.Background()
	id := object.NewQualifiedID("ddf-1", "abc123", "overview")

	require.True(t, c.MarkPending(id.Key()))
	require.NoError(t, c.Put(ctx, writeProduct(t, c, id, "overview bytes")))

	require.NoError(t, c.Remove(ctx, id.Key()))
	_, err := c.Get(ctx, id.Key())
	assert.ErrorIs(t, err, storagev1.ErrKeyNotFound)
}

func TestCachePublishesCompletion(t *testing.T) {
	bus := event.NewBus()
	var completed atomic.Value
	event.SubscribeOn[event.CacheCompleted](bus, event.CacheCompletedTopic, func(_ context.Context, ev event.CacheCompleted) {
		completed.Store(ev.StoreKey())
	})

	c := newTestCache(t, "memory", storage.WithBus(bus))
	id := object.NewID("ddf-1", "evented")
	require.True(t, c.MarkPending(id.Key()))
	require.NoError(t, c.Put(context.Background(), writeProduct(t, c, id, "x")))

	assert.Eventually(t, func() bool { return completed.Load() == id.Key() }, time.Second, 5*time.Millisecond)
}

func TestCacheMarkPendingRace(t *testing.T) {
	c := newTestCache(t, "memory")

	var owners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.MarkPending("ddf-1-race") {
				owners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, owners.Load())
}

func TestCacheReloadsIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "product-cache")
	cfg := &conf.Cache{Path: dir, Driver: "native", DBType: "pebble"}
	ctx := context.Background()

	c, err := storage.New(cfg, log.GetLogger())
	require.NoError(t, err)

	kept := object.NewID("ddf-1", "kept")
	lost := object.NewID("ddf-1", "lost")
	for _, id := range []*object.ID{kept, lost} {
		require.True(t, c.MarkPending(id.Key()))
		require.NoError(t, c.Put(ctx, writeProduct(t, c, id, id.Key())))
	}
	require.NoError(t, c.Close())

	// a vanished file drops its index record on load
	require.NoError(t, os.Remove(lost.WPath(dir)))

	c, err = storage.New(cfg, log.GetLogger())
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Get(ctx, kept.Key())
	require.NoError(t, err)
	assert.Equal(t, kept.Key(), readAll(t, got))

	_, err = c.Get(ctx, lost.Key())
	assert.ErrorIs(t, err, storagev1.ErrKeyNotFound)
	assert.EqualValues(t, 1, c.Stats(10).Objects)
}
