package storage

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/omalloc/cellar/api/defined/v1/event"
	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/api/defined/v1/storage/object"
	"github.com/omalloc/cellar/conf"
	"github.com/omalloc/cellar/contrib/log"
)

var _ storage.ResourceCache = (*nativeCache)(nil)

type Option func(*nativeCache)

// WithBus publishes cache events on bus instead of the default bus.
func WithBus(bus *event.Bus) Option {
	return func(c *nativeCache) {
		c.publish = event.PublishOn[event.CacheCompleted](bus, event.CacheCompletedTopic)
	}
}

// WithBucket uses b instead of building one from the config.
func WithBucket(b storage.Bucket) Option {
	return func(c *nativeCache) {
		c.bucket = b
	}
}

type nativeCache struct {
	mu      sync.Mutex
	log     *log.Helper
	closed  bool
	verify  bool
	bucket  storage.Bucket
	pending map[string]chan struct{}
	publish func(ctx context.Context, payload event.CacheCompleted)
}

// closedCh is handed out for keys that are not pending.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func New(config *conf.Cache, logger log.Logger, opts ...Option) (storage.ResourceCache, error) {
	n := &nativeCache{
		log:     log.NewHelper(logger),
		verify:  config.Verify,
		pending: make(map[string]chan struct{}),
		publish: event.NewPublish[event.CacheCompleted](event.CacheCompletedTopic),
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.bucket == nil {
		bc, err := mergeConfig(config)
		if err != nil {
			return nil, err
		}
		b, err := NewBucket(bc)
		if err != nil {
			return nil, fmt.Errorf("create %s bucket %s: %w", bc.Driver, bc.Path, err)
		}
		n.bucket = b
	}

	n.log.Infof("product cache %s(%s) ready with %d objects", n.bucket.ID(), n.bucket.Driver(), n.bucket.Objects())
	return n, nil
}

// IsPending implements storage.ResourceCache.
func (n *nativeCache) IsPending(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.pending[key]
	return ok
}

// MarkPending implements storage.ResourceCache.
func (n *nativeCache) MarkPending(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return false
	}
	if _, ok := n.pending[key]; ok {
		return false
	}
	// committed keys are never pending
	if n.bucket.Exist(context.Background(), object.NewKeyID(key)) {
		return false
	}
	n.pending[key] = make(chan struct{})
	return true
}

// RemovePendingCacheEntry implements storage.ResourceCache.
func (n *nativeCache) RemovePendingCacheEntry(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.release(key)
}

func (n *nativeCache) release(key string) {
	if ch, ok := n.pending[key]; ok {
		delete(n.pending, key)
		close(ch)
	}
}

// Pending implements storage.ResourceCache.
func (n *nativeCache) Pending(key string) <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.pending[key]; ok {
		return ch
	}
	return closedCh
}

// Put implements storage.ResourceCache.
func (n *nativeCache) Put(ctx context.Context, res *object.ReliableResource) error {
	md := res.Metadata()

	n.mu.Lock()
	err := n.bucket.Store(ctx, md)
	n.release(md.Key)
	n.mu.Unlock()

	if err != nil {
		return fmt.Errorf("store %s: %w", md.Key, err)
	}

	if n.log.Enabled(log.LevelDebug) {
		n.log.Debugf("product %s committed, size %d checksum %x", md.Key, md.Size, md.Checksum)
	}
	n.publish(ctx, &cacheCompleted{md: md.Clone()})
	return nil
}

// Get implements storage.ResourceCache.
func (n *nativeCache) Get(ctx context.Context, key string) (*object.ReliableResource, error) {
	id := object.NewKeyID(key)

	md, err := n.bucket.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}

	if n.verify {
		if err = n.verifyFile(ctx, id, md); err != nil {
			n.log.Warnf("discard cached product %s: %v", key, err)
			_ = n.bucket.Discard(ctx, id)
			return nil, storage.ErrKeyNotFound
		}
	}

	return object.NewReliableResource(md, func() (io.ReadCloser, error) {
		return n.bucket.ReadFile(context.WithoutCancel(ctx), id)
	}), nil
}

func (n *nativeCache) verifyFile(ctx context.Context, id *object.ID, md *object.Metadata) error {
	f, err := n.bucket.ReadFile(ctx, id)
	if err != nil {
		return err
	}
	defer f.Close()

	digest := xxhash.New()
	size, err := io.Copy(digest, f)
	if err != nil {
		return err
	}
	if size != md.Size || digest.Sum64() != md.Checksum {
		return fmt.Errorf("%w: size %d/%d checksum %x/%x", storage.ErrChecksumMismatch, size, md.Size, digest.Sum64(), md.Checksum)
	}
	return nil
}

// Remove implements storage.ResourceCache.
func (n *nativeCache) Remove(ctx context.Context, key string) error {
	return n.bucket.Discard(ctx, object.NewKeyID(key))
}

// Keys implements storage.ResourceCache.
func (n *nativeCache) Keys() []string {
	keys := make([]string, 0, n.bucket.Objects())
	_ = n.bucket.Iterate(context.Background(), func(md *object.Metadata) error {
		keys = append(keys, md.Key)
		return nil
	})
	return keys
}

// NewWriter implements storage.ResourceCache.
func (n *nativeCache) NewWriter(ctx context.Context, id *object.ID, meta *object.Metadata) (storage.Writer, error) {
	fw, err := n.bucket.WriteFile(ctx, id)
	if err != nil {
		return nil, err
	}
	return &cacheWriter{
		id:     id,
		meta:   meta,
		fw:     fw,
		digest: xxhash.New(),
		bucket: n.bucket,
	}, nil
}

// Allow implements storage.ResourceCache.
func (n *nativeCache) Allow() bool {
	return n.bucket.Allow()
}

// GetProductCacheDirectory implements storage.ResourceCache.
func (n *nativeCache) GetProductCacheDirectory() string {
	return n.bucket.Path()
}

// Stats implements storage.ResourceCache.
func (n *nativeCache) Stats(k int) storage.Stats {
	n.mu.Lock()
	pending := len(n.pending)
	n.mu.Unlock()

	return storage.Stats{
		Driver:    n.bucket.Driver(),
		Directory: n.bucket.Path(),
		Objects:   n.bucket.Objects(),
		Pending:   pending,
		Hot:       n.bucket.TopK(k),
	}
}

// Close implements storage.ResourceCache.
func (n *nativeCache) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	for key := range n.pending {
		n.release(key)
	}
	n.mu.Unlock()

	return n.bucket.Close()
}

type cacheWriter struct {
	id     *object.ID
	meta   *object.Metadata
	fw     storage.FileWriter
	digest hash.Hash64
	bucket storage.Bucket
	size   int64
	done   bool
	failed error
}

func (w *cacheWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, storage.ErrWriterClosed
	}
	// bucket files may modify p while writing it
	_, _ = w.digest.Write(p)
	n, err := w.fw.Write(p)
	w.size += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.failed = err
	}
	return n, err
}

func (w *cacheWriter) Written() int64 {
	return w.size
}

func (w *cacheWriter) Commit(ctx context.Context) (*object.ReliableResource, error) {
	if w.done {
		return nil, storage.ErrWriterClosed
	}
	w.done = true

	if w.failed != nil {
		_ = w.fw.Abort()
		return nil, fmt.Errorf("commit after failed write: %w", w.failed)
	}
	path, err := w.fw.Commit()
	if err != nil {
		_ = w.fw.Abort()
		return nil, err
	}

	md := w.meta.Clone()
	md.Size = w.size
	md.Checksum = w.digest.Sum64()
	md.Path = path

	id, bucket := w.id, w.bucket
	return object.NewReliableResource(md, func() (io.ReadCloser, error) {
		return bucket.ReadFile(context.WithoutCancel(ctx), id)
	}), nil
}

func (w *cacheWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.fw.Abort()
}

var _ event.CacheCompleted = (*cacheCompleted)(nil)

type cacheCompleted struct {
	md *object.Metadata
}

func (c *cacheCompleted) Kind() event.Kind     { return event.CacheCompletedKey }
func (c *cacheCompleted) StoreKey() string     { return c.md.Key }
func (c *cacheCompleted) StorePath() string    { return c.md.Path }
func (c *cacheCompleted) FileName() string     { return c.md.FileName }
func (c *cacheCompleted) ContentLength() int64 { return c.md.Size }
func (c *cacheCompleted) Checksum() uint64     { return c.md.Checksum }
