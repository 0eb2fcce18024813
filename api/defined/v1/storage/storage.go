package storage

import (
	"context"
	"errors"
	"io"

	"github.com/omalloc/cellar/api/defined/v1/storage/object"
	"github.com/omalloc/cellar/pkg/encoding"
)

var (
	// ErrKeyNotFound is returned when no committed product exists for a key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrPending is returned when a product is still being downloaded.
	ErrPending = errors.New("key is pending")
	// ErrBucketFull is returned when the bucket refuses new writes.
	ErrBucketFull = errors.New("bucket is full")
	// ErrWriterClosed is returned by a writer already committed or aborted.
	ErrWriterClosed = errors.New("cache writer closed")
	// ErrChecksumMismatch is returned when a cached file no longer matches
	// the checksum recorded at commit time.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// ResourceCache holds committed products and the set of keys currently
// being downloaded. A key is never both committed and pending.
type ResourceCache interface {
	io.Closer

	// IsPending reports whether a download currently owns key.
	IsPending(key string) bool
	// MarkPending atomically claims key. It returns false when key is
	// already pending or committed.
	MarkPending(key string) bool
	// RemovePendingCacheEntry releases the claim on key.
	RemovePendingCacheEntry(key string)
	// Pending returns a channel closed once key is no longer pending.
	// The channel is already closed when key is not pending.
	Pending(key string) <-chan struct{}

	// Put commits res and releases its pending marker.
	Put(ctx context.Context, res *object.ReliableResource) error
	// Get returns the committed product for key or ErrKeyNotFound.
	Get(ctx context.Context, key string) (*object.ReliableResource, error)
	// Remove drops the committed product for key.
	Remove(ctx context.Context, key string) error
	// Keys returns the keys of every committed product.
	Keys() []string

	// NewWriter returns a writer that accumulates the content of id. The
	// product becomes visible only through Put after Commit.
	NewWriter(ctx context.Context, id *object.ID, meta *object.Metadata) (Writer, error)
	// Allow reports whether the cache accepts new products.
	Allow() bool
	// GetProductCacheDirectory returns where cached products are stored.
	GetProductCacheDirectory() string
	// Stats reports the cache occupancy and the k most requested keys.
	Stats(k int) Stats
}

type Stats struct {
	Driver    string   `json:"driver"`
	Directory string   `json:"directory"`
	Objects   uint64   `json:"objects"`
	Pending   int      `json:"pending"`
	Hot       []string `json:"hot"`
}

// Writer receives a product chunk by chunk.
type Writer interface {
	io.Writer
	// Written returns the number of bytes accepted so far.
	Written() int64
	// Commit completes the product. The returned resource is not yet
	// retrievable until handed to ResourceCache.Put.
	Commit(ctx context.Context) (*object.ReliableResource, error)
	// Abort discards everything written.
	Abort() error
}

// FileWriter is the bucket level sink of a Writer.
type FileWriter interface {
	io.Writer
	// Commit makes the file durable and returns its final location.
	Commit() (string, error)
	// Abort removes the partial file.
	Abort() error
}

type Operation interface {
	// Lookup retrieves the metadata for the specified object ID.
	Lookup(ctx context.Context, id *object.ID) (*object.Metadata, error)
	// Store store the metadata for the specified object ID.
	Store(ctx context.Context, meta *object.Metadata) error
	// Exist checks if the object exists.
	Exist(ctx context.Context, id *object.ID) bool
	// Discard hard-removes the object.
	Discard(ctx context.Context, id *object.ID) error
	// Iterate iterates the objects.
	Iterate(ctx context.Context, fn func(*object.Metadata) error) error
}

type Bucket interface {
	io.Closer
	Operation

	// ID returns the Bucket ID.
	ID() string
	// Driver returns the bucket driver name.
	Driver() string
	// Path returns the directory holding product files.
	Path() string
	// Objects returns the number of committed objects.
	Objects() uint64
	// Allow reports whether the bucket accepts new files.
	Allow() bool
	// TopK returns the k most requested keys.
	TopK(k int) []string

	// WriteFile opens a new file for id.
	WriteFile(ctx context.Context, id *object.ID) (FileWriter, error)
	// ReadFile opens the committed file of id.
	ReadFile(ctx context.Context, id *object.ID) (File, error)
}

// IterateFunc is called per index record; returning false stops iteration.
type IterateFunc func(key []byte, val *object.Metadata) bool

type IndexDB interface {
	io.Closer

	// Get returns the metadata stored under key or ErrKeyNotFound.
	Get(ctx context.Context, key []byte) (*object.Metadata, error)
	Set(ctx context.Context, key []byte, val *object.Metadata) error
	Exist(ctx context.Context, key []byte) bool
	Delete(ctx context.Context, key []byte) error
	Iterate(ctx context.Context, prefix []byte, f IterateFunc) error
}

// Option configures an IndexDB.
type Option interface {
	DBPath() string
	Codec() encoding.Codec
	// Unmarshal decodes the driver specific db_config into v.
	Unmarshal(v any) error
}

type IndexDBFactory func(path string, option Option) (IndexDB, error)
