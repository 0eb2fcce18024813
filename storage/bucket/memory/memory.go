package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble/v2/vfs"

	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/api/defined/v1/storage/object"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/pkg/iobuf"
	"github.com/omalloc/cellar/storage/bucket"
	"github.com/omalloc/cellar/storage/indexdb"
)

var _ storage.Bucket = (*memoryBucket)(nil)

// default in-memory object limit
const defaultMaxObjects = 10_000

// memoryBucket keeps files and index in process memory. Restart as lost.
type memoryBucket struct {
	*bucket.Index

	fs     vfs.FS
	path   string
	driver string
}

func New(opt *storage.BucketConfig) (storage.Bucket, error) {
	mb := &memoryBucket{
		fs:     vfs.NewMem(),
		path:   opt.Path,
		driver: opt.Driver,
	}
	if mb.path == "" {
		mb.path = "memory"
	}

	maxObjects := opt.MaxObjectLimit
	if maxObjects <= 0 {
		maxObjects = defaultMaxObjects
	}

	// create indexdb only in-memory
	dbType := opt.DBType
	if dbType == "" {
		dbType = "pebble"
	}
	db, err := indexdb.Create(dbType, indexdb.NewOption(indexdb.TypeInMemory, indexdb.WithCodec(opt.Codec)))
	if err != nil {
		log.Errorf("failed to create %s indexdb %v", dbType, err)
		return nil, err
	}

	mb.Index = bucket.NewIndex(mb.ID(), db, maxObjects, mb.removeFile)
	return mb, nil
}

func (m *memoryBucket) wpath(hash object.IDHash) string {
	return hash.WPath("/")
}

// Discard implements [storage.Bucket].
func (m *memoryBucket) Discard(ctx context.Context, id *object.ID) error {
	if err := m.Index.Delete(ctx, id); err != nil {
		log.Context(ctx).Warnf("failed to delete metadata %s: %v", id.Key(), err)
	}
	return m.removeFile(id.Hash())
}

func (m *memoryBucket) removeFile(hash object.IDHash) error {
	if err := m.fs.Remove(m.wpath(hash)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// WriteFile implements [storage.Bucket].
func (m *memoryBucket) WriteFile(ctx context.Context, id *object.ID) (storage.FileWriter, error) {
	wpath := m.wpath(id.Hash())
	if err := m.fs.MkdirAll(filepath.Dir(wpath), 0o755); err != nil {
		return nil, err
	}

	tmpPath := wpath + time.Now().Format(".tmp20060102150405.000000000")
	f, err := m.fs.Create(tmpPath, vfs.WriteCategoryUnspecified)
	if err != nil {
		return nil, fmt.Errorf("memory bucket create %s failed err %w", id.Key(), err)
	}

	return &fileWriter{
		ChunkWriter: iobuf.ChunkWriterCloser(f,
			func() error { return m.fs.Rename(tmpPath, wpath) },
			func() error { return m.fs.Remove(tmpPath) },
		),
	}, nil
}

// ReadFile implements [storage.Bucket].
func (m *memoryBucket) ReadFile(ctx context.Context, id *object.ID) (storage.File, error) {
	wpath := m.wpath(id.Hash())
	f, err := m.fs.Open(wpath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}
	return storage.WrapVFSFile(f, wpath), nil
}

// Allow implements [storage.Bucket].
func (m *memoryBucket) Allow() bool {
	return true
}

// ID implements [storage.Bucket].
func (m *memoryBucket) ID() string {
	return m.path
}

// Driver implements [storage.Bucket].
func (m *memoryBucket) Driver() string {
	return m.driver
}

// Path implements [storage.Bucket].
func (m *memoryBucket) Path() string {
	return m.path
}

// Objects implements [storage.Bucket].
func (m *memoryBucket) Objects() uint64 {
	return uint64(m.Index.Len())
}

type fileWriter struct {
	*iobuf.ChunkWriter
}

// Commit returns an empty location, memory files have no path outside the bucket.
func (w *fileWriter) Commit() (string, error) {
	return "", w.ChunkWriter.Close()
}
