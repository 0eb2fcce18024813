package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/api/defined/v1/storage/object"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/pkg/iobuf"
	"github.com/omalloc/cellar/storage/bucket"
	"github.com/omalloc/cellar/storage/indexdb"
)

var _ storage.Bucket = (*diskBucket)(nil)

type diskBucket struct {
	*bucket.Index

	path      string
	dbPath    string
	driver    string
	asyncLoad bool
	maxUsage  float64
	fileFlag  int
	fileMode  fs.FileMode
}

func New(opt *storage.BucketConfig) (storage.Bucket, error) {
	d := &diskBucket{
		path:      opt.Path,
		dbPath:    opt.DBPath,
		driver:    opt.Driver,
		asyncLoad: opt.AsyncLoad,
		maxUsage:  opt.MaxDiskUsagePercent,
		fileFlag:  os.O_RDONLY,
		fileMode:  fs.FileMode(0o755),
	}

	// hard code of check os.
	if runtime.GOOS == "linux" {
		d.fileFlag |= 0o1000000 // O_NOATIME
	}

	if err := d.initWorkdir(); err != nil {
		return nil, err
	}

	// create indexdb
	db, err := indexdb.Create(opt.DBType, indexdb.NewOption(
		opt.DBPath,
		indexdb.WithCodec(opt.Codec),
		indexdb.WithDBConfig(opt.DBConfig),
	))
	if err != nil {
		log.Errorf("failed to create %s(%s) indexdb %v", opt.DBType, opt.DBPath, err)
		return nil, err
	}

	d.Index = bucket.NewIndex(d.ID(), db, opt.MaxObjectLimit, d.removeFile)

	d.Index.Load(d.asyncLoad, func(md *object.Metadata) bool {
		_, err := os.Stat(md.ID().WPath(d.path))
		return err == nil
	})

	return d, nil
}

// Discard implements storage.Bucket.
func (d *diskBucket) Discard(ctx context.Context, id *object.ID) error {
	if log.Enabled(log.LevelDebug) {
		log.Debugf("discard key=%s path=%s", id.Key(), id.WPath(d.path))
	}

	// drop the index first so no reader can HIT a missing file
	if err := d.Index.Delete(ctx, id); err != nil {
		log.Context(ctx).Warnf("failed to delete metadata %s: %v", id.WPath(d.path), err)
	}
	return d.removeFile(id.Hash())
}

func (d *diskBucket) removeFile(hash object.IDHash) error {
	wpath := hash.WPath(d.path)
	if err := os.Remove(wpath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// WriteFile implements storage.Bucket.
func (d *diskBucket) WriteFile(ctx context.Context, id *object.ID) (storage.FileWriter, error) {
	wpath := id.WPath(d.path)
	_ = os.MkdirAll(filepath.Dir(wpath), d.fileMode)

	tmpPath := wpath + time.Now().Format(".tmp20060102150405.000000000")
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, d.fileMode)
	if err != nil {
		return nil, fmt.Errorf("bucket open-file %s failed err %w", id.Key(), err)
	}

	return &fileWriter{
		ChunkWriter: iobuf.ChunkWriterCloser(f,
			func() error { return os.Rename(tmpPath, wpath) },
			func() error { return os.Remove(tmpPath) },
		),
		wpath: wpath,
	}, nil
}

// ReadFile implements storage.Bucket.
func (d *diskBucket) ReadFile(ctx context.Context, id *object.ID) (storage.File, error) {
	f, err := os.OpenFile(id.WPath(d.path), d.fileFlag, d.fileMode)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}
	return f, nil
}

// Allow implements storage.Bucket.
func (d *diskBucket) Allow() bool {
	if d.maxUsage <= 0 {
		return true
	}
	usage, err := disk.Usage(d.path)
	if err != nil {
		log.Warnf("bucket %s disk usage unavailable: %v", d.ID(), err)
		return true
	}
	if usage.UsedPercent >= d.maxUsage {
		log.Warnf("bucket %s disk usage %.1f%% above %.1f%%, refuse new files", d.ID(), usage.UsedPercent, d.maxUsage)
		return false
	}
	return true
}

// ID implements storage.Bucket.
func (d *diskBucket) ID() string {
	return d.path
}

// Driver implements storage.Bucket.
func (d *diskBucket) Driver() string {
	return d.driver
}

// Path implements storage.Bucket.
func (d *diskBucket) Path() string {
	return d.path
}

// Objects implements storage.Bucket.
func (d *diskBucket) Objects() uint64 {
	return uint64(d.Index.Len())
}

func (d *diskBucket) initWorkdir() error {
	if err := os.MkdirAll(d.path, d.fileMode); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to create directory %s: %w", d.path, err)
	}
	if err := os.MkdirAll(d.dbPath, d.fileMode); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to create directory %s: %w", d.dbPath, err)
	}
	return nil
}

type fileWriter struct {
	*iobuf.ChunkWriter
	wpath string
}

func (w *fileWriter) Commit() (string, error) {
	if err := w.ChunkWriter.Close(); err != nil {
		return "", err
	}
	return w.wpath, nil
}
