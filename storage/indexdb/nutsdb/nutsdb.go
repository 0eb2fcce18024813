package nutsdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/nutsdb/nutsdb"

	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/api/defined/v1/storage/object"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/pkg/encoding"
	"github.com/omalloc/cellar/storage/indexdb"
)

var _ storage.IndexDB = (*NutsDB)(nil)

type dbOptions struct {
	Bucket    string `yaml:"bucket"`
	SyncWrite bool   `yaml:"sync_write"`
	SegmentMB int64  `yaml:"segment_mb"`
}

type NutsDB struct {
	codec  encoding.Codec
	db     *nutsdb.DB
	bucket string
	memDir string
}

func init() {
	indexdb.Register("nutsdb", New)
}

func New(path string, option storage.Option) (storage.IndexDB, error) {
	opts := dbOptions{Bucket: "metadata", SegmentMB: 64}
	if err := option.Unmarshal(&opts); err != nil {
		return nil, err
	}

	// nutsdb has no in-memory mode, use a throwaway directory
	var memDir string
	if path == indexdb.TypeInMemory {
		dir, err := os.MkdirTemp("", "cellar-nutsdb-*")
		if err != nil {
			return nil, err
		}
		path, memDir = dir, dir
	}

	db, err := nutsdb.Open(
		nutsdb.DefaultOptions,
		nutsdb.WithDir(filepath.Clean(path)),
		nutsdb.WithSyncEnable(opts.SyncWrite),
		nutsdb.WithSegmentSize(opts.SegmentMB<<20),
	)
	if err != nil {
		return nil, err
	}

	n := &NutsDB{
		codec:  option.Codec(),
		db:     db,
		bucket: opts.Bucket,
		memDir: memDir,
	}

	if err = db.Update(func(tx *nutsdb.Tx) error {
		if tx.ExistBucket(nutsdb.DataStructureBTree, n.bucket) {
			return nil
		}
		return tx.NewKVBucket(n.bucket)
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return n, nil
}

// Close implements [storage.IndexDB].
func (n *NutsDB) Close() error {
	err := n.db.Close()
	if n.memDir != "" {
		err = errors.Join(err, os.RemoveAll(n.memDir))
	}
	return err
}

// Delete implements [storage.IndexDB].
func (n *NutsDB) Delete(ctx context.Context, key []byte) error {
	err := n.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Delete(n.bucket, key)
	})
	if isNotFound(err) {
		return nil
	}
	return err
}

// Exist implements [storage.IndexDB].
func (n *NutsDB) Exist(ctx context.Context, key []byte) bool {
	var ret bool
	if err := n.db.View(func(tx *nutsdb.Tx) error {
		v, err := tx.Get(n.bucket, key)
		if err != nil {
			return err
		}
		ret = v != nil
		return nil
	}); err != nil {
		return false
	}
	return ret
}

// Get implements [storage.IndexDB].
func (n *NutsDB) Get(ctx context.Context, key []byte) (*object.Metadata, error) {
	var meta *object.Metadata
	if err := n.db.View(func(tx *nutsdb.Tx) error {
		v, err := tx.Get(n.bucket, key)
		if err != nil {
			return err
		}
		if v == nil {
			return nutsdb.ErrKeyNotFound
		}
		meta = &object.Metadata{}
		return n.codec.Unmarshal(v, meta)
	}); err != nil {
		if isNotFound(err) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}
	return meta, nil
}

// Iterate implements [storage.IndexDB].
func (n *NutsDB) Iterate(ctx context.Context, prefix []byte, f storage.IterateFunc) error {
	return n.db.View(func(tx *nutsdb.Tx) error {
		iterator := nutsdb.NewIterator(tx, n.bucket, nutsdb.IteratorOptions{Reverse: false})
		if iterator == nil {
			return nil
		}

		if len(prefix) > 0 {
			iterator.Seek(prefix)
		} else {
			iterator.Rewind()
		}

		for ; iterator.Valid(); iterator.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			key := iterator.Key()
			if len(prefix) > 0 && !hasPrefix(key, prefix) {
				return nil
			}

			buf, err := iterator.Value()
			if err != nil {
				log.Warnf("nutsdb skip unreadable record %q: %v", key, err)
				continue
			}

			meta := &object.Metadata{}
			if err = n.codec.Unmarshal(buf, meta); err != nil {
				log.Warnf("nutsdb skip undecodable record %q: %v", key, err)
				continue
			}

			if !f(append([]byte(nil), key...), meta) {
				return nil
			}
		}
		return nil
	})
}

// Set implements [storage.IndexDB].
func (n *NutsDB) Set(ctx context.Context, key []byte, val *object.Metadata) error {
	buf, err := n.codec.Marshal(val)
	if err != nil {
		return err
	}
	return n.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(n.bucket, key, buf, nutsdb.Persistent)
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, nutsdb.ErrKeyNotFound) || errors.Is(err, nutsdb.ErrNotFoundKey)
}

func hasPrefix(key, prefix []byte) bool {
	return len(key) >= len(prefix) && string(key[:len(prefix)]) == string(prefix)
}
