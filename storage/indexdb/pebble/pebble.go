package pebble

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"

	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/api/defined/v1/storage/object"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/pkg/encoding"
	"github.com/omalloc/cellar/storage/indexdb"
)

var _ storage.IndexDB = (*PebbleDB)(nil)

type dbOptions struct {
	// SyncWrite fsyncs every Set, default off.
	SyncWrite bool `yaml:"sync_write"`
	// DisableWAL trades crash safety for write speed.
	DisableWAL bool `yaml:"disable_wal"`
	// SkipErrRecord drops undecodable records while iterating instead of failing.
	SkipErrRecord bool `yaml:"skip_err_record"`
}

type PebbleDB struct {
	codec         encoding.Codec
	db            *pebble.DB
	writeOpts     *pebble.WriteOptions
	skipErrRecord bool
}

func init() {
	indexdb.Register("pebble", New)
}

func New(path string, option storage.Option) (storage.IndexDB, error) {
	opts := dbOptions{SkipErrRecord: true}
	if err := option.Unmarshal(&opts); err != nil {
		return nil, err
	}

	popts := &pebble.Options{
		DisableWAL: opts.DisableWAL,
		Logger:     log.NewHelper(log.NewFilter(log.GetLogger(), log.FilterLevel(log.LevelWarn))),
	}
	if path == indexdb.TypeInMemory {
		popts.FS = vfs.NewMem()
		path = ""
	}

	db, err := pebble.Open(path, popts)
	if err != nil {
		return nil, err
	}

	p := &PebbleDB{
		codec:         option.Codec(),
		db:            db,
		writeOpts:     pebble.NoSync,
		skipErrRecord: opts.SkipErrRecord,
	}
	if opts.SyncWrite {
		p.writeOpts = pebble.Sync
	}
	return p, nil
}

// Get implements [storage.IndexDB].
func (p *PebbleDB) Get(ctx context.Context, key []byte) (*object.Metadata, error) {
	val, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}
	defer closer.Close()

	meta := &object.Metadata{}
	if err = p.codec.Unmarshal(val, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Set implements [storage.IndexDB].
func (p *PebbleDB) Set(ctx context.Context, key []byte, val *object.Metadata) error {
	buf, err := p.codec.Marshal(val)
	if err != nil {
		return err
	}
	return p.db.Set(key, buf, p.writeOpts)
}

// Exist implements [storage.IndexDB].
func (p *PebbleDB) Exist(ctx context.Context, key []byte) bool {
	_, closer, err := p.db.Get(key)
	if err != nil {
		return false
	}
	_ = closer.Close()
	return true
}

// Delete implements [storage.IndexDB].
func (p *PebbleDB) Delete(ctx context.Context, key []byte) error {
	return p.db.Delete(key, p.writeOpts)
}

// Iterate implements [storage.IndexDB].
func (p *PebbleDB) Iterate(ctx context.Context, prefix []byte, f storage.IterateFunc) error {
	iterOpts := &pebble.IterOptions{}
	if len(prefix) > 0 {
		iterOpts.LowerBound = prefix
		iterOpts.UpperBound = upperBound(prefix)
	}

	iter, err := p.db.NewIterWithContext(ctx, iterOpts)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err = ctx.Err(); err != nil {
			return err
		}

		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		meta := &object.Metadata{}
		if err = p.codec.Unmarshal(val, meta); err != nil {
			if p.skipErrRecord {
				log.Warnf("pebble skip undecodable record %q: %v", iter.Key(), err)
				continue
			}
			return err
		}

		// iter.Key() is only valid until Next
		key := append([]byte(nil), iter.Key()...)
		if !f(key, meta) {
			return nil
		}
	}
	return iter.Error()
}

// Close implements [storage.IndexDB].
func (p *PebbleDB) Close() error {
	return p.db.Close()
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
