package bucket

import (
	"context"
	"errors"
	"time"

	"github.com/paulbellamy/ratecounter"

	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/api/defined/v1/storage/object"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/pkg/algorithm/lru"
)

// DefaultMaxObjectLimit bounds the number of committed objects per bucket.
const DefaultMaxObjectLimit = 10_000_000

// RemoveFunc deletes the content file stored under hash.
type RemoveFunc func(hash object.IDHash) error

// ExistFunc reports whether the content file of md is still present.
type ExistFunc func(md *object.Metadata) bool

// Index keeps the persistent metadata of a bucket in an IndexDB and tracks
// access frequency in an LFU cache. Entries pushed out of the LFU have
// their metadata and file removed by a background goroutine.
type Index struct {
	name   string
	db     storage.IndexDB
	cache  *lru.Cache[string, object.IDHash]
	remove RemoveFunc
	stop   chan struct{}
	done   chan struct{}
}

func NewIndex(name string, db storage.IndexDB, maxObjects int, remove RemoveFunc) *Index {
	if maxObjects <= 0 {
		maxObjects = DefaultMaxObjectLimit
	}
	idx := &Index{
		name:   name,
		db:     db,
		cache:  lru.New[string, object.IDHash](maxObjects),
		remove: remove,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	ch := make(chan lru.Eviction[string, object.IDHash], 100)
	idx.cache.EvictionChannel = ch

	go idx.evict(ch)
	return idx
}

func (idx *Index) evict(ch <-chan lru.Eviction[string, object.IDHash]) {
	clog := log.Context(context.Background())

	clog.Debugf("start evict goroutine for %s", idx.name)

	defer close(idx.done)
	for {
		select {
		case <-idx.stop:
			return
		case evicted := <-ch:
			// the key may have been stored again since
			if idx.cache.Has(evicted.Key) {
				continue
			}
			clog.Debugf("evict %s from %s", evicted.Key, idx.name)
			if err := idx.db.Delete(context.Background(), []byte(evicted.Key)); err != nil {
				clog.Warnf("failed to delete evicted metadata %s: %v", evicted.Key, err)
			}
			if err := idx.remove(evicted.Value); err != nil {
				clog.Warnf("failed to remove evicted file %s: %v", evicted.Key, err)
			}
		}
	}
}

// Load fills the LFU from the IndexDB. Records whose file vanished are
// dropped. With async the scan runs in the background.
func (idx *Index) Load(async bool, exist ExistFunc) {
	load := func() {
		mdCount, dropped := 0, 0
		counter := ratecounter.NewRateCounter(1 * time.Second)
		stop := make(chan struct{}, 1)
		runMode := formatSync(async)

		log.Infof("start %s load metadata from %s", runMode, idx.name)
		go func() {
			tick := time.NewTicker(time.Second)
			defer tick.Stop()
			for {
				select {
				case <-stop:
					log.Infof("bucket %s %s load metadata(%d/dropped-%d) done. per-second %d/s", idx.name, runMode, mdCount, dropped, counter.Rate())
					return
				case <-tick.C:
					log.Infof("bucket %s %s load metadata(%d/dropped-%d). per-second %d/s", idx.name, runMode, mdCount, dropped, counter.Rate())
				}
			}
		}()

		var stale [][]byte
		_ = idx.db.Iterate(context.Background(), nil, func(key []byte, meta *object.Metadata) bool {
			if meta == nil {
				return true
			}
			if exist != nil && !exist(meta) {
				stale = append(stale, key)
				dropped++
				return true
			}
			mdCount++
			idx.cache.Set(string(key), meta.ID().Hash())
			counter.Incr(1)
			return true
		})

		for _, key := range stale {
			_ = idx.db.Delete(context.Background(), key)
		}

		stop <- struct{}{}
	}

	if async {
		go load()
	} else {
		load()
	}
}

// Lookup returns the metadata of id and counts the access.
func (idx *Index) Lookup(ctx context.Context, id *object.ID) (*object.Metadata, error) {
	md, err := idx.db.Get(ctx, id.Bytes())
	if err != nil {
		return nil, err
	}
	if md == nil {
		return nil, storage.ErrKeyNotFound
	}
	// touch
	if idx.cache.Get(id.Key()) == nil {
		idx.cache.Set(id.Key(), id.Hash())
	}
	return md, nil
}

// Store persists md and registers it in the LFU, which may evict others.
func (idx *Index) Store(ctx context.Context, md *object.Metadata) error {
	if err := idx.db.Set(ctx, []byte(md.Key), md); err != nil {
		return err
	}
	idx.cache.Set(md.Key, md.ID().Hash())
	return nil
}

func (idx *Index) Exist(ctx context.Context, id *object.ID) bool {
	return idx.db.Exist(ctx, id.Bytes())
}

// Delete drops the metadata of id. The file is left to the caller.
func (idx *Index) Delete(ctx context.Context, id *object.ID) error {
	idx.cache.Remove(id.Key())
	err := idx.db.Delete(ctx, id.Bytes())
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (idx *Index) Iterate(ctx context.Context, fn func(*object.Metadata) error) error {
	return idx.db.Iterate(ctx, nil, func(_ []byte, md *object.Metadata) bool {
		return fn(md) == nil
	})
}

func (idx *Index) Len() int {
	return idx.cache.Len()
}

func (idx *Index) TopK(k int) []string {
	return idx.cache.TopK(k)
}

func (idx *Index) Close() error {
	close(idx.stop)
	<-idx.done
	return idx.db.Close()
}

func formatSync(async bool) string {
	if async {
		return "async"
	}
	return "sync"
}
