package storage

import (
	"errors"
	"path/filepath"

	"dario.cat/mergo"

	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/conf"
	"github.com/omalloc/cellar/storage/bucket/disk"
	"github.com/omalloc/cellar/storage/bucket/memory"
	_ "github.com/omalloc/cellar/storage/indexdb/nutsdb"
	_ "github.com/omalloc/cellar/storage/indexdb/pebble"
)

// implements storage.Bucket map.
var bucketMap = map[string]func(opt *storage.BucketConfig) (storage.Bucket, error){
	"native": disk.New,   // local disk
	"disk":   disk.New,   // disk is an alias of native
	"memory": memory.New, // in-memory disk. restart as lost.
}

// defaults every bucket config is completed with.
var defaultBucketConfig = storage.BucketConfig{
	Path:           "/tmp/cellar/product-cache",
	Driver:         "native",
	DBType:         "pebble",
	DBPath:         ".indexdb",
	Codec:          "json",
	MaxObjectLimit: 10_000_000, // default 10 million objects
}

func NewBucket(opt *storage.BucketConfig) (storage.Bucket, error) {
	factory, exist := bucketMap[opt.Driver]
	if !exist {
		return nil, errors.New("bucket factory not found")
	}
	return factory(opt)
}

func mergeConfig(cache *conf.Cache) (*storage.BucketConfig, error) {
	// copied from conf cache.
	copied := &storage.BucketConfig{
		Path:                cache.Path,
		Driver:              cache.Driver,
		DBType:              cache.DBType,
		DBPath:              cache.DBPath,
		Codec:               cache.Codec,
		AsyncLoad:           cache.AsyncLoad,
		MaxObjectLimit:      cache.MaxObjectLimit,
		MaxDiskUsagePercent: cache.MaxDiskUsagePercent,
		DBConfig:            cache.DBConfig, // custom db config
	}

	// fill zero fields only
	if err := mergo.Merge(copied, defaultBucketConfig); err != nil {
		return nil, err
	}

	if !filepath.IsAbs(copied.DBPath) {
		copied.DBPath = filepath.Join(copied.Path, copied.DBPath)
	}
	return copied, nil
}
