package indexdb

import (
	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/pkg/encoding"
	_ "github.com/omalloc/cellar/pkg/encoding/cbor"
	_ "github.com/omalloc/cellar/pkg/encoding/json"
	"github.com/omalloc/cellar/pkg/mapstruct"
)

// TypeInMemory is the db path that keeps the whole index in memory.
const TypeInMemory = ":memory:"

var _ storage.Option = (*option)(nil)

type option struct {
	path     string
	codec    encoding.Codec
	dbConfig map[string]any
}

type OptionFunc func(*option)

// WithCodec selects the metadata codec by name. Unknown names keep the default.
func WithCodec(name string) OptionFunc {
	return func(o *option) {
		c, err := encoding.GetCodec(name)
		if err != nil {
			log.Warnf("indexdb codec %q unavailable, keep %s: %v", name, o.codec.Name(), err)
			return
		}
		o.codec = c
	}
}

// WithDBConfig passes driver specific settings.
func WithDBConfig(cfg map[string]any) OptionFunc {
	return func(o *option) {
		o.dbConfig = cfg
	}
}

func NewOption(path string, opts ...OptionFunc) storage.Option {
	o := &option{
		path:  path,
		codec: encoding.GetDefaultCodec(),
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

func (o *option) DBPath() string { return o.path }

func (o *option) Codec() encoding.Codec { return o.codec }

func (o *option) Unmarshal(v any) error {
	if len(o.dbConfig) == 0 {
		return nil
	}
	return mapstruct.Decode(o.dbConfig, v)
}
