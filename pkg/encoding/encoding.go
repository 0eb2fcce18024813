package encoding

import (
	"fmt"
	"strings"
	"sync"
)

var (
	mu           sync.RWMutex
	registered   = make(map[string]Codec)
	defaultCodec = "json"
)

// Codec defines the interface the index databases use to encode and decode
// metadata. Implementations must be thread safe; a Codec's methods can be
// called from concurrent goroutines.
type Codec interface {
	// Marshal returns the wire format of v.
	Marshal(v any) ([]byte, error)
	// Unmarshal parses the wire format into v.
	Unmarshal(data []byte, v any) error
	// Name returns the name of the Codec implementation. The result must be
	// static; the result cannot change between calls.
	Name() string
}

// RegisterCodec makes a codec available by its name. Codecs register
// themselves from an init function of their own package.
func RegisterCodec(codec Codec) {
	if codec == nil {
		panic("cannot register a nil Codec")
	}
	mu.Lock()
	defer mu.Unlock()

	registered[strings.ToLower(codec.Name())] = codec
}

// GetCodec returns the codec registered under name.
func GetCodec(name string) (Codec, error) {
	mu.RLock()
	defer mu.RUnlock()

	if name == "" {
		name = defaultCodec
	}
	c, ok := registered[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("codec %q not registered", name)
	}
	return c, nil
}

// SetDefaultCodec sets the codec name used when none is configured.
func SetDefaultCodec(name string) {
	mu.Lock()
	defer mu.Unlock()

	defaultCodec = strings.ToLower(name)
}

func GetDefaultCodec() Codec {
	c, _ := GetCodec("")
	return c
}
