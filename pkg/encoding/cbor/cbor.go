package cbor

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/omalloc/cellar/pkg/encoding"
)

// Name is the name registered as the cbor codec.
const Name = "cbor"

func init() {
	encoding.RegisterCodec(codec{})
}

type codec struct{}

// Marshal implements encoding.Codec.
func (codec) Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

// Unmarshal implements encoding.Codec.
func (codec) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// Name implements encoding.Codec.
func (codec) Name() string {
	return Name
}
