package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// IdHashSize is the size of the byte array that contains the object hash.
const IdHashSize = sha1.Size

// IDHash is the fixed-width byte array that represents an ObjectID hash.
type IDHash [IdHashSize]byte

// ID identifies a product in the cache. The key is deterministic:
// sourceID + "-" + resourceID, with "~" + qualifier appended for derived
// products. The resource id and the qualifier are escaped, so the last "-"
// always ends the source id and distinct parts never share a key.
type ID struct {
	sourceID   string
	resourceID string
	qualifier  string
	key        string
	hash       IDHash
}

func (id *ID) String() string {
	return fmt.Sprintf("{%x:%s}", id.hash, id.key)
}

// Key returns the cache key of the product.
func (id *ID) Key() string {
	return id.key
}

func (id *ID) SourceID() string {
	return id.sourceID
}

func (id *ID) ResourceID() string {
	return id.resourceID
}

// Qualifier returns the derived product name, empty for the product itself.
func (id *ID) Qualifier() string {
	return id.qualifier
}

func (id *ID) Hash() IDHash {
	return id.hash
}

func (id *ID) HashStr() string {
	return hex.EncodeToString(id.hash[:])
}

func (id *ID) Bytes() []byte {
	return []byte(id.key)
}

// WPath returns the read/write path of the object ID.
// dir F/FF/hash with path.
func (id *ID) WPath(pwd string) string {
	return id.hash.WPath(pwd)
}

func (idx IDHash) WPath(pwd string) string {
	h := hex.EncodeToString(idx[:])
	return filepath.Join(pwd, h[0:1], h[2:4], h)
}

var keyEscaper = strings.NewReplacer("%", "%25", "-", "%2D", "~", "%7E")

// NewID returns the ID of a product held by a source.
func NewID(sourceID, resourceID string) *ID {
	return NewQualifiedID(sourceID, resourceID, "")
}

// NewQualifiedID returns the ID of a derived product (e.g. an overview).
// An empty qualifier is the same as NewID.
func NewQualifiedID(sourceID, resourceID, qualifier string) *ID {
	key := sourceID + "-" + keyEscaper.Replace(resourceID)
	if qualifier != "" {
		key += "~" + keyEscaper.Replace(qualifier)
	}
	return &ID{
		sourceID:   sourceID,
		resourceID: resourceID,
		qualifier:  qualifier,
		key:        key,
		hash:       sha1.Sum([]byte(key)),
	}
}

// NewKeyID returns the ID of an already keyed product. Hash, Bytes and
// WPath match the ID the key was built from, the key parts are unknown.
func NewKeyID(key string) *ID {
	return &ID{
		key:  key,
		hash: sha1.Sum([]byte(key)),
	}
}
