package object

import (
	"bytes"
	"io"
	"time"
)

// Metadata is the persisted description of a committed product.
type Metadata struct {
	Key         string `json:"key" cbor:"key"`
	SourceID    string `json:"source_id" cbor:"source_id"`
	ResourceID  string `json:"resource_id" cbor:"resource_id"`
	Qualifier   string `json:"qualifier,omitempty" cbor:"qualifier,omitempty"`
	FileName    string `json:"file_name" cbor:"file_name"`
	MimeType    string `json:"mime_type" cbor:"mime_type"`
	Size        int64  `json:"size" cbor:"size"`
	Checksum    uint64 `json:"checksum" cbor:"checksum"` // xxhash64 of the content
	Path        string `json:"path" cbor:"path"`
	CreatedAt   int64  `json:"created_at" cbor:"created_at"`
	LastRefUnix int64  `json:"last_ref" cbor:"last_ref"`
	Refs        int64  `json:"refs" cbor:"refs"`
}

// ID rebuilds the object ID the metadata was stored under.
func (m *Metadata) ID() *ID {
	return NewQualifiedID(m.SourceID, m.ResourceID, m.Qualifier)
}

func (m *Metadata) Clone() *Metadata {
	c := *m
	return &c
}

// NewMetadata returns the metadata for a product about to be written.
func NewMetadata(id *ID, fileName, mimeType string) *Metadata {
	now := time.Now().Unix()
	return &Metadata{
		Key:         id.Key(),
		SourceID:    id.SourceID(),
		ResourceID:  id.ResourceID(),
		Qualifier:   id.Qualifier(),
		FileName:    fileName,
		MimeType:    mimeType,
		Size:        0,
		CreatedAt:   now,
		LastRefUnix: now,
	}
}

// OpenFunc opens the content of a committed product for reading.
type OpenFunc func() (io.ReadCloser, error)

// ReliableResource is a complete product held by the cache.
type ReliableResource struct {
	meta *Metadata
	data []byte
	open OpenFunc
}

// NewReliableResource returns a resource whose content lives behind open,
// typically a file in a bucket.
func NewReliableResource(meta *Metadata, open OpenFunc) *ReliableResource {
	return &ReliableResource{meta: meta, open: open}
}

// NewMemoryResource returns a resource whose content is held in data.
func NewMemoryResource(meta *Metadata, data []byte) *ReliableResource {
	return &ReliableResource{meta: meta, data: data}
}

func (r *ReliableResource) Metadata() *Metadata { return r.meta }

func (r *ReliableResource) Key() string { return r.meta.Key }

func (r *ReliableResource) FileName() string { return r.meta.FileName }

func (r *ReliableResource) MimeType() string { return r.meta.MimeType }

func (r *ReliableResource) Size() int64 { return r.meta.Size }

func (r *ReliableResource) Checksum() uint64 { return r.meta.Checksum }

// Path returns the location of the cached file, empty for in-memory resources.
func (r *ReliableResource) Path() string { return r.meta.Path }

// Bytes returns the in-memory content, nil when the resource is file backed.
func (r *ReliableResource) Bytes() []byte { return r.data }

// Open returns a reader over the whole product.
func (r *ReliableResource) Open() (io.ReadCloser, error) {
	if r.open != nil {
		return r.open()
	}
	return io.NopCloser(bytes.NewReader(r.data)), nil
}
