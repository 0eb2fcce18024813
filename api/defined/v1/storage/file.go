package storage

import (
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/pebble/v2/vfs"
)

// File is the committed content of a product as a bucket hands it out.
// The disk bucket returns *os.File.
type File interface {
	io.ReadCloser

	Stat() (os.FileInfo, error)
	Name() string
}

var _ File = (*memFile)(nil)

// memFile is a product held by an in-memory vfs. Close is idempotent, the
// cache and the client stream may both close it.
type memFile struct {
	vfs.File

	name string
	once sync.Once
	cerr error
}

func (f *memFile) Stat() (os.FileInfo, error) {
	return f.File.Stat()
}

func (f *memFile) Name() string {
	return f.name
}

func (f *memFile) Close() error {
	f.once.Do(func() { f.cerr = f.File.Close() })
	return f.cerr
}

// WrapVFSFile exposes a vfs file opened at path as a File.
func WrapVFSFile(f vfs.File, path string) File {
	return &memFile{File: f, name: path}
}
