package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/omalloc/cellar/api/defined/v1/download"
)

var _ download.ResourceRetriever = (*File)(nil)

// File retrieves a product from the local filesystem.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

// RetrieveResource implements download.ResourceRetriever.
func (r *File) RetrieveResource(ctx context.Context, offset int64) (*download.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", r.path, download.ErrResourceNotFound)
		}
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is not a regular file: %w", r.path, download.ErrResourceNotSupported)
	}

	if offset > 0 {
		if _, err = f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return &download.Resource{
		Name:     filepath.Base(r.path),
		MimeType: mimeType(r.path),
		Size:     fi.Size(),
		Offset:   offset,
		Body:     f,
	}, nil
}

func mimeType(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			return parsed
		}
		return mt
	}
	return "application/octet-stream"
}
