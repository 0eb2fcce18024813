package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrDownload matches every error Manager.Download returns.
	ErrDownload = errors.New("download failed")
	// ErrResourceNotFound is returned by a retriever when the source has no such product.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrResourceNotSupported is returned by a retriever that cannot serve the request.
	ErrResourceNotSupported = errors.New("resource not supported")
	// ErrInvalidRequest flags a request missing a mandatory collaborator.
	ErrInvalidRequest = errors.New("invalid download request")
)

// Error is returned by Manager.Download. It matches ErrDownload and unwraps
// to the underlying cause.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("download ")
	b.WriteString(e.Op)
	if e.Key != "" {
		b.WriteString(" ")
		b.WriteString(e.Key)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrDownload }

// Errorf returns an *Error for op on key wrapping cause.
func Errorf(op, key string, cause error, format string, args ...any) *Error {
	if format == "" {
		return &Error{Op: op, Key: key, Err: cause}
	}
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return &Error{Op: op, Key: key, Err: errors.New(msg)}
	}
	return &Error{Op: op, Key: key, Err: fmt.Errorf("%s: %w", msg, cause)}
}

// ResourceRequest names the product a client asked for.
type ResourceRequest struct {
	// Name is the attribute the product is looked up by, e.g. "id".
	Name  string
	Value any
	// Properties carries optional request settings such as the qualifier
	// of a derived product.
	Properties map[string]any
}

// Property returns the string value of a request property.
func (r *ResourceRequest) Property(name string) string {
	if r == nil || r.Properties == nil {
		return ""
	}
	if v, ok := r.Properties[name].(string); ok {
		return v
	}
	return ""
}

// Metacard is the catalog record of a product.
type Metacard struct {
	ID         string
	SourceID   string
	Title      string
	Attributes map[string]any
}

// Resource is one upstream response. Offset is the product position of the
// first Body byte; a retriever that cannot seek returns 0 whatever offset
// was requested.
type Resource struct {
	Name     string
	MimeType string
	// Size is the full product size, -1 when unknown.
	Size   int64
	Offset int64
	Body   io.ReadCloser
}

// ResourceRetriever fetches a product from its source.
type ResourceRetriever interface {
	// RetrieveResource opens the product at byte offset.
	RetrieveResource(ctx context.Context, offset int64) (*Resource, error)
}

// RetrieverFunc adapts a function to ResourceRetriever.
type RetrieverFunc func(ctx context.Context, offset int64) (*Resource, error)

func (f RetrieverFunc) RetrieveResource(ctx context.Context, offset int64) (*Resource, error) {
	return f(ctx, offset)
}

// ResourceResponse is handed back to the client. Resource.Body streams the
// product while the download runs in the background.
type ResourceResponse struct {
	Request    *ResourceRequest
	Resource   *Resource
	Properties map[string]string
}
