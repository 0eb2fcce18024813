package retriever

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/omalloc/cellar/api/defined/v1/download"
	xhttp "github.com/omalloc/cellar/pkg/x/http"
	"github.com/omalloc/cellar/pkg/x/http/rangecontrol"
)

var _ download.ResourceRetriever = (*HTTP)(nil)

// HTTP retrieves a product with GET and resumes with a Range request.
type HTTP struct {
	client *http.Client
	url    string
	header http.Header
}

type HTTPOption func(*HTTP)

func WithClient(c *http.Client) HTTPOption {
	return func(r *HTTP) { r.client = c }
}

// WithHeader adds h to every request.
func WithHeader(h http.Header) HTTPOption {
	return func(r *HTTP) { xhttp.CopyHeader(r.header, h) }
}

func NewHTTP(rawURL string, opts ...HTTPOption) *HTTP {
	r := &HTTP{
		client: http.DefaultClient,
		url:    rawURL,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RetrieveResource implements download.ResourceRetriever.
func (r *HTTP) RetrieveResource(ctx context.Context, offset int64) (*download.Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", download.ErrResourceNotSupported, err)
	}
	xhttp.CopyHeader(req.Header, r.header)
	if offset > 0 {
		req.Header.Set("Range", rangecontrol.From(offset))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}

	res := &download.Resource{
		Name:     xhttp.FileName(resp.Header, urlPath(r.url)),
		MimeType: xhttp.MimeType(resp.Header),
		Size:     resp.ContentLength,
		Body:     resp.Body,
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return res, nil
	case http.StatusPartialContent:
		cr, err := rangecontrol.ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil || cr.Unsatisfied {
			drain(resp.Body)
			return nil, fmt.Errorf("resume %s at %d: %w", r.url, offset, rangecontrol.ErrInvalidContentRange)
		}
		res.Offset = cr.Start
		res.Size = cr.Size
		return res, nil
	}

	drain(resp.Body)
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return nil, fmt.Errorf("%s: %w", r.url, download.ErrResourceNotFound)
	case http.StatusMethodNotAllowed, http.StatusNotImplemented, http.StatusRequestedRangeNotSatisfiable:
		return nil, fmt.Errorf("%s: status %d: %w", r.url, resp.StatusCode, download.ErrResourceNotSupported)
	}
	return nil, fmt.Errorf("%s: unexpected status %d", r.url, resp.StatusCode)
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

func drain(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, 4<<10)
	_ = body.Close()
}
