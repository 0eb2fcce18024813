package retriever

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/omalloc/cellar/api/defined/v1/download"
	"github.com/omalloc/cellar/conf"
)

const (
	TypeHTTP = "http"
	TypeFile = "file"
)

// HTTPSourceOptions is the options block of an http source.
type HTTPSourceOptions struct {
	// Timeout bounds the wait for response headers, never the body.
	Timeout time.Duration     `yaml:"timeout"`
	Header  map[string]string `yaml:"header"`
}

// ForSource returns a retriever of resourceID on src.
func ForSource(src *conf.Source, resourceID string) (download.ResourceRetriever, error) {
	if resourceID == "" || strings.Contains(resourceID, "..") {
		return nil, fmt.Errorf("resource id %q: %w", resourceID, download.ErrResourceNotSupported)
	}

	switch src.Type {
	case TypeHTTP, "":
		var opts HTTPSourceOptions
		if err := src.Unmarshal(&opts); err != nil {
			return nil, fmt.Errorf("source %s options: %w", src.ID, err)
		}

		u, err := url.JoinPath(src.Endpoint, url.PathEscape(resourceID))
		if err != nil {
			return nil, fmt.Errorf("source %s endpoint: %w", src.ID, err)
		}

		header := make(http.Header, len(opts.Header))
		for k, v := range opts.Header {
			header.Set(k, v)
		}
		client := http.DefaultClient
		if opts.Timeout > 0 {
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.ResponseHeaderTimeout = opts.Timeout
			client = &http.Client{Transport: transport}
		}
		return NewHTTP(u, WithClient(client), WithHeader(header)), nil
	case TypeFile:
		return NewFile(filepath.Join(src.Endpoint, filepath.FromSlash(resourceID))), nil
	}
	return nil, fmt.Errorf("source %s type %q: %w", src.ID, src.Type, download.ErrResourceNotSupported)
}
