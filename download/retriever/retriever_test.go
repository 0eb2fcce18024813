package retriever

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/cellar/api/defined/v1/download"
	"github.com/omalloc/cellar/conf"
)

var product = bytes.Repeat([]byte("0123456789abcdefghijklmnopqrstuvwxyz"), 100)

func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/a.ntf":
			assert.Equal(t, "secret", r.Header.Get("X-Token"))
			w.Header().Set("Content-Type", "application/octet-stream")
			http.ServeContent(w, r, "a.ntf", time.Time{}, bytes.NewReader(product))
		case "/products/gone":
			w.WriteHeader(http.StatusGone)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readAll(t *testing.T, res *download.Resource) []byte {
	t.Helper()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return data
}

func TestHTTPRetriever(t *testing.T) {
	srv := newOrigin(t)
	ctx := context.Background()
	r := NewHTTP(srv.URL+"/products/a.ntf", WithHeader(http.Header{"X-Token": {"secret"}}))

	res, err := r.RetrieveResource(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "a.ntf", res.Name)
	assert.Equal(t, "application/octet-stream", res.MimeType)
	assert.Equal(t, int64(len(product)), res.Size)
	assert.Equal(t, int64(0), res.Offset)
	assert.Equal(t, product, readAll(t, res))

	res, err = r.RetrieveResource(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Offset)
	assert.Equal(t, int64(len(product)), res.Size)
	assert.Equal(t, product[1000:], readAll(t, res))
}

func TestHTTPRetrieverErrors(t *testing.T) {
	srv := newOrigin(t)
	ctx := context.Background()

	_, err := NewHTTP(srv.URL+"/products/missing").RetrieveResource(ctx, 0)
	assert.ErrorIs(t, err, download.ErrResourceNotFound)

	_, err = NewHTTP(srv.URL+"/products/gone").RetrieveResource(ctx, 0)
	assert.ErrorIs(t, err, download.ErrResourceNotFound)

	_, err = NewHTTP("::bad url").RetrieveResource(ctx, 0)
	assert.ErrorIs(t, err, download.ErrResourceNotSupported)
}

func TestFileRetriever(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(path, product, 0o644))

	ctx := context.Background()
	res, err := NewFile(path).RetrieveResource(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", res.Name)
	assert.Equal(t, "text/plain", res.MimeType)
	assert.Equal(t, product, readAll(t, res))

	res, err = NewFile(path).RetrieveResource(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Offset)
	assert.Equal(t, product[50:], readAll(t, res))

	_, err = NewFile(filepath.Join(dir, "none")).RetrieveResource(ctx, 0)
	assert.ErrorIs(t, err, download.ErrResourceNotFound)

	_, err = NewFile(dir).RetrieveResource(ctx, 0)
	assert.ErrorIs(t, err, download.ErrResourceNotSupported)
}

func TestForSource(t *testing.T) {
	srv := newOrigin(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.bin"), product, 0o644))

	ctx := context.Background()

	r, err := ForSource(&conf.Source{
		ID:       "web",
		Type:     TypeHTTP,
		Endpoint: srv.URL + "/products",
		Options: map[string]any{
			"timeout": "5s",
			"header":  map[string]any{"X-Token": "secret"},
		},
	}, "a.ntf")
	require.NoError(t, err)
	res, err := r.RetrieveResource(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, product, readAll(t, res))

	r, err = ForSource(&conf.Source{ID: "local", Type: TypeFile, Endpoint: dir}, "c.bin")
	require.NoError(t, err)
	res, err = r.RetrieveResource(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, product, readAll(t, res))

	_, err = ForSource(&conf.Source{ID: "local", Type: TypeFile, Endpoint: dir}, "../etc/passwd")
	assert.ErrorIs(t, err, download.ErrResourceNotSupported)

	_, err = ForSource(&conf.Source{ID: "x", Type: "ftp"}, "a")
	assert.ErrorIs(t, err, download.ErrResourceNotSupported)
}
