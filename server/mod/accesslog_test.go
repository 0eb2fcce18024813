package mod

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/cellar/conf"
	"github.com/omalloc/cellar/internal/constants"
	"github.com/omalloc/cellar/metrics"
)

func TestHandleAccessLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "access.log")

	h := HandleAccessLog(&conf.ServerAccessLog{Enabled: true, Path: path, MaxSize: 1}, func(w http.ResponseWriter, r *http.Request) {
		m := metrics.FromContext(r.Context())
		m.CacheStatus = constants.CacheHit
		m.DownloadID = "d-1"
		_, _ = io.WriteString(w, "product")
	})

	req := httptest.NewRequest(http.MethodGet, "/resource?source=a&id=b", nil)
	req.Header.Set(constants.ProtocolRequestIDKey, "req-1")
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, "product", rec.Body.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `req-1 "GET /resource?source=a&id=b HTTP/1.1" 200`)
	assert.True(t, strings.Contains(line, " HIT d-1 "), line)
}

func TestHandleAccessLogDisabled(t *testing.T) {
	var seen string
	h := HandleAccessLog(&conf.ServerAccessLog{}, func(w http.ResponseWriter, r *http.Request) {
		seen = metrics.FromContext(r.Context()).RequestID
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, seen)
}
