package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileName(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, "b.ntf", FileName(h, "/a/b.ntf"))
	assert.Equal(t, "", FileName(h, "/"))

	h.Set("Content-Disposition", `attachment; filename="../product.ntf"`)
	assert.Equal(t, "product.ntf", FileName(h, "/a/b.ntf"))
}

func TestMimeType(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, "", MimeType(h))
	h.Set("Content-Type", "text/plain; charset=utf-8")
	assert.Equal(t, "text/plain", MimeType(h))
}

func TestCopyHeader(t *testing.T) {
	dst := http.Header{"A": {"old"}}
	CopyHeader(dst, http.Header{"A": {"1", "2"}, "B": {"3"}})
	assert.Equal(t, []string{"1", "2"}, dst.Values("A"))
	assert.Equal(t, "3", dst.Get("B"))
}
