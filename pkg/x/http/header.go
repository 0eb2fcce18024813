package http

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// CopyHeader copies all headers from src to dst, replacing existing values.
func CopyHeader(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = make([]string, 0, len(vv))
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// FileName returns the file name announced in Content-Disposition or, when
// absent, the last element of urlPath.
//
// Content-Disposition: attachment; filename="product.ntf"
func FileName(h http.Header, urlPath string) string {
	if cd := h.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return path.Base(name)
			}
		}
	}

	name := path.Base(strings.TrimSuffix(urlPath, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// MimeType returns the media type of the Content-Type header without parameters.
func MimeType(h http.Header) string {
	ct := h.Get("Content-Type")
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}
