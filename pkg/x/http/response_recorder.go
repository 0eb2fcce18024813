package http

import (
	"io"
	"net/http"
)

var (
	_ http.Flusher  = (*ResponseRecorder)(nil)
	_ io.ReaderFrom = (*ResponseRecorder)(nil)
)

// ResponseRecorder counts what a handler sends: the status line once and
// every body byte.
type ResponseRecorder struct {
	http.ResponseWriter

	code    int
	written uint64
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w}
}

func (r *ResponseRecorder) WriteHeader(code int) {
	if r.code != 0 {
		return
	}
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *ResponseRecorder) Write(b []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	n, err := r.ResponseWriter.Write(b)
	r.written += uint64(n)
	return n, err
}

// ReadFrom hands product streams to the underlying writer so cached files
// can go out through sendfile.
func (r *ResponseRecorder) ReadFrom(src io.Reader) (int64, error) {
	r.WriteHeader(http.StatusOK)

	var (
		n   int64
		err error
	)
	if rf, ok := r.ResponseWriter.(io.ReaderFrom); ok {
		n, err = rf.ReadFrom(src)
	} else {
		n, err = io.Copy(writerOnly{r.ResponseWriter}, src)
	}
	r.written += uint64(n)
	return n, err
}

func (r *ResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *ResponseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Status is the code sent to the client, 200 when the handler wrote nothing.
func (r *ResponseRecorder) Status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}

// Size is the number of body bytes sent.
func (r *ResponseRecorder) Size() uint64 {
	return r.written
}

// SentBytes estimates the bytes on the wire, status line and headers included.
func (r *ResponseRecorder) SentBytes() uint64 {
	return ResponseHeaderSize(r.Status(), r.Header()) + r.written
}

// ResponseHeaderSize approximates the HTTP/1.1 encoding of a response head.
func ResponseHeaderSize(code int, hdr http.Header) uint64 {
	// "HTTP/1.1 200 OK\r\n"
	n := uint64(len("HTTP/1.1 000 \r\n") + len(http.StatusText(code)))

	// "Key: value\r\n" per value
	for k, vs := range hdr {
		for _, v := range vs {
			n += uint64(len(k) + len(v) + 4)
		}
	}

	// blank line
	return n + 2
}

// writerOnly hides ReadFrom so io.Copy does not recurse.
type writerOnly struct {
	io.Writer
}
