package download

import (
	"sync/atomic"

	"github.com/omalloc/cellar/pkg/iobuf"
)

// InputStream is the body handed to the client. It reads what the
// downloader pushed so far, blocks while the transfer is behind, and
// ends with io.EOF or the transfer's terminal error once every delivered
// byte was read. Closing it cancels the client side of the transfer.
type InputStream struct {
	id   string
	buf  *iobuf.Buffer
	read atomic.Int64
}

func newInputStream(id string, buf *iobuf.Buffer) *InputStream {
	return &InputStream{id: id, buf: buf}
}

func (s *InputStream) Read(p []byte) (int, error) {
	n, err := s.buf.Read(p)
	s.read.Add(int64(n))
	return n, err
}

// Close detaches the client. The downloader notices on its next write.
func (s *InputStream) Close() error {
	return s.buf.Close()
}

// DownloadID returns the id of the transfer feeding the stream.
func (s *InputStream) DownloadID() string {
	return s.id
}

// BytesRead returns the number of bytes the client consumed.
func (s *InputStream) BytesRead() int64 {
	return s.read.Load()
}

// Buffered returns the number of bytes waiting for the client.
func (s *InputStream) Buffered() int64 {
	return s.buf.Buffered()
}
