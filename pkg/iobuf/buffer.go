package iobuf

import (
	"errors"
	"io"
	"os"
	"sync"
)

var (
	// ErrReaderClosed is returned to the writer once the reader detached.
	ErrReaderClosed = errors.New("iobuf: reader closed")
	// ErrWriterClosed is returned by Write after CloseWithError.
	ErrWriterClosed = errors.New("iobuf: writer closed")
)

// DefaultMemoryThreshold is used when NewBuffer receives a non-positive threshold.
const DefaultMemoryThreshold = 32 << 20

// Buffer decouples one writer from one reader. Up to threshold unread bytes
// stay in memory, the overflow is spilled to a temporary file, so Write
// never blocks on a slow reader.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	mem       []byte
	threshold int

	tempDir string
	file    *os.File
	spilled bool
	fileW   int64
	fileR   int64

	written int64
	read    int64

	err          error // terminal writer state, io.EOF when clean
	readerClosed bool
	detached     chan struct{}
}

// NewBuffer returns a Buffer spilling into tempDir (os.TempDir when empty)
// once more than threshold bytes are unread.
func NewBuffer(threshold int, tempDir string) *Buffer {
	if threshold <= 0 {
		threshold = DefaultMemoryThreshold
	}
	b := &Buffer{
		threshold: threshold,
		tempDir:   tempDir,
		detached:  make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write appends p. It fails with ErrReaderClosed once the reader detached.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readerClosed {
		return 0, ErrReaderClosed
	}
	if b.err != nil {
		return 0, ErrWriterClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	// memory bytes always precede file bytes
	if b.fileW == b.fileR && len(b.mem)+len(p) <= b.threshold {
		b.mem = append(b.mem, p...)
		b.written += int64(len(p))
		b.cond.Broadcast()
		return len(p), nil
	}

	if b.file == nil {
		f, err := os.CreateTemp(b.tempDir, "cellar-buffer-*")
		if err != nil {
			return 0, err
		}
		b.file = f
		b.spilled = true
	}
	if b.fileW == b.fileR {
		b.fileW, b.fileR = 0, 0
	}

	n, err := b.file.WriteAt(p, b.fileW)
	b.fileW += int64(n)
	b.written += int64(n)
	b.cond.Broadcast()
	return n, err
}

// Read blocks until data is available, the writer finished or the reader
// was closed. After the writer finished every buffered byte is still
// returned before the terminal error.
func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}

	for {
		if b.readerClosed {
			return 0, ErrReaderClosed
		}

		if len(b.mem) > 0 {
			n := copy(p, b.mem)
			b.mem = b.mem[n:]
			if len(b.mem) == 0 {
				b.mem = nil
			}
			b.read += int64(n)
			return n, nil
		}

		if unread := b.fileW - b.fileR; unread > 0 {
			if int64(len(p)) > unread {
				p = p[:unread]
			}
			n, err := b.file.ReadAt(p, b.fileR)
			b.fileR += int64(n)
			b.read += int64(n)
			if err == io.EOF && n > 0 {
				err = nil
			}
			return n, err
		}

		if b.err != nil {
			b.removeFile()
			return 0, b.err
		}

		b.cond.Wait()
	}
}

// CloseWithError finishes the writer side. A nil err means the data is
// complete and the reader sees io.EOF.
func (b *Buffer) CloseWithError(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	b.err = err
	b.cond.Broadcast()
	return nil
}

// Close detaches the reader. Pending and future writes fail with ErrReaderClosed.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readerClosed {
		return nil
	}
	b.readerClosed = true
	b.mem = nil
	close(b.detached)
	b.removeFile()
	b.cond.Broadcast()
	return nil
}

// Detached is closed once the reader called Close.
func (b *Buffer) Detached() <-chan struct{} {
	return b.detached
}

// Buffered returns the number of bytes written but not yet read.
func (b *Buffer) Buffered() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written - b.read
}

// Spilled reports whether the buffer ever overflowed to disk.
func (b *Buffer) Spilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spilled
}

func (b *Buffer) removeFile() {
	if b.file == nil {
		return
	}
	name := b.file.Name()
	_ = b.file.Close()
	_ = os.Remove(name)
	b.file = nil
	b.fileW, b.fileR = 0, 0
}
