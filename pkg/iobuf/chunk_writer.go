package iobuf

import (
	"errors"
	"io"
	"sync"
)

// ErrWriterFinished is returned by a ChunkWriter after Close or Abort.
var ErrWriterFinished = errors.New("iobuf: writer finished")

// ChunkWriter forwards writes to an underlying file. Close finishes the file
// and runs commit, Abort finishes it and runs abort. Only the first of the
// two has any effect. A failed commit runs abort.
type ChunkWriter struct {
	w       io.WriteCloser
	commit  func() error
	abort   func() error
	written int64
	once    sync.Once
	done    bool
}

func (cw *ChunkWriter) Write(p []byte) (n int, err error) {
	if cw.done {
		return 0, ErrWriterFinished
	}
	n, err = cw.w.Write(p)
	cw.written += int64(n)
	return
}

// Written returns the number of bytes accepted by the underlying file.
func (cw *ChunkWriter) Written() int64 {
	return cw.written
}

func (cw *ChunkWriter) Close() error {
	return cw.finish(true)
}

func (cw *ChunkWriter) Abort() error {
	return cw.finish(false)
}

func (cw *ChunkWriter) finish(commit bool) (err error) {
	err = ErrWriterFinished
	cw.once.Do(func() {
		cw.done = true
		if err = cw.w.Close(); err != nil {
			cw.runAbort()
			return
		}
		if !commit {
			err = cw.runAbort()
			return
		}
		if cw.commit != nil {
			if err = cw.commit(); err != nil {
				_ = cw.runAbort()
			}
		}
	})
	return err
}

func (cw *ChunkWriter) runAbort() error {
	if cw.abort == nil {
		return nil
	}
	return cw.abort()
}

// ChunkWriterCloser wraps file so that Close runs commit after the file
// is closed, and Abort runs abort instead.
func ChunkWriterCloser(file io.WriteCloser, commit, abort func() error) *ChunkWriter {
	return &ChunkWriter{
		w:      file,
		commit: commit,
		abort:  abort,
	}
}
