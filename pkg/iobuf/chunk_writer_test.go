package iobuf

import (
	"errors"
	"strings"
	"testing"
)

// mockWriteCloser is a mock implementation of io.WriteCloser
type mockWriteCloser struct {
	writeData   []byte
	writeErr    error
	closeCalled bool
	closeErr    error
}

func (m *mockWriteCloser) Write(p []byte) (n int, err error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.writeData = append(m.writeData, p...)
	return len(p), nil
}

func (m *mockWriteCloser) Close() error {
	m.closeCalled = true
	return m.closeErr
}

func TestChunkWriter_MultipleWrites(t *testing.T) {
	mock := &mockWriteCloser{}
	writer := ChunkWriterCloser(mock, nil, nil)

	for _, part := range []string{"Hello, ", "World!", ""} {
		if _, err := writer.Write([]byte(part)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	if string(mock.writeData) != "Hello, World!" {
		t.Errorf("expected 'Hello, World!', got '%s'", string(mock.writeData))
	}
	if writer.Written() != 13 {
		t.Errorf("expected 13 bytes written, got %d", writer.Written())
	}
}

func TestChunkWriter_WriteError(t *testing.T) {
	writeErr := errors.New("write failed")
	writer := ChunkWriterCloser(&mockWriteCloser{writeErr: writeErr}, nil, nil)

	n, err := writer.Write([]byte("test"))
	if n != 0 {
		t.Errorf("expected 0 bytes written on error, got %d", n)
	}
	if !errors.Is(err, writeErr) {
		t.Errorf("expected %v error, got %v", writeErr, err)
	}
}

func TestChunkWriter_CloseCommits(t *testing.T) {
	mock := &mockWriteCloser{}
	var committed, aborted bool
	writer := ChunkWriterCloser(mock,
		func() error { committed = true; return nil },
		func() error { aborted = true; return nil },
	)

	if err := writer.Close(); err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}
	if !mock.closeCalled || !committed || aborted {
		t.Errorf("expected close+commit, got close=%v commit=%v abort=%v", mock.closeCalled, committed, aborted)
	}

	// finished writers reject everything
	if _, err := writer.Write([]byte(strings.Repeat("x", 10))); !errors.Is(err, ErrWriterFinished) {
		t.Errorf("expected ErrWriterFinished, got %v", err)
	}
	if err := writer.Abort(); !errors.Is(err, ErrWriterFinished) {
		t.Errorf("expected ErrWriterFinished, got %v", err)
	}
	if aborted {
		t.Error("abort must not run after commit")
	}
}

func TestChunkWriter_AbortSkipsCommit(t *testing.T) {
	var committed, aborted bool
	writer := ChunkWriterCloser(&mockWriteCloser{},
		func() error { committed = true; return nil },
		func() error { aborted = true; return nil },
	)

	if err := writer.Abort(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if committed || !aborted {
		t.Errorf("expected abort only, got commit=%v abort=%v", committed, aborted)
	}
}

func TestChunkWriter_UnderlyingCloseError(t *testing.T) {
	underlyingErr := errors.New("underlying close failed")
	var committed, aborted bool
	writer := ChunkWriterCloser(&mockWriteCloser{closeErr: underlyingErr},
		func() error { committed = true; return nil },
		func() error { aborted = true; return nil },
	)

	if err := writer.Close(); !errors.Is(err, underlyingErr) {
		t.Errorf("expected %v, got %v", underlyingErr, err)
	}
	if committed || !aborted {
		t.Errorf("a failed close must abort, got commit=%v abort=%v", committed, aborted)
	}
}

func TestChunkWriter_FailedCommitAborts(t *testing.T) {
	commitErr := errors.New("rename failed")
	var aborted bool
	writer := ChunkWriterCloser(&mockWriteCloser{},
		func() error { return commitErr },
		func() error { aborted = true; return nil },
	)

	if err := writer.Close(); !errors.Is(err, commitErr) {
		t.Errorf("expected %v, got %v", commitErr, err)
	}
	if !aborted {
		t.Error("a failed commit must abort")
	}
}
