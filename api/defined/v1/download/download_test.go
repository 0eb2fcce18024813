package download

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatching(t *testing.T) {
	err := Errorf("retrieve", "ddf-1-abc123", ErrResourceNotFound, "source %s", "ddf-1")

	assert.ErrorIs(t, err, ErrDownload)
	assert.ErrorIs(t, err, ErrResourceNotFound)
	assert.NotErrorIs(t, err, ErrResourceNotSupported)
	assert.Equal(t, "download retrieve ddf-1-abc123: source ddf-1: resource not found", err.Error())

	var derr *Error
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &derr))
	assert.Equal(t, "retrieve", derr.Op)

	assert.Equal(t, "download validate: metacard is nil", Errorf("validate", "", nil, "metacard is nil").Error())
}

func TestRequestProperty(t *testing.T) {
	var nilReq *ResourceRequest
	assert.Empty(t, nilReq.Property("qualifier"))

	req := &ResourceRequest{Properties: map[string]any{"qualifier": "overview", "n": 1}}
	assert.Equal(t, "overview", req.Property("qualifier"))
	assert.Empty(t, req.Property("n"))
}
