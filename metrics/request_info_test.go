package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omalloc/cellar/internal/constants"
)

func TestWithRequestMetric(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/downloads", nil)
	req.Header.Set(constants.ProtocolRequestIDKey, "req-1")

	req, m := WithRequestMetric(req)
	assert.Equal(t, "req-1", m.RequestID)
	assert.Same(t, m, FromContext(req.Context()))
	assert.Equal(t, "req-1", RequestID()(req.Context()))

	assert.NotEmpty(t, MustParseRequestID(http.Header{}))
	assert.Equal(t, "", FromContext(context.Background()).RequestID)
}
