package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/internal/constants"
)

type requestMetricKey struct{}

// RequestMetric follows one HTTP request through the server.
type RequestMetric struct {
	StartAt     time.Time
	RequestID   string
	RemoteAddr  string
	CacheStatus string
	DownloadID  string
	SentBytes   uint64
}

func (r *RequestMetric) Clone() *RequestMetric {
	out := *r
	return &out
}

// WithRequestMetric attaches a new RequestMetric to req.
func WithRequestMetric(req *http.Request) (*http.Request, *RequestMetric) {
	metric := &RequestMetric{
		StartAt:    time.Now(),
		RequestID:  MustParseRequestID(req.Header),
		RemoteAddr: req.RemoteAddr,
	}
	return req.WithContext(NewContext(req.Context(), metric)), metric
}

func FromContext(ctx context.Context) *RequestMetric {
	if v, ok := ctx.Value(requestMetricKey{}).(*RequestMetric); ok {
		return v
	}
	return &RequestMetric{}
}

func NewContext(ctx context.Context, metric *RequestMetric) context.Context {
	return context.WithValue(ctx, requestMetricKey{}, metric)
}

// MustParseRequestID returns the request id header or a new one.
func MustParseRequestID(h http.Header) string {
	if id := h.Get(constants.ProtocolRequestIDKey); id != "" {
		return id
	}
	return uuid.NewString()
}

// RequestID is a log.Valuer printing the request id bound to ctx.
func RequestID() log.Valuer {
	return func(ctx context.Context) any {
		if ctx == nil {
			return ""
		}
		return FromContext(ctx).RequestID
	}
}
