package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	DownloadsTotal.WithLabelValues("COMPLETE").Add(2)
	CacheRequestsTotal.WithLabelValues("HIT").Inc()
	RetriesTotal.Add(3)
	BytesTotal.WithLabelValues("src").Add(125)

	snap := Collect()

	byLabel := func(list []*LabeledTotal, label string) float64 {
		for _, l := range list {
			if l.Label == label {
				return l.Count
			}
		}
		return -1
	}
	assert.GreaterOrEqual(t, byLabel(snap.Downloads, "COMPLETE"), float64(2))
	assert.Equal(t, float64(0), byLabel(snap.Downloads, "FAILED"))
	assert.GreaterOrEqual(t, byLabel(snap.CacheRequests, "HIT"), float64(1))
	assert.GreaterOrEqual(t, snap.Retries, float64(3))
	assert.GreaterOrEqual(t, snap.Bytes, float64(125))
}

func TestCounterSmoother(t *testing.T) {
	s := &CounterSmoother{Alpha: 0.5}
	assert.Equal(t, float64(0), s.Update(10))
	assert.Equal(t, float64(5), s.Update(20))
	assert.Equal(t, float64(2.5), s.Update(15))
}
