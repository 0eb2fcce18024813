package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "cellar"

var (
	// cellar_download_downloads_total{status="COMPLETE"} 12
	DownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "downloads_total",
		Help:      "The total number of finished downloads by terminal status",
	}, []string{"status"})
	RetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "retries_total",
		Help:      "The total number of upstream retries",
	})
	BytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "bytes_total",
		Help:      "The total number of bytes read from upstream sources",
	}, []string{"source"})
	Inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "inflight",
		Help:      "The number of running downloads",
	})
	// cellar_cache_requests_total{result="HIT"} 3
	CacheRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "The total number of product requests by cache result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(DownloadsTotal, RetriesTotal, BytesTotal, Inflight, CacheRequestsTotal)

	for _, s := range []string{"COMPLETE", "CANCELLED", "FAILED"} {
		DownloadsTotal.WithLabelValues(s)
	}
	for _, r := range []string{"HIT", "MISS", "BYPASS"} {
		CacheRequestsTotal.WithLabelValues(r)
	}
}

// CounterSmoother turns a monotonically increasing total into a smoothed
// per-sample delta.
type CounterSmoother struct {
	lastValue float64
	smoothed  float64
	Alpha     float64
	isInit    bool
}

func (s *CounterSmoother) Update(currentTotal float64) float64 {
	if !s.isInit {
		s.lastValue = currentTotal
		s.isInit = true
		return 0
	}

	delta := currentTotal - s.lastValue
	if delta < 0 {
		delta = 0
	}

	s.smoothed = s.Alpha*delta + (1-s.Alpha)*s.smoothed
	s.lastValue = currentTotal

	return s.smoothed
}

// LabeledTotal is one sample of a labeled counter.
type LabeledTotal struct {
	Label string  `json:"label"`
	Count float64 `json:"count"`
}

// Snapshot is the aggregated view served on /stats.
type Snapshot struct {
	Downloads     []*LabeledTotal `json:"downloads"`
	CacheRequests []*LabeledTotal `json:"cache_requests"`
	Retries       float64         `json:"retries"`
	Bytes         float64         `json:"bytes"`
	Inflight      float64         `json:"inflight"`
}

// Collect reads the current values of the download metrics.
func Collect() *Snapshot {
	return collect(Gather())
}

func collect(mfs []*dto.MetricFamily) *Snapshot {
	snap := &Snapshot{
		Downloads:     make([]*LabeledTotal, 0),
		CacheRequests: make([]*LabeledTotal, 0),
	}
	for _, mf := range mfs {
		switch mf.GetName() {
		case "cellar_download_downloads_total":
			snap.Downloads = labeled(mf, "status")
		case "cellar_cache_requests_total":
			snap.CacheRequests = labeled(mf, "result")
		case "cellar_download_retries_total":
			snap.Retries = sum(mf)
		case "cellar_download_bytes_total":
			snap.Bytes = sum(mf)
		case "cellar_download_inflight":
			for _, m := range mf.GetMetric() {
				snap.Inflight += m.GetGauge().GetValue()
			}
		}
	}
	return snap
}

func labeled(mf *dto.MetricFamily, name string) []*LabeledTotal {
	totals := make([]*LabeledTotal, 0, len(mf.GetMetric()))
	for _, metric := range mf.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == name {
				totals = append(totals, &LabeledTotal{
					Label: label.GetValue(),
					Count: metric.GetCounter().GetValue(),
				})
			}
		}
	}
	return totals
}

func sum(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func Gather() []*dto.MetricFamily {
	familys, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil
	}
	return familys
}
