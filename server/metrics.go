package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// cellar_server_requests_code_total{route="GET /downloads",code="200"} 11
	_metricRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cellar",
		Subsystem: "server",
		Name:      "requests_code_total",
		Help:      "The total number of processed requests",
	}, []string{"route", "code"})
	_metricRequestUnexpectedClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cellar",
		Subsystem: "server",
		Name:      "requests_unexpected_closed",
		Help:      "The total number of product streams the client closed early",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(_metricRequestsTotal)
	prometheus.MustRegister(_metricRequestUnexpectedClosed)
}

func observeRequest(route string, code int) {
	_metricRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
