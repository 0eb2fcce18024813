package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	downloadv1 "github.com/omalloc/cellar/api/defined/v1/download"
	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/download"
	"github.com/omalloc/cellar/download/retriever"
	"github.com/omalloc/cellar/download/status"
	"github.com/omalloc/cellar/internal/constants"
	"github.com/omalloc/cellar/metrics"
	xhttp "github.com/omalloc/cellar/pkg/x/http"
	"github.com/omalloc/cellar/pkg/x/runtime"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *HTTPServer) newServeMux() *xhttp.ServeMux {
	mux := xhttp.NewServeMux()

	s.route(mux, "GET /resource", s.handleResource)
	s.route(mux, "GET /downloads", s.handleDownloads)
	s.route(mux, "GET /downloads/{id}", s.handleDownload)
	s.route(mux, "DELETE /downloads/{id}", s.handleRemoveDownload)
	s.route(mux, "GET /stats", s.handleStats)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (s *HTTPServer) route(mux *xhttp.ServeMux, pattern string, h handlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec, ok := w.(*xhttp.ResponseRecorder)
		if !ok {
			rec = xhttp.NewResponseRecorder(w)
		}

		if err := h(rec, r); err != nil {
			s.writeError(rec, r, err)
		}
		observeRequest(pattern, rec.Status())
	})
}

func (s *HTTPServer) handleResource(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	src, ok := s.sources[q.Get("source")]
	if !ok {
		return xhttp.NewBizError(http.StatusNotFound, fmt.Errorf("unknown source %q", q.Get("source")))
	}
	id := q.Get("id")
	if id == "" {
		return xhttp.NewBizError(http.StatusBadRequest, errors.New("missing resource id"))
	}

	ret, err := retriever.ForSource(src, id)
	if err != nil {
		return xhttp.NewBizError(http.StatusBadRequest, err)
	}

	req := &downloadv1.ResourceRequest{Name: "id", Value: id}
	if qualifier := q.Get(constants.QualifierProperty); qualifier != "" {
		req.Properties = map[string]any{constants.QualifierProperty: qualifier}
	}
	card := &downloadv1.Metacard{ID: id, SourceID: src.ID, Title: id}

	resp, err := s.mgr.Download(r.Context(), req, card, ret)
	if err != nil {
		return downloadError(err)
	}
	body := resp.Resource.Body
	defer body.Close()

	metric := metrics.FromContext(r.Context())
	metric.CacheStatus = resp.Properties[constants.ProtocolCacheStatusKey]
	metric.DownloadID = resp.Properties[constants.ProtocolDownloadIDKey]

	h := w.Header()
	mimeType := resp.Resource.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	if resp.Resource.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(resp.Resource.Size, 10))
	}
	if name := resp.Resource.Name; name != "" {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	h.Set(constants.ProtocolRequestIDKey, metric.RequestID)
	for k, v := range resp.Properties {
		h.Set(k, v)
	}
	w.WriteHeader(http.StatusOK)

	if _, err = io.Copy(w, body); err != nil {
		// headers are gone, the client sees a truncated body
		if r.Context().Err() != nil {
			_metricRequestUnexpectedClosed.WithLabelValues(src.ID).Inc()
		}
		log.Context(r.Context()).Warnf("stream %s/%s aborted: %v", src.ID, id, err)
	}
	return nil
}

func (s *HTTPServer) handleDownloads(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, s.info.List())
}

func (s *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request) error {
	e, ok := s.info.GetDownloadStatus(r.PathValue("id"))
	if !ok {
		return xhttp.NewBizError(http.StatusNotFound, fmt.Errorf("download %s not found", r.PathValue("id")))
	}
	return writeJSON(w, http.StatusOK, e)
}

func (s *HTTPServer) handleRemoveDownload(w http.ResponseWriter, r *http.Request) error {
	if !s.info.RemoveDownloadInfo(r.PathValue("id")) {
		return xhttp.NewBizError(http.StatusNotFound, fmt.Errorf("download %s not found", r.PathValue("id")))
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Stats is the body of GET /stats.
type Stats struct {
	Runtime   runtime.RuntimeInfo   `json:"runtime"`
	Uptime    string                `json:"uptime"`
	Switches  Switches              `json:"switches"`
	Cache     *storage.Stats        `json:"cache,omitempty"`
	Downloads map[status.Status]int `json:"downloads"`
	Metrics   *metrics.Snapshot     `json:"metrics"`
}

type Switches struct {
	Cache        bool `json:"cache"`
	Notification bool `json:"notification"`
	Activity     bool `json:"activity"`
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, _ *http.Request) error {
	cfg := s.mgr.Config()
	stats := &Stats{
		Runtime: runtime.BuildInfo,
		Uptime:  runtime.BuildInfo.Uptime().String(),
		Switches: Switches{
			Cache:        cfg.CacheEnabled(),
			Notification: cfg.Publisher.NotificationEnabled(),
			Activity:     cfg.Publisher.ActivityEnabled(),
		},
		Downloads: s.info.Count(),
		Metrics:   metrics.Collect(),
	}
	if s.cache != nil {
		cs := s.cache.Stats(10)
		stats.Cache = &cs
	}
	return writeJSON(w, http.StatusOK, stats)
}

func downloadError(err error) error {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, downloadv1.ErrInvalidRequest):
		code = http.StatusBadRequest
	case errors.Is(err, downloadv1.ErrResourceNotFound):
		code = http.StatusNotFound
	case errors.Is(err, downloadv1.ErrResourceNotSupported):
		code = http.StatusNotImplemented
	case errors.Is(err, download.ErrManagerClosed), errors.Is(err, context.Canceled):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	return xhttp.NewBizError(code, err)
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	if be, ok := xhttp.ParseBizError(err); ok {
		code = be.Code()
	}
	if code >= http.StatusInternalServerError {
		log.Context(r.Context()).Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	_ = writeJSON(w, code, map[string]any{"code": code, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
