package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/cloudflare/tableflip"

	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/conf"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/contrib/transport"
	"github.com/omalloc/cellar/download"
	"github.com/omalloc/cellar/download/status"
	xhttp "github.com/omalloc/cellar/pkg/x/http"
	"github.com/omalloc/cellar/server/mod"
)

var _ transport.Server = (*HTTPServer)(nil)

type HTTPServer struct {
	*http.Server

	flip     *tableflip.Upgrader
	listener net.Listener

	mgr     *download.Manager
	info    *status.Info
	cache   storage.ResourceCache
	sources map[string]*conf.Source

	mux *xhttp.ServeMux
	log *log.Helper
}

type Option func(*HTTPServer)

// WithUpgrader listens through flip so the socket survives a binary upgrade.
func WithUpgrader(flip *tableflip.Upgrader) Option {
	return func(s *HTTPServer) { s.flip = flip }
}

// WithListener serves on ln instead of listening on the configured address.
func WithListener(ln net.Listener) Option {
	return func(s *HTTPServer) { s.listener = ln }
}

func NewServer(c *conf.Server, mgr *download.Manager, info *status.Info, cache storage.ResourceCache, sources []*conf.Source, opts ...Option) *HTTPServer {
	s := &HTTPServer{
		Server: &http.Server{
			Addr:              c.Addr,
			ReadTimeout:       c.ReadTimeout,
			ReadHeaderTimeout: c.ReadHeaderTimeout,
			WriteTimeout:      c.WriteTimeout,
			IdleTimeout:       c.IdleTimeout,
			MaxHeaderBytes:    c.MaxHeaderBytes,
		},
		mgr:     mgr,
		info:    info,
		cache:   cache,
		sources: make(map[string]*conf.Source, len(sources)),
		log:     log.NewHelper(log.With(log.GetLogger(), "module", "server")),
	}
	for _, src := range sources {
		s.sources[src.ID] = src
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = s.newServeMux()
	s.Server.Handler = mod.HandleAccessLog(c.AccessLog, s.mux.ServeHTTP)
	return s
}

func (s *HTTPServer) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.BaseContext = func(net.Listener) context.Context { return ctx }
	s.mux.PrintRoutes()
	s.log.Infof("http server listening on %s", s.listener.Addr())

	if err := s.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.log.Infof("http server shutting down")
	return s.Shutdown(ctx)
}
