package server

import (
	"net"
	"strings"
)

// Listen binds the configured address. It is a no-op once bound, so the
// socket can be opened before tableflip reports ready.
func (s *HTTPServer) Listen() error {
	if s.listener != nil {
		return nil
	}

	// normal listen
	listen := net.Listen
	if s.flip != nil {
		// graceful listen
		listen = s.flip.Listen
	}

	// normal network
	network := "tcp"
	if strings.HasSuffix(s.Server.Addr, ".sock") {
		// unix socket
		network = "unix"
	}

	ln, err := listen(network, s.Server.Addr)
	if err != nil {
		return err
	}

	s.listener = ln
	return nil
}

// ListenAddr returns the bound address once started.
func (s *HTTPServer) ListenAddr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
