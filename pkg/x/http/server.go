package http

import (
	"net/http"
	"slices"

	"github.com/omalloc/cellar/contrib/log"
)

// ServeMux is an http.ServeMux that remembers its patterns.
type ServeMux struct {
	*http.ServeMux

	routes []string
}

func NewServeMux() *ServeMux {
	return &ServeMux{ServeMux: http.NewServeMux()}
}

func (m *ServeMux) Handle(pattern string, h http.Handler) {
	m.ServeMux.Handle(pattern, h)
	m.routes = append(m.routes, pattern)
}

func (m *ServeMux) HandleFunc(pattern string, h http.HandlerFunc) {
	m.Handle(pattern, h)
}

// Routes returns the registered patterns, sorted.
func (m *ServeMux) Routes() []string {
	routes := slices.Clone(m.routes)
	slices.Sort(routes)
	return slices.Compact(routes)
}

func (m *ServeMux) PrintRoutes() {
	for _, r := range m.Routes() {
		log.Infof("router handler %s", r)
	}
}
