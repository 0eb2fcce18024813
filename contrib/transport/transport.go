package transport

import "context"

// Server is a long running component the App starts and stops.
type Server interface {
	Start(context.Context) error
	Stop(context.Context) error
}
