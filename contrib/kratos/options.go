package kratos

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/contrib/transport"
)

// Hook runs at one stage of the application lifecycle.
type Hook func(context.Context) error

// hooks groups the lifecycle callbacks by stage.
type hooks struct {
	beforeStart []Hook
	afterStart  []Hook
	beforeStop  []Hook
	afterStop   []Hook
}

// runAll stops at the first failure.
func runAll(ctx context.Context, fns []Hook) error {
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runEach runs every hook and joins the failures.
func runEach(ctx context.Context, fns []Hook) (err error) {
	for _, fn := range fns {
		err = errors.Join(err, fn(ctx))
	}
	return err
}

type options struct {
	id      string
	name    string
	version string

	ctx    context.Context
	sigs   []os.Signal
	logger log.Logger

	stopTimeout time.Duration
	servers     []transport.Server

	hooks hooks
}

func ID(id string) Option {
	return func(o *options) { o.id = id }
}

func Name(name string) Option {
	return func(o *options) { o.name = name }
}

func Version(version string) Option {
	return func(o *options) { o.version = version }
}

// Context sets the parent of the application context.
func Context(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

func Logger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Server appends transport servers.
func Server(svs ...transport.Server) Option {
	return func(o *options) { o.servers = append(o.servers, svs...) }
}

// Signal replaces the signals that stop the application.
func Signal(sigs ...os.Signal) Option {
	return func(o *options) { o.sigs = sigs }
}

// StopTimeout bounds each server Stop and the AfterStop hooks.
func StopTimeout(t time.Duration) Option {
	return func(o *options) { o.stopTimeout = t }
}

// BeforeStart hooks run in order before any server starts. The first error
// aborts Run.
func BeforeStart(fn Hook) Option {
	return func(o *options) { o.hooks.beforeStart = append(o.hooks.beforeStart, fn) }
}

// AfterStart hooks run once every server goroutine is running.
func AfterStart(fn Hook) Option {
	return func(o *options) { o.hooks.afterStart = append(o.hooks.afterStart, fn) }
}

// BeforeStop hooks run when Stop is called, before the servers shut down.
func BeforeStop(fn Hook) Option {
	return func(o *options) { o.hooks.beforeStop = append(o.hooks.beforeStop, fn) }
}

// AfterStop hooks run after every server stopped. All of them run.
func AfterStop(fn Hook) Option {
	return func(o *options) { o.hooks.afterStop = append(o.hooks.afterStop, fn) }
}
