package kratos

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omalloc/cellar/contrib/log"
)

// Option is an application option.
type Option func(o *options)

// App manages the lifecycle of the transport servers.
type App struct {
	opts   options
	ctx    context.Context
	cancel context.CancelFunc
	log    *log.Helper

	mu sync.Mutex
}

func New(opts ...Option) *App {
	o := options{
		ctx:         context.Background(),
		sigs:        []os.Signal{syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT},
		logger:      log.GetLogger(),
		stopTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(o.ctx)
	return &App{
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
		log:    log.NewHelper(o.logger),
	}
}

func (a *App) ID() string { return a.opts.id }

func (a *App) Name() string { return a.opts.name }

func (a *App) Version() string { return a.opts.version }

// Run starts every server and blocks until a signal arrives, Stop is called
// or a server fails.
func (a *App) Run() error {
	sctx := a.ctx
	if err := runAll(sctx, a.opts.hooks.beforeStart); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(sctx)
	wg := sync.WaitGroup{}

	for _, srv := range a.opts.servers {
		eg.Go(func() error {
			<-ctx.Done() // wait for stop signal
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.stopTimeout)
			defer cancel()
			return srv.Stop(stopCtx)
		})
		wg.Add(1)
		eg.Go(func() error {
			wg.Done()
			return srv.Start(sctx)
		})
	}
	wg.Wait()

	if err := runAll(sctx, a.opts.hooks.afterStart); err != nil {
		_ = a.Stop()
		_ = eg.Wait()
		return err
	}
	a.log.Infof("%s %s started", a.opts.name, a.opts.version)

	c := make(chan os.Signal, 1)
	signal.Notify(c, a.opts.sigs...)
	defer signal.Stop(c)

	eg.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-c:
			a.log.Infof("received signal %s, shutting down", sig)
			return a.Stop()
		}
	})

	err := eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), a.opts.stopTimeout)
	defer cancel()
	err = errors.Join(err, runEach(stopCtx, a.opts.hooks.afterStop))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop gracefully stops the application.
func (a *App) Stop() (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	err = runEach(context.WithoutCancel(a.ctx), a.opts.hooks.beforeStop)
	a.cancel()
	return err
}
