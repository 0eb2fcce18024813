package kratos

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testServer struct {
	started atomic.Bool
	stopped atomic.Bool
	stop    chan struct{}
	failOn  error
}

func newTestServer() *testServer {
	return &testServer{stop: make(chan struct{})}
}

func (s *testServer) Start(ctx context.Context) error {
	s.started.Store(true)
	if s.failOn != nil {
		return s.failOn
	}
	<-s.stop
	return nil
}

func (s *testServer) Stop(ctx context.Context) error {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stop)
	}
	return nil
}

func TestAppRunStop(t *testing.T) {
	srv := newTestServer()
	var ready atomic.Bool
	var hooks []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			hooks = append(hooks, name)
			return nil
		}
	}

	app := New(
		Name("cellar"),
		Version("test"),
		Server(srv),
		StopTimeout(time.Second),
		BeforeStart(record("before-start")),
		AfterStart(record("after-start")),
		AfterStart(func(context.Context) error {
			ready.Store(true)
			return nil
		}),
		BeforeStop(record("before-stop")),
		AfterStop(record("after-stop")),
	)
	assert.Equal(t, "cellar", app.Name())
	assert.Equal(t, "test", app.Version())

	done := make(chan error, 1)
	go func() { done <- app.Run() }()

	assert.Eventually(t, ready.Load, time.Second, 5*time.Millisecond)
	assert.Eventually(t, srv.started.Load, time.Second, 5*time.Millisecond)
	assert.NoError(t, app.Stop())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.True(t, srv.stopped.Load())
	assert.Equal(t, []string{"before-start", "after-start", "before-stop", "after-stop"}, hooks)
}

func TestAppServerFailure(t *testing.T) {
	srv := newTestServer()
	srv.failOn = errors.New("address already in use")

	err := New(Server(srv), StopTimeout(time.Second)).Run()
	assert.EqualError(t, err, "address already in use")
	assert.True(t, srv.stopped.Load())
}
