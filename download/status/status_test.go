package status

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/cellar/api/defined/v1/event"
)

type recorder struct {
	mu     sync.Mutex
	states []event.DownloadState
}

func (r *recorder) OnStatus(_ context.Context, ev *event.DownloadStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, ev.State)
}

func (r *recorder) get() []event.DownloadState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.DownloadState(nil), r.states...)
}

func TestListenerLifecycle(t *testing.T) {
	info := NewInfo(0)
	l := NewListener(info)
	ctx := context.Background()

	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "d1", State: event.StateStarted, FileName: "a.bin", Key: "src-a", TotalBytes: 125})

	e, ok := info.GetDownloadStatus("d1")
	require.True(t, ok)
	assert.Equal(t, InProgress, e.Status)
	assert.Equal(t, "a.bin", e.FileName)
	assert.Equal(t, int64(125), e.TotalBytes)

	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "d1", State: event.StateProgress, BytesTransferred: 50})
	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "d1", State: event.StateRetrying, BytesTransferred: 50})
	e, _ = info.GetDownloadStatus("d1")
	assert.Equal(t, Retrying, e.Status)
	assert.Equal(t, 1, e.Retries)

	// bytes never go backwards
	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "d1", State: event.StateStarted, BytesTransferred: 10})
	e, _ = info.GetDownloadStatus("d1")
	assert.Equal(t, InProgress, e.Status)
	assert.Equal(t, int64(50), e.BytesDownloaded)

	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "d1", State: event.StateComplete, BytesTransferred: 125})
	e, _ = info.GetDownloadStatus("d1")
	assert.Equal(t, Completed, e.Status)
	assert.Equal(t, int64(125), e.BytesDownloaded)

	// terminal status is final
	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "d1", State: event.StateFailed})
	e, _ = info.GetDownloadStatus("d1")
	assert.Equal(t, Completed, e.Status)
}

func TestInfoQueries(t *testing.T) {
	info := NewInfo(0)
	l := NewListener(info)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		l.OnStatus(ctx, &event.DownloadStatus{DownloadID: id, State: event.StateStarted})
	}
	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "c", State: event.StateCancelled})

	assert.Equal(t, []string{"a", "b", "c"}, info.GetAllDownloads())
	assert.Len(t, info.List(), 3)
	assert.Equal(t, map[Status]int{InProgress: 2, Cancelled: 1}, info.Count())

	assert.True(t, info.RemoveDownloadInfo("a"))
	assert.False(t, info.RemoveDownloadInfo("a"))
	_, ok := info.GetDownloadStatus("a")
	assert.False(t, ok)

	e, _ := info.GetDownloadStatus("b")
	e.Status = Failed
	e2, _ := info.GetDownloadStatus("b")
	assert.Equal(t, InProgress, e2.Status, "returned entries are copies")
}

func TestInfoSweep(t *testing.T) {
	info := NewInfo(time.Minute)
	l := NewListener(info)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "old", State: event.StateStarted, Timestamp: past})
	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "old", State: event.StateComplete, Timestamp: past})
	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "running", State: event.StateStarted, Timestamp: past})
	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "fresh", State: event.StateStarted})
	l.OnStatus(ctx, &event.DownloadStatus{DownloadID: "fresh", State: event.StateFailed})

	assert.Equal(t, 1, info.Sweep(time.Now()))
	assert.Equal(t, []string{"fresh", "running"}, info.GetAllDownloads())

	assert.Equal(t, 0, NewInfo(0).Sweep(time.Now()))
}

func TestPublisherGating(t *testing.T) {
	bus := event.NewBus()
	notified := &recorder{}
	active := &recorder{}
	event.SubscribeOn[*event.DownloadStatus](bus, event.DownloadNotification, notified.OnStatus)
	event.SubscribeOn[*event.DownloadStatus](bus, event.DownloadActivity, active.OnStatus)

	local := &recorder{}
	p := NewPublisher(bus, false, true)
	p.AddListener(local)
	ctx := context.Background()

	p.PostNotification(ctx, &event.DownloadStatus{DownloadID: "1", State: event.StateStarted}, true, true)
	assert.Equal(t, []event.DownloadState{event.StateStarted}, local.get())

	p.SetNotificationEnabled(true)
	p.SetActivityEnabled(false)
	p.PostNotification(ctx, &event.DownloadStatus{DownloadID: "1", State: event.StateRetrying}, true, true)

	p.SetActivityEnabled(true)
	p.PostNotification(ctx, &event.DownloadStatus{DownloadID: "1", State: event.StateProgress}, false, true)

	assert.Eventually(t, func() bool {
		return len(notified.get()) == 1 && len(active.get()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []event.DownloadState{event.StateRetrying}, notified.get())
	assert.Equal(t, []event.DownloadState{event.StateProgress}, active.get())
	assert.Len(t, local.get(), 3)
	assert.True(t, p.NotificationEnabled())
	assert.True(t, p.ActivityEnabled())
}
