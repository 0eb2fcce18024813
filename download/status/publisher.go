package status

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omalloc/cellar/api/defined/v1/event"
)

// Publisher posts download transitions. Registered listeners receive every
// event. The bus receives them on the notification topic and the activity
// topic, each behind its own switch; with notifications disabled nothing
// leaves the process.
type Publisher struct {
	mu        sync.RWMutex
	listeners []StatusListener

	notify   func(ctx context.Context, payload *event.DownloadStatus)
	activity func(ctx context.Context, payload *event.DownloadStatus)

	notificationEnabled atomic.Bool
	activityEnabled     atomic.Bool
}

func NewPublisher(bus *event.Bus, notificationEnabled, activityEnabled bool) *Publisher {
	if bus == nil {
		bus = event.Default()
	}
	p := &Publisher{
		notify:   event.PublishOn[*event.DownloadStatus](bus, event.DownloadNotification),
		activity: event.PublishOn[*event.DownloadStatus](bus, event.DownloadActivity),
	}
	p.notificationEnabled.Store(notificationEnabled)
	p.activityEnabled.Store(activityEnabled)
	return p
}

// AddListener registers l for every future event.
func (p *Publisher) AddListener(l StatusListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// PostNotification delivers ev to the listeners and, when enabled, to the
// bus. sendNotification and sendActivity select the external topics.
func (p *Publisher) PostNotification(ctx context.Context, ev *event.DownloadStatus, sendNotification, sendActivity bool) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	p.mu.RLock()
	listeners := p.listeners
	p.mu.RUnlock()

	for _, l := range listeners {
		l.OnStatus(ctx, ev)
	}

	if !p.notificationEnabled.Load() {
		return
	}
	if sendNotification {
		c := *ev
		p.notify(ctx, &c)
	}
	if sendActivity && p.activityEnabled.Load() {
		c := *ev
		p.activity(ctx, &c)
	}
}

func (p *Publisher) SetNotificationEnabled(enabled bool) {
	p.notificationEnabled.Store(enabled)
}

func (p *Publisher) SetActivityEnabled(enabled bool) {
	p.activityEnabled.Store(enabled)
}

func (p *Publisher) NotificationEnabled() bool {
	return p.notificationEnabled.Load()
}

func (p *Publisher) ActivityEnabled() bool {
	return p.activityEnabled.Load()
}
