package status

import (
	"context"
	"time"

	"github.com/omalloc/cellar/api/defined/v1/event"
	"github.com/omalloc/cellar/contrib/log"
)

// StatusListener receives every download status transition.
type StatusListener interface {
	OnStatus(ctx context.Context, ev *event.DownloadStatus)
}

// Listener keeps Info up to date. It is the only writer of Info.
type Listener struct {
	info *Info
}

func NewListener(info *Info) *Listener {
	return &Listener{info: info}
}

// OnStatus implements StatusListener.
func (l *Listener) OnStatus(ctx context.Context, ev *event.DownloadStatus) {
	if ev == nil || ev.DownloadID == "" {
		return
	}

	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	l.info.update(ev.DownloadID, func(e *Entry, created bool) {
		if created {
			e.StartedAt = now
			e.Status = InProgress
		}
		if e.Status.Terminal() {
			log.Context(ctx).Debugf("download %s already %s, ignore %s", e.DownloadID, e.Status, ev.State)
			return
		}

		switch ev.State {
		case event.StateStarted:
			e.Status = InProgress
		case event.StateRetrying:
			e.Status = Retrying
			e.Retries++
		case event.StateComplete:
			e.Status = Completed
		case event.StateCancelled:
			e.Status = Cancelled
		case event.StateFailed:
			e.Status = Failed
		case event.StateProgress:
			// bytes and rate only
		}

		if ev.Detail != "" {
			e.Detail = ev.Detail
		}
		if ev.FileName != "" {
			e.FileName = ev.FileName
		}
		if ev.Key != "" {
			e.Key = ev.Key
		}
		if ev.TotalBytes > 0 {
			e.TotalBytes = ev.TotalBytes
		}
		if ev.BytesTransferred > e.BytesDownloaded {
			e.BytesDownloaded = ev.BytesTransferred
		}
		e.BytesPerSecond = ev.BytesPerSecond
		e.UpdatedAt = now
	})
}
