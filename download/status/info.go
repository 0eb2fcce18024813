package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/omalloc/cellar/contrib/log"
)

// Status is the state of a download as seen by clients.
type Status string

const (
	InProgress Status = "IN_PROGRESS"
	Retrying   Status = "RETRYING"
	Completed  Status = "COMPLETED"
	Failed     Status = "FAILED"
	Cancelled  Status = "CANCELLED"
)

// Terminal reports whether s is final.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Entry is the registry record of one download.
type Entry struct {
	DownloadID      string    `json:"download_id"`
	Status          Status    `json:"status"`
	Detail          string    `json:"detail,omitempty"`
	BytesDownloaded int64     `json:"bytes_downloaded"`
	TotalBytes      int64     `json:"total_bytes"`
	BytesPerSecond  int64     `json:"bytes_per_second"`
	FileName        string    `json:"file_name"`
	Key             string    `json:"key"`
	Retries         int       `json:"retries"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Info is the queryable registry of downloads. Entries are written only by
// the Listener and stay after a terminal status until removed or until the
// retention elapses.
type Info struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	retention time.Duration
}

// NewInfo returns a registry. A zero retention keeps entries until removed.
func NewInfo(retention time.Duration) *Info {
	return &Info{
		entries:   make(map[string]*Entry),
		retention: retention,
	}
}

// GetAllDownloads returns every known download id, sorted.
func (i *Info) GetAllDownloads() []string {
	i.mu.RLock()
	ids := lo.Keys(i.entries)
	i.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// GetDownloadStatus returns a copy of the entry of id.
func (i *Info) GetDownloadStatus(id string) (*Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.entries[id]
	if !ok {
		return nil, false
	}
	c := *e
	return &c, true
}

// List returns a copy of every entry, most recent first.
func (i *Info) List() []*Entry {
	i.mu.RLock()
	list := lo.MapToSlice(i.entries, func(_ string, e *Entry) *Entry {
		c := *e
		return &c
	})
	i.mu.RUnlock()

	sort.Slice(list, func(a, b int) bool {
		return list[a].StartedAt.After(list[b].StartedAt)
	})
	return list
}

// RemoveDownloadInfo drops the entry of id.
func (i *Info) RemoveDownloadInfo(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.entries[id]; !ok {
		return false
	}
	delete(i.entries, id)
	return true
}

// Count returns the number of entries per status.
func (i *Info) Count() map[Status]int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return lo.CountValuesBy(lo.Values(i.entries), func(e *Entry) Status {
		return e.Status
	})
}

func (i *Info) update(id string, fn func(e *Entry, created bool)) {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, ok := i.entries[id]
	if !ok {
		e = &Entry{DownloadID: id, TotalBytes: -1}
		i.entries[id] = e
	}
	fn(e, !ok)
}

// Sweep removes terminal entries last updated before now minus retention.
func (i *Info) Sweep(now time.Time) int {
	if i.retention <= 0 {
		return 0
	}
	deadline := now.Add(-i.retention)

	i.mu.Lock()
	defer i.mu.Unlock()

	var removed int
	for id, e := range i.entries {
		if e.Status.Terminal() && e.UpdatedAt.Before(deadline) {
			delete(i.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries until ctx is done.
func (i *Info) Run(ctx context.Context) {
	if i.retention <= 0 {
		return
	}

	period := max(i.retention/2, time.Second)
	tick := time.NewTicker(period)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			if n := i.Sweep(now); n > 0 {
				log.Debugf("download registry swept %d finished entries", n)
			}
		}
	}
}
