package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/paulbellamy/ratecounter"

	"github.com/omalloc/cellar/api/defined/v1/download"
	"github.com/omalloc/cellar/api/defined/v1/event"
	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/metrics"
	"github.com/omalloc/cellar/pkg/iobuf"
)

// Downloader copies one product from its source into the client stream
// and, while caching is on for the transfer, into a cache writer.
type Downloader struct {
	id        string
	key       string
	sourceID  string
	fileName  string
	totalSize int64

	cfg       *Config
	log       *log.Helper
	retriever download.ResourceRetriever
	out       *iobuf.Buffer
	writer    storage.Writer

	bytes    atomic.Int64
	counter  *ratecounter.RateCounter
	failures int

	// clientGone is set once the client stream refused a write.
	clientGone bool

	mu       sync.Mutex
	terminal bool

	// body is replaced by the transfer goroutine only, bodyMu guards it
	// against interrupt.
	bodyMu sync.Mutex
	body   io.ReadCloser
}

type downloaderOptions struct {
	id        string
	key       string
	sourceID  string
	fileName  string
	retriever download.ResourceRetriever
	resource  *download.Resource
	out       *iobuf.Buffer
	writer    storage.Writer
}

func newDownloader(ctx context.Context, cfg *Config, opt downloaderOptions) *Downloader {
	d := &Downloader{
		id:        opt.id,
		key:       opt.key,
		sourceID:  opt.sourceID,
		fileName:  opt.fileName,
		totalSize: opt.resource.Size,
		cfg:       cfg,
		log:       log.NewHelper(log.With(log.GetLogger(), "download_id", opt.id)),
		retriever: opt.retriever,
		out:       opt.out,
		writer:    opt.writer,
		counter:   ratecounter.NewRateCounter(time.Second),
	}
	d.body = iobuf.NewRateLimitReader(ctx, opt.resource.Body, cfg.RateLimitKbps)
	return d
}

// ID returns the download id.
func (d *Downloader) ID() string {
	return d.id
}

// BytesDownloaded returns the number of product bytes read so far.
func (d *Downloader) BytesDownloaded() int64 {
	return d.bytes.Load()
}

// Run drives the transfer until it completes, fails or is cancelled. The
// client stream is always closed on return.
func (d *Downloader) Run(ctx context.Context) {
	metrics.Inflight.Inc()
	defer metrics.Inflight.Dec()
	defer d.closeBody()

	// unblock a pending upstream read on shutdown
	stopInterrupt := context.AfterFunc(ctx, d.interrupt)
	defer stopInterrupt()

	mctx, stop := context.WithCancel(ctx)
	defer stop()
	if d.cfg.MonitorPeriod > 0 {
		go d.monitor(mctx)
	}

	buf := make([]byte, d.cfg.ChunkSize)
	for {
		n, err := d.body.Read(buf)
		if n > 0 && !d.deliver(ctx, buf[:n]) {
			return
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if d.totalSize > 0 && d.bytes.Load() < d.totalSize {
				if !d.recover(ctx, fmt.Errorf("source ended at %d of %d bytes: %w", d.bytes.Load(), d.totalSize, io.ErrUnexpectedEOF)) {
					return
				}
				continue
			}
			d.complete(ctx)
			return
		default:
			if !d.recover(ctx, err) {
				return
			}
		}
	}
}

// deliver pushes one chunk to the client and the cache. It returns false
// when the transfer is over.
func (d *Downloader) deliver(ctx context.Context, p []byte) bool {
	if !d.clientGone {
		if _, err := d.out.Write(p); err != nil {
			if !errors.Is(err, iobuf.ErrReaderClosed) {
				d.fail(ctx, fmt.Errorf("client buffer: %w", err))
				return false
			}
			if !d.cancelled(ctx) {
				return false
			}
		}
	}

	if d.writer != nil {
		if _, err := d.writer.Write(p); err != nil {
			d.cacheWriteFailed(ctx, err)
			if d.clientGone {
				return false
			}
		}
	}

	n := int64(len(p))
	total := d.bytes.Add(n)
	d.counter.Incr(n)
	metrics.BytesTotal.WithLabelValues(d.sourceID).Add(float64(n))

	d.report(ctx, total)
	return true
}

// cancelled handles the client leaving. It returns true when the transfer
// goes on into the cache only.
func (d *Downloader) cancelled(ctx context.Context) bool {
	d.clientGone = true
	d.publish(ctx, event.StateCancelled, "client closed the stream")
	metrics.DownloadsTotal.WithLabelValues(string(event.StateCancelled)).Inc()

	if d.writer != nil && d.cfg.CacheWhenCanceled {
		d.log.Infof("client left %s at %s, keep caching", d.key, humanize.IBytes(uint64(d.bytes.Load())))
		return true
	}

	d.log.Infof("client left %s at %s", d.key, humanize.IBytes(uint64(d.bytes.Load())))
	d.abortCache()
	return false
}

func (d *Downloader) cacheWriteFailed(ctx context.Context, err error) {
	d.log.Warnf("cache write of %s failed, caching disabled: %v", d.key, err)

	d.cfg.SetCacheEnabled(false)
	d.abortCache()

	d.publish(ctx, event.StateRetrying, fmt.Sprintf("cache write failed: %v", err))
	d.publish(ctx, event.StateStarted, "continue without cache")
}

// recover reopens the source after a read failure. It returns false once
// the retries are exhausted or the transfer was stopped.
func (d *Downloader) recover(ctx context.Context, cause error) bool {
	for {
		if err := ctx.Err(); err != nil {
			d.fail(ctx, fmt.Errorf("%w: %v", err, cause))
			return false
		}

		d.failures++
		if d.failures > d.cfg.MaxRetryAttempts {
			d.fail(ctx, fmt.Errorf("giving up after %d retries: %w", d.cfg.MaxRetryAttempts, cause))
			return false
		}

		d.log.Warnf("read %s failed at %d, retry %d/%d in %s: %v",
			d.key, d.bytes.Load(), d.failures, d.cfg.MaxRetryAttempts, d.cfg.DelayBetweenAttempts, cause)
		d.publish(ctx, event.StateRetrying, fmt.Sprintf("attempt %d of %d: %v", d.failures, d.cfg.MaxRetryAttempts, cause))
		metrics.RetriesTotal.Inc()

		if !d.wait(ctx) {
			if err := ctx.Err(); err != nil {
				d.fail(ctx, err)
			}
			return false
		}

		if err := d.reopen(ctx); err != nil {
			cause = err
			continue
		}

		d.publish(ctx, event.StateStarted, fmt.Sprintf("resumed at byte %d", d.bytes.Load()))
		return true
	}
}

// wait sleeps between attempts. A client leaving is handled on the spot.
func (d *Downloader) wait(ctx context.Context) bool {
	timer := time.NewTimer(d.cfg.DelayBetweenAttempts)
	defer timer.Stop()

	for {
		var detached <-chan struct{}
		if !d.clientGone {
			detached = d.out.Detached()
		}

		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-detached:
			if !d.cancelled(ctx) {
				return false
			}
		}
	}
}

func (d *Downloader) reopen(ctx context.Context) error {
	offset := d.bytes.Load()

	res, err := d.retriever.RetrieveResource(ctx, offset)
	if err != nil {
		return err
	}
	if res == nil || res.Body == nil {
		return fmt.Errorf("source returned no content at %d", offset)
	}
	if res.Offset > offset || res.Offset < 0 {
		_ = res.Body.Close()
		return fmt.Errorf("source resumed at %d, want %d", res.Offset, offset)
	}

	// the source could not seek, drop what the client already has
	if gap := offset - res.Offset; gap > 0 {
		if _, err = io.CopyN(io.Discard, res.Body, gap); err != nil {
			_ = res.Body.Close()
			return fmt.Errorf("skip %d delivered bytes: %w", gap, err)
		}
	}

	d.closeBody()
	d.bodyMu.Lock()
	d.body = iobuf.NewRateLimitReader(ctx, res.Body, d.cfg.RateLimitKbps)
	d.bodyMu.Unlock()
	return ctx.Err()
}

func (d *Downloader) complete(ctx context.Context) {
	if w := d.writer; w != nil {
		d.writer = nil

		res, err := w.Commit(ctx)
		if err != nil {
			_ = w.Abort()
		} else {
			err = d.cfg.Cache.Put(ctx, res)
		}
		if err != nil {
			d.log.Warnf("commit %s to cache failed: %v", d.key, err)
			d.cfg.Cache.RemovePendingCacheEntry(d.key)
		} else {
			d.log.Infof("cached %s (%s)", d.key, humanize.IBytes(uint64(res.Size())))
		}
	}

	if d.clientGone {
		return
	}

	d.publish(ctx, event.StateComplete, "")
	metrics.DownloadsTotal.WithLabelValues(string(event.StateComplete)).Inc()
	_ = d.out.CloseWithError(nil)
}

func (d *Downloader) fail(ctx context.Context, cause error) {
	d.abortCache()

	if d.clientGone {
		d.log.Warnf("caching %s after the client left failed: %v", d.key, cause)
		return
	}

	d.log.Errorf("download %s failed at %d: %v", d.key, d.bytes.Load(), cause)
	d.publish(ctx, event.StateFailed, cause.Error())
	metrics.DownloadsTotal.WithLabelValues(string(event.StateFailed)).Inc()
	_ = d.out.CloseWithError(download.Errorf("transfer", d.key, cause, ""))
}

// abortCache drops the partial product and releases the pending marker.
func (d *Downloader) abortCache() {
	if d.writer == nil {
		return
	}
	if err := d.writer.Abort(); err != nil {
		d.log.Warnf("abort cache writer of %s: %v", d.key, err)
	}
	d.writer = nil
	d.cfg.Cache.RemovePendingCacheEntry(d.key)
}

func (d *Downloader) closeBody() {
	d.bodyMu.Lock()
	defer d.bodyMu.Unlock()
	if d.body != nil {
		_ = d.body.Close()
		d.body = nil
	}
}

func (d *Downloader) interrupt() {
	d.bodyMu.Lock()
	defer d.bodyMu.Unlock()
	if d.body != nil {
		_ = d.body.Close()
	}
}

func (d *Downloader) monitor(ctx context.Context) {
	tick := time.NewTicker(d.cfg.MonitorPeriod)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			d.publish(ctx, event.StateProgress, "")
		}
	}
}

func (d *Downloader) status(state event.DownloadState, detail string) *event.DownloadStatus {
	return &event.DownloadStatus{
		DownloadID:       d.id,
		State:            state,
		Detail:           detail,
		BytesTransferred: d.bytes.Load(),
		TotalBytes:       d.totalSize,
		BytesPerSecond:   d.counter.Rate(),
		FileName:         d.fileName,
		Key:              d.key,
		SourceID:         d.sourceID,
		Timestamp:        time.Now(),
	}
}

// publish posts a transition. Nothing is posted after a terminal state.
func (d *Downloader) publish(ctx context.Context, state event.DownloadState, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.terminal {
		return
	}
	if state.Terminal() {
		d.terminal = true
	}

	d.cfg.Publisher.PostNotification(ctx, d.status(state, detail), state != event.StateProgress, true)
}

// report hands the byte count to the listener without going through the bus.
func (d *Downloader) report(ctx context.Context, total int64) {
	if d.cfg.Listener == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.terminal {
		return
	}
	ev := d.status(event.StateProgress, "")
	ev.BytesTransferred = total
	d.cfg.Listener.OnStatus(ctx, ev)
}
