package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/omalloc/cellar/api/defined/v1/download"
	"github.com/omalloc/cellar/api/defined/v1/event"
	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/api/defined/v1/storage/object"
	"github.com/omalloc/cellar/contrib/log"
	"github.com/omalloc/cellar/internal/constants"
	"github.com/omalloc/cellar/metrics"
	"github.com/omalloc/cellar/pkg/iobuf"
)

// ErrManagerClosed is returned by Download after Close.
var ErrManagerClosed = errors.New("download manager closed")

// Manager starts product transfers and serves committed products from the
// cache. At most one transfer per product writes into the cache.
type Manager struct {
	cfg *Config
	log *log.Helper

	waiters singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against Close
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewManager(cfg *Config, logger log.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("download config: %w", err)
	}
	if cfg.Listener != nil {
		cfg.Publisher.AddListener(cfg.Listener)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:    cfg,
		log:    log.NewHelper(logger),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Config returns the live configuration.
func (m *Manager) Config() *Config {
	return m.cfg
}

// Download returns a response streaming the product of card. On a cache
// miss the source is opened once and the rest of the transfer runs in the
// background; the returned body follows it.
func (m *Manager) Download(ctx context.Context, req *download.ResourceRequest, card *download.Metacard, retriever download.ResourceRetriever) (*download.ResourceResponse, error) {
	switch {
	case req == nil:
		return nil, download.Errorf("validate", "", download.ErrInvalidRequest, "resource request is nil")
	case card == nil:
		return nil, download.Errorf("validate", "", download.ErrInvalidRequest, "metacard is nil")
	case card.ID == "":
		return nil, download.Errorf("validate", "", download.ErrInvalidRequest, "metacard has no id")
	case retriever == nil:
		return nil, download.Errorf("validate", "", download.ErrInvalidRequest, "resource retriever is nil")
	}
	if m.closed.Load() {
		return nil, download.Errorf("start", "", ErrManagerClosed, "")
	}

	id := object.NewQualifiedID(card.SourceID, card.ID, req.Property(constants.QualifierProperty))
	key := id.Key()

	caching := false
	if m.cfg.CacheEnabled() {
		cache := m.cfg.Cache
		for {
			if resp, ok := m.fromCache(ctx, req, key); ok {
				return resp, nil
			}
			if cache.IsPending(key) {
				if err := m.waitPending(ctx, key); err != nil {
					return nil, download.Errorf("wait", key, err, "")
				}
				continue
			}
			if !cache.Allow() {
				break
			}
			if cache.MarkPending(key) {
				caching = true
				break
			}
			// another transfer took the key or just committed it
			if resp, ok := m.fromCache(ctx, req, key); ok {
				return resp, nil
			}
			if cache.IsPending(key) {
				continue
			}
			break
		}
	}

	resp, err := m.start(ctx, req, card, retriever, id, caching)
	if err != nil {
		if caching {
			m.cfg.Cache.RemovePendingCacheEntry(key)
		}
		return nil, err
	}
	return resp, nil
}

func (m *Manager) fromCache(ctx context.Context, req *download.ResourceRequest, key string) (*download.ResourceResponse, bool) {
	res, err := m.cfg.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			m.log.Warnf("lookup cached product %s: %v", key, err)
		}
		return nil, false
	}

	body, err := res.Open()
	if err != nil {
		m.log.Warnf("open cached product %s: %v", key, err)
		return nil, false
	}

	metrics.CacheRequestsTotal.WithLabelValues(constants.CacheHit).Inc()
	m.log.Debugf("serve %s from cache", key)

	return &download.ResourceResponse{
		Request: req,
		Resource: &download.Resource{
			Name:     res.FileName(),
			MimeType: res.MimeType(),
			Size:     res.Size(),
			Body:     body,
		},
		Properties: map[string]string{
			constants.ProtocolCacheStatusKey: constants.CacheHit,
		},
	}, true
}

// waitPending blocks until the transfer owning key released it. Callers
// waiting on the same key share one watcher.
func (m *Manager) waitPending(ctx context.Context, key string) error {
	ch := m.waiters.DoChan(key, func() (any, error) {
		select {
		case <-m.cfg.Cache.Pending(key):
			return nil, nil
		case <-m.ctx.Done():
			return nil, ErrManagerClosed
		}
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-ch:
		return r.Err
	}
}

func (m *Manager) start(ctx context.Context, req *download.ResourceRequest, card *download.Metacard, retriever download.ResourceRetriever, id *object.ID, caching bool) (*download.ResourceResponse, error) {
	key := id.Key()

	// the transfer outlives ctx, only the handshake is bound to it
	tctx, cancel := context.WithCancel(m.ctx)
	stop := context.AfterFunc(ctx, cancel)

	res, err := retriever.RetrieveResource(tctx, 0)
	if !stop() {
		if res != nil && res.Body != nil {
			_ = res.Body.Close()
		}
		cancel()
		if err == nil {
			err = ctx.Err()
		}
		return nil, download.Errorf("retrieve", key, err, "")
	}
	if err != nil {
		cancel()
		return nil, download.Errorf("retrieve", key, err, "")
	}
	if res == nil || res.Body == nil {
		cancel()
		return nil, download.Errorf("retrieve", key, download.ErrResourceNotFound, "source returned no content")
	}

	fileName := res.Name
	if fileName == "" {
		fileName = card.Title
	}
	if fileName == "" {
		fileName = card.ID
	}

	var writer storage.Writer
	if caching {
		writer, err = m.cfg.Cache.NewWriter(ctx, id, object.NewMetadata(id, fileName, res.MimeType))
		if err != nil {
			m.log.Warnf("open cache writer for %s, streaming without cache: %v", key, err)
			m.cfg.Cache.RemovePendingCacheEntry(key)
			caching = false
		}
	}

	downloadID := uuid.NewString()
	out := iobuf.NewBuffer(m.cfg.MemoryThreshold, m.cfg.TempDir)
	d := newDownloader(tctx, m.cfg, downloaderOptions{
		id:        downloadID,
		key:       key,
		sourceID:  card.SourceID,
		fileName:  fileName,
		retriever: retriever,
		resource:  res,
		out:       out,
		writer:    writer,
	})

	cacheStatus := constants.CacheMiss
	if !caching {
		cacheStatus = constants.CacheBypass
	}
	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		if writer != nil {
			_ = writer.Abort()
		}
		_ = res.Body.Close()
		cancel()
		return nil, download.Errorf("start", key, ErrManagerClosed, "")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.CacheRequestsTotal.WithLabelValues(cacheStatus).Inc()
	m.log.Infof("download %s started for %s (%s)", downloadID, key, cacheStatus)

	d.publish(ctx, event.StateStarted, "")

	go func() {
		defer m.wg.Done()
		defer cancel()
		d.Run(tctx)
	}()

	return &download.ResourceResponse{
		Request: req,
		Resource: &download.Resource{
			Name:     fileName,
			MimeType: res.MimeType,
			Size:     res.Size,
			Body:     newInputStream(downloadID, out),
		},
		Properties: map[string]string{
			constants.ProtocolCacheStatusKey: cacheStatus,
			constants.ProtocolDownloadIDKey:  downloadID,
			constants.ProtocolSourceIDKey:    card.SourceID,
		},
	}, nil
}

// Close stops every running transfer and waits for them until ctx is done.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	swapped := m.closed.CompareAndSwap(false, true)
	m.mu.Unlock()
	if !swapped {
		return nil
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
