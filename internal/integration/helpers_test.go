package integration

import (
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"offline_sync_worker/internal/cachestore"
	"offline_sync_worker/internal/fetch"
	"offline_sync_worker/internal/lifecycle"
	"offline_sync_worker/internal/manifest"
	"offline_sync_worker/internal/obs"
	"offline_sync_worker/internal/queue"
	"offline_sync_worker/internal/refresher"
	"offline_sync_worker/internal/router"
	"offline_sync_worker/internal/syncengine"
	"offline_sync_worker/internal/testutil"
)

const generation = "noctun-site-v1"

// flakyOrigin wraps a site handler with an online switch. While offline it
// kills the TCP connection instead of answering, so the worker sees a real
// network failure rather than an HTTP error.
type flakyOrigin struct {
	online atomic.Bool
	site   http.Handler
}

func newFlakyOrigin(site http.Handler) *flakyOrigin {
	f := &flakyOrigin{site: site}
	f.online.Store(true)
	return f
}

func (f *flakyOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !f.online.Load() {
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("origin stub cannot hijack")
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			return
		}
		_ = conn.Close()
		return
	}
	f.site.ServeHTTP(w, r)
}

func (f *flakyOrigin) setOnline(online bool) {
	f.online.Store(online)
}

// worker bundles the wired components the way cmd/worker assembles them.
type worker struct {
	origin    *url.URL
	cache     cachestore.Store
	queue     queue.Store
	manager   *lifecycle.Manager
	handler   *router.Handler
	engine    *syncengine.Engine
	refresher *refresher.Refresher
	metrics   *obs.Metrics
}

func startWorker(t *testing.T, origin *url.URL, assets []string) *worker {
	t.Helper()

	metrics := obs.NewMetrics()
	client := fetch.NewClient(fetch.Options{DialTimeout: time.Second})

	store, err := cachestore.OpenDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("open cache store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	q, err := queue.OpenLevelStore(t.TempDir(), queue.LevelStoreOptions{Origin: origin, MaxAttempts: 25})
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() {
		_ = q.Close()
	})

	manager, err := lifecycle.NewManager(lifecycle.ManagerOptions{
		Generation: generation,
		Origin:     origin,
		Assets:     manifest.Manifest{Assets: assets},
		Cache:      store,
		Client:     client,
		Timeout:    2 * time.Second,
		Metrics:    metrics,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	return &worker{
		origin:  origin,
		cache:   store,
		queue:   q,
		manager: manager,
		handler: &router.Handler{
			Origin:       origin,
			Cache:        store,
			Coalescer:    cachestore.NewCoalescer(0),
			Generations:  manager,
			Queue:        q,
			Client:       client,
			Metrics:      metrics,
			FetchTimeout: 2 * time.Second,
			PassTimeout:  2 * time.Second,
		},
		engine: &syncengine.Engine{
			Queue:   q,
			Client:  client,
			Timeout: 2 * time.Second,
			Metrics: metrics,
		},
		refresher: &refresher.Refresher{
			Assets:      manifest.Manifest{Assets: assets},
			Origin:      origin,
			Cache:       store,
			Client:      client,
			Generations: manager,
			Timeout:     2 * time.Second,
			Metrics:     metrics,
		},
		metrics: metrics,
	}
}

func startSite(t *testing.T, assets ...string) (*flakyOrigin, *testutil.SiteHandler, *url.URL) {
	t.Helper()
	site := testutil.NewSiteHandler(assets...)
	origin := newFlakyOrigin(site)
	originURL, closeOrigin := testutil.StartOrigin(t, origin)
	t.Cleanup(closeOrigin)
	return origin, site, originURL
}
