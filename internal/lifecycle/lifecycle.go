// Package lifecycle governs cache generation creation and teardown. Install
// populates a fresh generation from the asset manifest; activate deletes
// every other generation and makes the new one current.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"offline_sync_worker/internal/cachestore"
	"offline_sync_worker/internal/fetch"
	"offline_sync_worker/internal/manifest"
	"offline_sync_worker/internal/obs"
)

type State int32

const (
	StateInstalling State = iota
	StateWaiting
	StateActive
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

type Manager struct {
	generation string
	origin     *url.URL
	assets     manifest.Manifest
	cache      cachestore.Store
	client     *fetch.Client
	timeout    time.Duration
	metrics    *obs.Metrics

	state atomic.Int32
	// current holds the generation the router reads from; empty until the
	// first activation.
	mu      sync.Mutex
	current atomic.Value

	skipWaitingOnce sync.Once
	skipWaitingC    chan struct{}
}

type ManagerOptions struct {
	Generation string
	Origin     *url.URL
	Assets     manifest.Manifest
	Cache      cachestore.Store
	Client     *fetch.Client
	Timeout    time.Duration
	Metrics    *obs.Metrics
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Generation == "" {
		return nil, errors.New("generation name is required")
	}
	if opts.Origin == nil || opts.Cache == nil || opts.Client == nil {
		return nil, errors.New("origin, cache and client are required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	m := &Manager{
		generation:   opts.Generation,
		origin:       opts.Origin,
		assets:       opts.Assets,
		cache:        opts.Cache,
		client:       opts.Client,
		timeout:      timeout,
		metrics:      opts.Metrics,
		skipWaitingC: make(chan struct{}),
	}
	m.state.Store(int32(StateInstalling))
	m.current.Store("")
	return m, nil
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

// CurrentGeneration is the single generation the router may read and write.
// Empty until activation completes.
func (m *Manager) CurrentGeneration() string {
	value, _ := m.current.Load().(string)
	return value
}

// GenerationName is the generation this manager installs, current or not.
func (m *Manager) GenerationName() string {
	return m.generation
}

// Install fetches every manifest URL into the new generation. Any failure
// aborts the install: the generation is not activated and whatever was
// current before stays in force.
func (m *Manager) Install(ctx context.Context) error {
	if m.State() != StateInstalling {
		return fmt.Errorf("install from state %s", m.State())
	}

	start := time.Now()
	for _, asset := range m.assets.Assets {
		if err := m.fetchAndStore(ctx, asset); err != nil {
			m.metrics.RecordInstall("failure")
			obs.LogSync(obs.SyncLogEntry{
				Event:         "install",
				URL:           asset,
				Result:        "failure",
				DurationMS:    time.Since(start).Milliseconds(),
				ErrorCategory: fetch.ClassifyError(err),
				Detail:        err.Error(),
			})
			return fmt.Errorf("install %s: %w", asset, err)
		}
	}

	m.state.Store(int32(StateWaiting))
	m.metrics.RecordInstall("success")
	obs.LogSync(obs.SyncLogEntry{
		Event:      "install",
		Result:     "success",
		DurationMS: time.Since(start).Milliseconds(),
		Detail:     m.generation,
	})
	return nil
}

func (m *Manager) fetchAndStore(ctx context.Context, asset string) error {
	target := m.origin.ResolveReference(&url.URL{Path: asset})
	req, err := fetch.NewRequest(ctx, http.MethodGet, target.String(), nil, nil)
	if err != nil {
		return err
	}
	result, err := m.client.Do(ctx, req, m.timeout)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("origin returned %d", result.Status)
	}
	key := cachestore.Key(m.origin, target)
	return m.cache.Set(m.generation, key, cachestore.Entry{
		Status:   result.Status,
		Header:   result.Header,
		Body:     result.Body,
		StoredAt: time.Now(),
	})
}

// Activate deletes every generation that is not this manager's, then makes
// this generation current. Cleanup completes before the generation is
// published to the router.
func (m *Manager) Activate(ctx context.Context) error {
	switch m.State() {
	case StateWaiting:
	case StateActive:
		return nil
	default:
		return fmt.Errorf("activate from state %s", m.State())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.cache.Generations()
	if err != nil {
		return fmt.Errorf("enumerate generations: %w", err)
	}
	for _, name := range names {
		if name == m.generation {
			continue
		}
		if err := m.cache.DropGeneration(name); err != nil {
			return fmt.Errorf("drop generation %s: %w", name, err)
		}
		obs.LogSync(obs.SyncLogEntry{Event: "activate", Result: "dropped", Detail: name})
	}

	m.current.Store(m.generation)
	m.state.Store(int32(StateActive))
	m.metrics.SetGeneration(m.generation)
	obs.LogSync(obs.SyncLogEntry{Event: "activate", Result: "success", Detail: m.generation})
	return nil
}

// ForceWaiting moves a failed install straight to waiting. Only used on a
// warm restart when the generation is already populated from a previous run
// and the origin is unreachable.
func (m *Manager) ForceWaiting() {
	m.state.CompareAndSwap(int32(StateInstalling), int32(StateWaiting))
}

// SkipWaiting releases anything blocked in WaitForActivation. Install still
// has to have succeeded; this only shortcuts the waiting phase.
func (m *Manager) SkipWaiting() {
	m.skipWaitingOnce.Do(func() {
		close(m.skipWaitingC)
	})
}

// WaitForActivation blocks until SkipWaiting fires, the delay elapses, or
// the context ends. A zero delay means activate immediately, the default.
func (m *Manager) WaitForActivation(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-m.skipWaitingC:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retire marks the manager redundant once a newer generation has taken over.
func (m *Manager) Retire() {
	m.state.Store(int32(StateRedundant))
}
