// Package connectivity watches the origin and reports the offline-to-online
// transition, the worker's stand-in for the host's connectivity-restoration
// signal.
package connectivity

import (
	"net/http"
	"sync/atomic"
	"time"
)

type state int32

const (
	stateUnknown state = iota
	stateOnline
	stateOffline
)

type Monitor struct {
	client   *http.Client
	url      string
	interval time.Duration
	onOnline func()
	current  atomic.Int32
	stop     chan struct{}
	done     chan struct{}
}

type Options struct {
	// URL is probed with GET; any status below 500 counts as reachable.
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	// OnOnline fires on every offline-to-online transition.
	OnOnline func()
}

func NewMonitor(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Monitor{
		client:   &http.Client{Timeout: timeout},
		url:      opts.URL,
		interval: interval,
		onOnline: opts.OnOnline,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Monitor) Online() bool {
	return state(m.current.Load()) != stateOffline
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

func (m *Monitor) probe() {
	reachable := m.reachable()
	previous := state(m.current.Load())
	if reachable {
		m.current.Store(int32(stateOnline))
		if previous == stateOffline && m.onOnline != nil {
			m.onOnline()
		}
		return
	}
	m.current.Store(int32(stateOffline))
}

func (m *Monitor) reachable() bool {
	defer func() {
		_ = recover()
	}()
	req, err := http.NewRequest(http.MethodGet, m.url, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
