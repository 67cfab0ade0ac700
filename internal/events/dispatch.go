// Package events is the worker's host integration: an explicit dispatch
// table from host signal to handler, plus the scheduler that delivers the
// periodic and connectivity-driven signals with retry backoff.
package events

import (
	"context"
	"fmt"
	"sync"

	"offline_sync_worker/internal/obs"
)

type Kind string

const (
	EventInstall      Kind = "install"
	EventActivate     Kind = "activate"
	EventSync         Kind = "sync"
	EventPeriodicSync Kind = "periodicsync"
	EventMessage      Kind = "message"
)

type HandlerFunc func(ctx context.Context) error

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Kind]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind]HandlerFunc)}
}

func (d *Dispatcher) Register(kind Kind, handler HandlerFunc) {
	if d == nil || handler == nil {
		return
	}
	d.mu.Lock()
	d.handlers[kind] = handler
	d.mu.Unlock()
}

// Dispatch runs the handler for kind to completion. Errors are logged and
// returned so the caller can reschedule; they never escape as panics.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind) (err error) {
	if d == nil {
		return fmt.Errorf("dispatcher not initialized")
	}
	d.mu.RLock()
	handler, ok := d.handlers[kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler for event %q", kind)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("event %q panicked: %v", kind, recovered)
		}
		if err != nil {
			obs.LogSync(obs.SyncLogEntry{
				Event:  string(kind),
				Result: "failure",
				Detail: err.Error(),
			})
		}
	}()
	return handler(ctx)
}
