package events

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 5 * time.Minute
)

// Scheduler is the host side of the event contract: it delivers periodicsync
// on an interval and redelivers sync with capped exponential backoff until a
// drain succeeds.
type Scheduler struct {
	Dispatcher      *Dispatcher
	RefreshInterval time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration

	syncRequests chan struct{}
}

func NewScheduler(dispatcher *Dispatcher, refreshInterval time.Duration) *Scheduler {
	return &Scheduler{
		Dispatcher:      dispatcher,
		RefreshInterval: refreshInterval,
		syncRequests:    make(chan struct{}, 1),
	}
}

// RequestSync queues one sync delivery. Collapses with a pending request,
// mirroring how the host coalesces duplicate sync registrations.
func (s *Scheduler) RequestSync() {
	select {
	case s.syncRequests <- struct{}{}:
	default:
	}
}

// Run delivers events until the context ends. Each handler runs to
// completion before the next delivery of the same signal.
func (s *Scheduler) Run(ctx context.Context) {
	var ticker *time.Ticker
	var tick <-chan time.Time
	if s.RefreshInterval > 0 {
		ticker = time.NewTicker(s.RefreshInterval)
		tick = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.syncRequests:
			s.deliverSyncWithRetry(ctx)
		case <-tick:
			// Best-effort: a failed refresh waits for the next interval.
			_ = s.Dispatcher.Dispatch(ctx, EventPeriodicSync)
		}
	}
}

func (s *Scheduler) deliverSyncWithRetry(ctx context.Context) {
	backoff := s.BackoffBase
	if backoff <= 0 {
		backoff = defaultBackoffBase
	}
	cap := s.BackoffCap
	if cap <= 0 {
		cap = defaultBackoffCap
	}

	for {
		if err := s.Dispatcher.Dispatch(ctx, EventSync); err == nil {
			return
		}
		if !sleepWithJitter(ctx, backoff) {
			return
		}
		backoff *= 2
		if backoff > cap {
			backoff = cap
		}
	}
}

func sleepWithJitter(ctx context.Context, backoff time.Duration) bool {
	delay := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
