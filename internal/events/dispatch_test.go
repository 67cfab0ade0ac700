package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"offline_sync_worker/internal/testutil"
)

func TestDispatchRunsRegisteredHandler(t *testing.T) {
	d := NewDispatcher()
	var ran atomic.Bool
	d.Register(EventSync, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	if err := d.Dispatch(context.Background(), EventSync); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !ran.Load() {
		t.Fatalf("handler never ran")
	}
}

func TestDispatchUnknownEvent(t *testing.T) {
	d := NewDispatcher()
	if err := d.Dispatch(context.Background(), EventActivate); err == nil {
		t.Fatalf("expected error for unregistered event")
	}
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	d := NewDispatcher()
	want := errors.New("handler failed")
	d.Register(EventInstall, func(ctx context.Context) error {
		return want
	})
	if err := d.Dispatch(context.Background(), EventInstall); !errors.Is(err, want) {
		t.Fatalf("dispatch returned %v", err)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := NewDispatcher()
	d.Register(EventSync, func(ctx context.Context) error {
		panic("handler blew up")
	})
	err := d.Dispatch(context.Background(), EventSync)
	if err == nil {
		t.Fatalf("panic must surface as an error")
	}
}

func TestDispatchReplacesHandler(t *testing.T) {
	d := NewDispatcher()
	d.Register(EventMessage, func(ctx context.Context) error {
		return errors.New("old handler")
	})
	d.Register(EventMessage, func(ctx context.Context) error {
		return nil
	})
	if err := d.Dispatch(context.Background(), EventMessage); err != nil {
		t.Fatalf("replacement handler not used: %v", err)
	}
}

func TestSchedulerDeliversRequestedSync(t *testing.T) {
	d := NewDispatcher()
	var delivered atomic.Int32
	d.Register(EventSync, func(ctx context.Context) error {
		delivered.Add(1)
		return nil
	})

	s := NewScheduler(d, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.RequestSync()
	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return delivered.Load() == 1
	}, "sync never delivered")
}

func TestSchedulerRetriesFailedSync(t *testing.T) {
	d := NewDispatcher()
	var attempts atomic.Int32
	d.Register(EventSync, func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("still offline")
		}
		return nil
	})

	s := NewScheduler(d, 0)
	s.BackoffBase = 5 * time.Millisecond
	s.BackoffCap = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.RequestSync()
	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return attempts.Load() == 3
	}, "sync retries never succeeded")
}

func TestSchedulerCollapsesDuplicateRequests(t *testing.T) {
	d := NewDispatcher()
	started := make(chan struct{})
	release := make(chan struct{})
	var delivered atomic.Int32
	d.Register(EventSync, func(ctx context.Context) error {
		delivered.Add(1)
		if delivered.Load() == 1 {
			close(started)
			<-release
		}
		return nil
	})

	s := NewScheduler(d, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.RequestSync()
	<-started
	// While the first delivery is in flight, extra requests collapse to one.
	s.RequestSync()
	s.RequestSync()
	s.RequestSync()
	close(release)

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return delivered.Load() == 2
	}, "collapsed request never delivered")
	time.Sleep(50 * time.Millisecond)
	if delivered.Load() != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered.Load())
	}
}

func TestSchedulerDeliversPeriodicSync(t *testing.T) {
	d := NewDispatcher()
	var delivered atomic.Int32
	d.Register(EventPeriodicSync, func(ctx context.Context) error {
		delivered.Add(1)
		return nil
	})

	s := NewScheduler(d, 15*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return delivered.Load() >= 2
	}, "periodic sync never delivered")
}
