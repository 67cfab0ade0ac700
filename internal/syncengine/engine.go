// Package syncengine drains the durable queue against the network once
// connectivity returns. Replay is at-least-once: an item is deleted only
// after the origin confirmed it, and a failure stops the drain so the host
// can reschedule.
package syncengine

import (
	"context"
	"fmt"
	"time"

	"offline_sync_worker/internal/fetch"
	"offline_sync_worker/internal/obs"
	"offline_sync_worker/internal/queue"
)

type Engine struct {
	Queue   queue.Store
	Client  *fetch.Client
	Timeout time.Duration
	Metrics *obs.Metrics
}

// Sync replays pending items in ascending id order. Each success removes
// its item immediately, so a crash mid-drain leaves only the unprocessed
// tail. The first failure that does not dead-letter its item aborts the
// drain and propagates, signalling the host to retry later.
func (e *Engine) Sync(ctx context.Context) error {
	items, err := e.Queue.Drain()
	if err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		replayErr := e.replay(ctx, item)
		duration := time.Since(start)

		if replayErr == nil {
			if err := e.Queue.Remove(item.ID); err != nil {
				return fmt.Errorf("remove item %d: %w", item.ID, err)
			}
			e.Metrics.RecordReplay("success", duration)
			e.updateDepth()
			obs.LogSync(obs.SyncLogEntry{
				Event:      "replay",
				ItemID:     item.ID,
				URL:        item.URL,
				Attempts:   item.Attempts,
				Result:     "success",
				DurationMS: duration.Milliseconds(),
			})
			continue
		}

		deadLettered, recordErr := e.Queue.RecordFailure(item)
		if recordErr != nil {
			return fmt.Errorf("record failure for item %d: %w", item.ID, recordErr)
		}
		result := "failure"
		if deadLettered {
			result = "dead-letter"
			e.Metrics.RecordDeadLetter()
		}
		e.Metrics.RecordReplay(result, duration)
		e.updateDepth()
		obs.LogSync(obs.SyncLogEntry{
			Event:         "replay",
			ItemID:        item.ID,
			URL:           item.URL,
			Attempts:      item.Attempts + 1,
			Result:        result,
			DurationMS:    duration.Milliseconds(),
			ErrorCategory: fetch.ClassifyError(replayErr),
			Detail:        replayErr.Error(),
		})

		if deadLettered {
			// The item no longer blocks the queue; keep draining.
			continue
		}
		return fmt.Errorf("replay item %d: %w", item.ID, replayErr)
	}
	return nil
}

func (e *Engine) replay(ctx context.Context, item queue.Item) error {
	req, err := fetch.NewRequest(ctx, item.Method, item.URL, item.Headers, item.Body)
	if err != nil {
		return err
	}
	result, err := e.Client.Do(ctx, req, e.timeout())
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("origin returned %d", result.Status)
	}
	return nil
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return 10 * time.Second
}

func (e *Engine) updateDepth() {
	if depth, err := e.Queue.Depth(); err == nil {
		e.Metrics.SetQueueDepth(depth)
	}
}
