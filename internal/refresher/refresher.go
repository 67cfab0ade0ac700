// Package refresher re-fetches the asset manifest in the background and
// overwrites the current generation's entries, then tells open pages that
// new content landed. Individual URL failures never abort the batch.
package refresher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"offline_sync_worker/internal/cachestore"
	"offline_sync_worker/internal/fetch"
	"offline_sync_worker/internal/manifest"
	"offline_sync_worker/internal/obs"
)

// Notifier receives the content-updated broadcast.
type Notifier interface {
	BroadcastContentUpdated(updated time.Time)
}

// GenerationSource tells the refresher which generation to overwrite.
type GenerationSource interface {
	CurrentGeneration() string
}

type Refresher struct {
	Assets      manifest.Manifest
	Origin      *url.URL
	Cache       cachestore.Store
	Client      *fetch.Client
	Generations GenerationSource
	Notifier    Notifier
	Timeout     time.Duration
	Metrics     *obs.Metrics
	Now         func() time.Time
}

// Refresh walks the manifest with cache-busting fetches. If at least one
// URL refreshed, every open page gets exactly one content-updated message.
// An entirely failed batch returns an error so the host reschedules.
func (r *Refresher) Refresh(ctx context.Context) error {
	generation := r.Generations.CurrentGeneration()
	if generation == "" {
		return fmt.Errorf("no active generation")
	}

	start := time.Now()
	refreshed := 0
	for _, asset := range r.Assets.Assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.refreshOne(ctx, generation, asset); err != nil {
			r.Metrics.RecordRefresh("failure")
			obs.LogSync(obs.SyncLogEntry{
				Event:         "refresh",
				URL:           asset,
				Result:        "failure",
				ErrorCategory: fetch.ClassifyError(err),
				Detail:        err.Error(),
			})
			continue
		}
		r.Metrics.RecordRefresh("success")
		refreshed++
	}

	duration := time.Since(start)
	if refreshed == 0 {
		r.Metrics.RecordRefreshBatch("failure")
		obs.LogSync(obs.SyncLogEntry{
			Event:      "refresh-batch",
			Result:     "failure",
			DurationMS: duration.Milliseconds(),
		})
		return fmt.Errorf("no manifest URL could be refreshed")
	}

	if r.Notifier != nil {
		r.Notifier.BroadcastContentUpdated(r.now())
	}
	r.Metrics.RecordRefreshBatch("success")
	obs.LogSync(obs.SyncLogEntry{
		Event:      "refresh-batch",
		Result:     "success",
		DurationMS: duration.Milliseconds(),
		Detail:     fmt.Sprintf("refreshed %d of %d", refreshed, len(r.Assets.Assets)),
	})
	return nil
}

func (r *Refresher) refreshOne(ctx context.Context, generation string, asset string) error {
	target := r.Origin.ResolveReference(&url.URL{Path: asset})
	req, err := fetch.NewRequest(ctx, http.MethodGet, target.String(), nil, nil)
	if err != nil {
		return err
	}
	// Bypass intermediate caches; the stored key stays the plain URL.
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	result, err := r.Client.Do(ctx, req, r.timeout())
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("origin returned %d", result.Status)
	}

	key := cachestore.Key(r.Origin, target)
	return r.Cache.Set(generation, key, cachestore.Entry{
		Status:   result.Status,
		Header:   result.Header,
		Body:     result.Body,
		StoredAt: time.Now(),
	})
}

func (r *Refresher) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 10 * time.Second
}

func (r *Refresher) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
