package integration

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"offline_sync_worker/internal/manifest"
)

// The full offline journey: install the shell, lose the origin, and verify
// every strategy degrades to its fallback instead of erroring out.
func TestOfflineFallbacksPerStrategy(t *testing.T) {
	assets := []string{"/", manifest.OfflinePage, manifest.PlaceholderImage, manifest.OfflinePDF}
	origin, _, originURL := startSite(t, assets...)
	w := startWorker(t, originURL, assets)

	if err := w.manager.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := w.manager.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	origin.setOnline(false)

	t.Run("navigation serves the offline page", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/some/article", nil)
		r.Header.Set("Sec-Fetch-Mode", "navigate")
		rec := httptest.NewRecorder()
		w.handler.ServeHTTP(rec, r)
		if rec.Code != 200 || rec.Body.String() != "content of "+manifest.OfflinePage {
			t.Fatalf("status %d body %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("uncached image serves the placeholder", func(t *testing.T) {
		rec := httptest.NewRecorder()
		w.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/assets/images/never-seen.jpg", nil))
		if rec.Code != 200 || rec.Body.String() != "content of "+manifest.PlaceholderImage {
			t.Fatalf("status %d body %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("uncached pdf serves the offline pdf", func(t *testing.T) {
		rec := httptest.NewRecorder()
		w.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/assets/docs/never-seen.pdf", nil))
		if rec.Code != 200 || rec.Body.String() != "content of "+manifest.OfflinePDF {
			t.Fatalf("status %d body %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("video gets the fixed unavailable message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		w.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/assets/video/clip.mp4", nil))
		if rec.Code != 503 || rec.Body.String() != "Video unavailable offline" {
			t.Fatalf("status %d body %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("uncached api get degrades to synthetic", func(t *testing.T) {
		rec := httptest.NewRecorder()
		w.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/never-seen", nil))
		if rec.Code != 503 {
			t.Fatalf("status %d", rec.Code)
		}
	})
}

func TestNetworkFirstRecoversCachedAPIResponse(t *testing.T) {
	assets := []string{"/"}
	origin, _, originURL := startSite(t, assets...)
	w := startWorker(t, originURL, assets)

	if err := w.manager.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := w.manager.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// The shell page was cached at install; a later offline fetch of the
	// same URL must replay the cached copy.
	origin.setOnline(false)
	rec := httptest.NewRecorder()
	w.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "content of /") {
		t.Fatalf("status %d body %q", rec.Code, rec.Body.String())
	}
}
