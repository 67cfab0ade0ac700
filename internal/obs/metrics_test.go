package obs

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandlerExposesRecordedSeries(t *testing.T) {
	m := NewMetrics()
	m.ObserveFetch("media", "ok", 25*time.Millisecond)
	m.RecordCacheRequest("media", "hit")
	m.RecordFallback("placeholder-image")
	m.RecordEnqueue("success")
	m.RecordReplay("success", 40*time.Millisecond)
	m.RecordDeadLetter()
	m.RecordRefresh("success")
	m.RecordRefreshBatch("success")
	m.RecordInstall("success")
	m.SetQueueDepth(3)
	m.SetConnectedPages(2)
	m.SetGeneration("noctun-site-v1")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}

	body := rec.Body.String()
	for _, series := range []string{
		`worker_fetch_total{outcome="ok",strategy="media"} 1`,
		`worker_cache_requests_total{status="hit",strategy="media"} 1`,
		`worker_fallback_total{kind="placeholder-image"} 1`,
		`worker_enqueue_total{result="success"} 1`,
		`worker_replay_total{result="success"} 1`,
		`worker_replay_dead_letter_total 1`,
		`worker_queue_depth 3`,
		`worker_connected_pages 2`,
		`worker_generation_info{generation="noctun-site-v1"} 1`,
	} {
		if !strings.Contains(body, series) {
			t.Errorf("metrics output missing %q", series)
		}
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("media", "ok", time.Millisecond)
	m.RecordCacheRequest("media", "hit")
	m.RecordCacheStoreFail("media")
	m.RecordFallback("synthetic")
	m.RecordEnqueue("success")
	m.RecordReplay("failure", time.Millisecond)
	m.RecordDeadLetter()
	m.RecordRefresh("failure")
	m.RecordRefreshBatch("failure")
	m.RecordInstall("failure")
	m.SetQueueDepth(1)
	m.SetConnectedPages(1)
	m.SetGeneration("g")
}
