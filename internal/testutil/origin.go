package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

// StartOrigin runs a stub origin server. The returned URL is parsed and
// ready to hand to worker components; close tears the server down, which
// tests use to simulate going offline.
func StartOrigin(t *testing.T, handler http.Handler) (*url.URL, func()) {
	t.Helper()
	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	server := httptest.NewServer(handler)
	origin, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse origin url: %v", err)
	}
	return origin, server.Close
}

// SiteHandler serves a minimal offline-capable site: every asset path
// responds with a deterministic body so tests can assert byte-identical
// cache hits. It counts requests per path.
type SiteHandler struct {
	hits map[string]*int64
}

func NewSiteHandler(paths ...string) *SiteHandler {
	hits := make(map[string]*int64, len(paths))
	for _, p := range paths {
		var n int64
		hits[p] = &n
	}
	return &SiteHandler{hits: hits}
}

func (s *SiteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	counter, ok := s.hits[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	atomic.AddInt64(counter, 1)
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("content of " + r.URL.Path))
}

func (s *SiteHandler) Hits(path string) int64 {
	counter, ok := s.hits[path]
	if !ok {
		return 0
	}
	return atomic.LoadInt64(counter)
}
