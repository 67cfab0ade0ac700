// Package router intercepts every request for the origin, applies one of
// the caching strategies and always produces a complete response: failures
// downgrade to fallbacks, never to a dropped connection.
package router

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"offline_sync_worker/internal/cachestore"
	"offline_sync_worker/internal/fetch"
	"offline_sync_worker/internal/manifest"
	"offline_sync_worker/internal/obs"
	"offline_sync_worker/internal/queue"
)

// GenerationSource tells the router which cache generation is current.
type GenerationSource interface {
	CurrentGeneration() string
}

type Handler struct {
	Origin      *url.URL
	Cache       cachestore.Store
	Coalescer   *cachestore.Coalescer
	Generations GenerationSource
	Queue       queue.Store
	Client      *fetch.Client
	Metrics     *obs.Metrics

	// FetchTimeout bounds interactive fetches; PassTimeout bounds
	// pass-through traffic, which may carry larger mutation payloads.
	FetchTimeout time.Duration
	PassTimeout  time.Duration
	MaxBodyBytes int64
}

type outcome struct {
	status        int
	label         string
	cacheStatus   string
	fallback      string
	errorCategory string
	queued        bool
	queueID       uint64
}

var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Cache == nil || h.Client == nil || h.Origin == nil {
		http.Error(w, "worker not ready", http.StatusServiceUnavailable)
		return
	}

	requestID := NewRequestID()
	start := time.Now()
	strategy := Classify(r, h.Origin.Host)

	var result outcome
	func() {
		defer func() {
			if recover() != nil {
				writeSynthetic(w, requestID, http.StatusServiceUnavailable, "text/plain; charset=utf-8", genericBody)
				result = outcome{status: http.StatusServiceUnavailable, label: "panic", errorCategory: "panic"}
			}
		}()
		switch strategy {
		case StrategyPassThrough:
			result = h.passThrough(w, r, requestID)
		case StrategyNavigation:
			result = h.navigation(w, r, requestID)
		case StrategyMedia:
			result = h.media(w, r, requestID)
		default:
			result = h.networkFirst(w, r, requestID)
		}
	}()

	duration := time.Since(start)
	h.Metrics.ObserveFetch(string(strategy), result.label, duration)
	obs.LogFetch(obs.FetchLogEntry{
		RequestID:     requestID,
		Method:        r.Method,
		Path:          r.URL.Path,
		Strategy:      string(strategy),
		CacheStatus:   result.cacheStatus,
		Generation:    h.currentGeneration(),
		Status:        result.status,
		DurationMS:    duration.Milliseconds(),
		Fallback:      result.fallback,
		Queued:        result.queued,
		QueueID:       result.queueID,
		ErrorCategory: result.errorCategory,
	})
}

func (h *Handler) currentGeneration() string {
	if h.Generations == nil {
		return ""
	}
	return h.Generations.CurrentGeneration()
}

func (h *Handler) target(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}
	return h.Origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
}

// passThrough proxies the request untouched. Mutations that cannot reach the
// origin are parked in the durable queue instead of failing outright.
func (h *Handler) passThrough(w http.ResponseWriter, r *http.Request, requestID string) outcome {
	body, err := h.readBody(r)
	if err != nil {
		writeSynthetic(w, requestID, http.StatusRequestEntityTooLarge, "text/plain; charset=utf-8", "request body too large")
		return outcome{status: http.StatusRequestEntityTooLarge, label: "rejected", errorCategory: "body_limit"}
	}

	target := h.target(r)
	req, err := fetch.NewRequest(r.Context(), r.Method, target.String(), nil, body)
	if err != nil {
		writeSynthetic(w, requestID, http.StatusBadGateway, "text/plain; charset=utf-8", "bad request")
		return outcome{status: http.StatusBadGateway, label: "error", errorCategory: "bad_request"}
	}
	req.Header = outboundHeaders(r)
	setForwardedHeaders(req, r)

	result, err := h.Client.Do(r.Context(), req, h.passTimeout())
	if err == nil {
		h.writeThrough(w, requestID, result)
		return outcome{status: result.Status, label: "ok"}
	}

	category := fetch.ClassifyError(err)
	if IsMutating(r.Method) && h.sameOrigin(target) && fetch.IsNetworkFailure(err) && h.Queue != nil {
		return h.enqueue(w, r, requestID, body, category)
	}

	writeSynthetic(w, requestID, http.StatusBadGateway, "text/plain; charset=utf-8", "origin unreachable")
	return outcome{status: http.StatusBadGateway, label: "error", errorCategory: category}
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, requestID string, body []byte, category string) outcome {
	desc := queue.Descriptor{
		URL:     r.URL.RequestURI(),
		Method:  r.Method,
		Headers: flattenHeaders(r.Header),
		Body:    body,
	}
	item, err := h.Queue.Enqueue(desc)
	if err != nil {
		if queue.IsValidationError(err) {
			h.Metrics.RecordEnqueue("invalid")
			writeSynthetic(w, requestID, http.StatusBadRequest, "text/plain; charset=utf-8", err.Error())
			return outcome{status: http.StatusBadRequest, label: "rejected", errorCategory: "validation"}
		}
		h.Metrics.RecordEnqueue("error")
		writeSynthetic(w, requestID, http.StatusServiceUnavailable, "text/plain; charset=utf-8", genericBody)
		return outcome{status: http.StatusServiceUnavailable, label: "error", errorCategory: "queue"}
	}

	h.Metrics.RecordEnqueue("success")
	if depth, derr := h.Queue.Depth(); derr == nil {
		h.Metrics.SetQueueDepth(depth)
	}
	obs.LogSync(obs.SyncLogEntry{
		Event:  "enqueue",
		ItemID: item.ID,
		URL:    item.URL,
		Result: "queued",
		Detail: headerSummary(desc.Headers),
	})
	writeQueued(w, requestID, item.ID)
	return outcome{status: http.StatusAccepted, label: "queued", errorCategory: category, queued: true, queueID: item.ID}
}

// navigation is network-first with the cached offline document as fallback.
// Successful HTML responses are returned without being cached.
func (h *Handler) navigation(w http.ResponseWriter, r *http.Request, requestID string) outcome {
	result, err := h.fetchGet(r)
	if err == nil {
		h.writeThrough(w, requestID, result)
		return outcome{status: result.Status, label: "ok"}
	}

	category := fetch.ClassifyError(err)
	offlineKey := cachestore.Key(h.Origin, &url.URL{Path: manifest.OfflinePage})
	if entry, ok := h.Cache.Get(h.currentGeneration(), offlineKey); ok {
		h.Metrics.RecordFallback("offline-page")
		serveEntry(w, requestID, entry)
		return outcome{status: entry.Status, label: "fallback", cacheStatus: "hit", fallback: "offline-page", errorCategory: category}
	}

	h.Metrics.RecordFallback("synthetic-html")
	writeOfflineHTML(w, requestID)
	return outcome{status: http.StatusServiceUnavailable, label: "fallback", fallback: "synthetic", errorCategory: category}
}

// media is cache-first. Concurrent misses for one URL coalesce into a
// single origin fetch.
func (h *Handler) media(w http.ResponseWriter, r *http.Request, requestID string) outcome {
	generation := h.currentGeneration()
	key := cachestore.Key(h.Origin, r.URL)
	kind := MediaKind(r.URL.Path)

	if entry, ok := h.Cache.Get(generation, key); ok {
		h.Metrics.RecordCacheRequest(string(StrategyMedia), "hit")
		serveEntry(w, requestID, entry)
		return outcome{status: entry.Status, label: "ok", cacheStatus: "hit"}
	}
	h.Metrics.RecordCacheRequest(string(StrategyMedia), "miss")

	var flight *cachestore.Flight
	leader := true
	if h.Coalescer != nil {
		var accepted bool
		flight, leader, accepted = h.Coalescer.Start(key)
		if accepted && !leader {
			entry, ok, _, settled := h.Coalescer.Wait(flight, h.FetchTimeout)
			if settled && ok {
				serveEntry(w, requestID, entry)
				return outcome{status: entry.Status, label: "ok", cacheStatus: "coalesced"}
			}
			return h.mediaFallback(w, requestID, kind, generation, "coalesce")
		}
		if !accepted {
			flight = nil
		}
	}

	result, err := h.fetchGet(r)
	if err != nil {
		if flight != nil {
			h.Coalescer.Finish(key, flight, cachestore.Entry{}, false, err)
		}
		return h.mediaFallback(w, requestID, kind, generation, fetch.ClassifyError(err))
	}

	if !result.OK() {
		if flight != nil {
			h.Coalescer.Finish(key, flight, cachestore.Entry{}, false, nil)
		}
		h.writeThrough(w, requestID, result)
		return outcome{status: result.Status, label: "ok", cacheStatus: "miss"}
	}

	entry := toEntry(result)
	cacheStatus := "store"
	if err := h.Cache.Set(generation, key, entry); err != nil {
		h.Metrics.RecordCacheStoreFail(string(StrategyMedia))
		cacheStatus = "store-fail"
	}
	if flight != nil {
		h.Coalescer.Finish(key, flight, entry, true, nil)
	}
	h.writeThrough(w, requestID, result)
	return outcome{status: result.Status, label: "ok", cacheStatus: cacheStatus}
}

func (h *Handler) mediaFallback(w http.ResponseWriter, requestID string, kind string, generation string, category string) outcome {
	switch kind {
	case "pdf":
		pdfKey := cachestore.Key(h.Origin, &url.URL{Path: manifest.OfflinePDF})
		if entry, ok := h.Cache.Get(generation, pdfKey); ok {
			h.Metrics.RecordFallback("offline-pdf")
			serveEntry(w, requestID, entry)
			return outcome{status: entry.Status, label: "fallback", cacheStatus: "hit", fallback: "offline-pdf", errorCategory: category}
		}
		h.Metrics.RecordFallback("synthetic-pdf")
		writeSynthetic(w, requestID, http.StatusServiceUnavailable, "text/plain; charset=utf-8", pdfOfflineBody)
		return outcome{status: http.StatusServiceUnavailable, label: "fallback", fallback: "synthetic", errorCategory: category}
	case "video":
		h.Metrics.RecordFallback("video-unavailable")
		writeSynthetic(w, requestID, http.StatusServiceUnavailable, "text/plain; charset=utf-8", videoOfflineBody)
		return outcome{status: http.StatusServiceUnavailable, label: "fallback", fallback: "synthetic", errorCategory: category}
	default:
		placeholderKey := cachestore.Key(h.Origin, &url.URL{Path: manifest.PlaceholderImage})
		if entry, ok := h.Cache.Get(generation, placeholderKey); ok {
			h.Metrics.RecordFallback("placeholder-image")
			serveEntry(w, requestID, entry)
			return outcome{status: entry.Status, label: "fallback", cacheStatus: "hit", fallback: "placeholder-image", errorCategory: category}
		}
		h.Metrics.RecordFallback("synthetic-image")
		writeSynthetic(w, requestID, http.StatusServiceUnavailable, "text/plain; charset=utf-8", imageOfflineBody)
		return outcome{status: http.StatusServiceUnavailable, label: "fallback", fallback: "synthetic", errorCategory: category}
	}
}

// networkFirst tries the origin, stores ok responses in the current
// generation and falls back to whatever was cached for this exact request.
func (h *Handler) networkFirst(w http.ResponseWriter, r *http.Request, requestID string) outcome {
	generation := h.currentGeneration()
	key := cachestore.Key(h.Origin, r.URL)

	result, err := h.fetchGet(r)
	if err == nil {
		cacheStatus := "bypass"
		if result.OK() {
			cacheStatus = "store"
			if serr := h.Cache.Set(generation, key, toEntry(result)); serr != nil {
				h.Metrics.RecordCacheStoreFail(string(StrategyNetworkFirst))
				cacheStatus = "store-fail"
			}
		}
		h.writeThrough(w, requestID, result)
		return outcome{status: result.Status, label: "ok", cacheStatus: cacheStatus}
	}

	category := fetch.ClassifyError(err)
	if entry, ok := h.Cache.Get(generation, key); ok {
		h.Metrics.RecordCacheRequest(string(StrategyNetworkFirst), "hit")
		serveEntry(w, requestID, entry)
		return outcome{status: entry.Status, label: "fallback", cacheStatus: "hit", fallback: "cache", errorCategory: category}
	}
	h.Metrics.RecordCacheRequest(string(StrategyNetworkFirst), "miss")
	h.Metrics.RecordFallback("synthetic")
	writeSynthetic(w, requestID, http.StatusServiceUnavailable, "text/plain; charset=utf-8", genericBody)
	return outcome{status: http.StatusServiceUnavailable, label: "fallback", fallback: "synthetic", errorCategory: category}
}

func (h *Handler) fetchGet(r *http.Request) (fetch.Result, error) {
	target := h.target(r)
	req, err := fetch.NewRequest(r.Context(), http.MethodGet, target.String(), nil, nil)
	if err != nil {
		return fetch.Result{}, err
	}
	req.Header = outboundHeaders(r)
	setForwardedHeaders(req, r)
	return h.Client.Do(r.Context(), req, h.fetchTimeout())
}

func (h *Handler) fetchTimeout() time.Duration {
	if h.FetchTimeout > 0 {
		return h.FetchTimeout
	}
	return 5 * time.Second
}

func (h *Handler) passTimeout() time.Duration {
	if h.PassTimeout > 0 {
		return h.PassTimeout
	}
	return 10 * time.Second
}

func (h *Handler) sameOrigin(target *url.URL) bool {
	return strings.EqualFold(target.Host, h.Origin.Host)
}

func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	max := h.MaxBodyBytes
	if max <= 0 {
		max = 10 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > max {
		return nil, errors.New("request body exceeds max body bytes")
	}
	return body, nil
}

func (h *Handler) writeThrough(w http.ResponseWriter, requestID string, result fetch.Result) {
	header := result.Header.Clone()
	for _, name := range hopHeaders {
		header.Del(name)
	}
	copyHeaders(w.Header(), header)
	w.Header().Set(RequestIDHeader, requestID)
	w.WriteHeader(result.Status)
	_, _ = w.Write(result.Body)
}

func toEntry(result fetch.Result) cachestore.Entry {
	return cachestore.Entry{
		Status:   result.Status,
		Header:   result.Header,
		Body:     result.Body,
		StoredAt: time.Now(),
	}
}

func outboundHeaders(r *http.Request) http.Header {
	header := r.Header.Clone()
	for _, name := range hopHeaders {
		header.Del(name)
	}
	return header
}

func setForwardedHeaders(outbound *http.Request, inbound *http.Request) {
	clientIP := inbound.RemoteAddr
	if host, _, err := net.SplitHostPort(inbound.RemoteAddr); err == nil {
		clientIP = host
	}
	if clientIP != "" {
		prior := outbound.Header.Get("X-Forwarded-For")
		if prior != "" {
			clientIP = prior + ", " + clientIP
		}
		outbound.Header.Set("X-Forwarded-For", clientIP)
	}
	proto := "http"
	if inbound.TLS != nil {
		proto = "https"
	}
	outbound.Header.Set("X-Forwarded-Proto", proto)
}

func flattenHeaders(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) == 0 {
			continue
		}
		skip := false
		for _, hop := range hopHeaders {
			if strings.EqualFold(name, hop) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		flat[name] = values[0]
	}
	return flat
}

func headerSummary(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+obs.RedactHeaderValue(name, headers[name]))
	}
	return strings.Join(parts, " ")
}
