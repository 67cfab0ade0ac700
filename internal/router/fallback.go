package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"offline_sync_worker/internal/cachestore"
)

const RequestIDHeader = "X-Request-Id"

const (
	offlineHTMLBody  = "<!doctype html><html><body><h1>Offline</h1><p>This page is not available offline.</p></body></html>"
	videoOfflineBody = "Video unavailable offline"
	pdfOfflineBody   = "PDF unavailable offline"
	imageOfflineBody = "Image unavailable offline"
	genericBody      = "Service unavailable offline"
)

func NewRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// writeSynthetic emits a worker-generated response, used when both network
// and cache fail to satisfy a request.
func writeSynthetic(w http.ResponseWriter, requestID string, status int, contentType string, body string) {
	w.Header().Set(RequestIDHeader, requestID)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeOfflineHTML(w http.ResponseWriter, requestID string) {
	writeSynthetic(w, requestID, http.StatusServiceUnavailable, "text/html; charset=utf-8", offlineHTMLBody)
}

// serveEntry replays a stored response verbatim.
func serveEntry(w http.ResponseWriter, requestID string, entry cachestore.Entry) {
	copyHeaders(w.Header(), entry.Header)
	w.Header().Set(RequestIDHeader, requestID)
	w.WriteHeader(entry.Status)
	_, _ = w.Write(entry.Body)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

type queuedBody struct {
	Queued bool   `json:"queued"`
	ID     uint64 `json:"id"`
}

// writeQueued acknowledges a mutation parked in the durable queue.
func writeQueued(w http.ResponseWriter, requestID string, id uint64) {
	w.Header().Set(RequestIDHeader, requestID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(queuedBody{Queued: true, ID: id})
}
