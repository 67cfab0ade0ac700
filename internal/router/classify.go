package router

import (
	"net/http"
	"path"
	"strings"
)

type Strategy string

const (
	// StrategyPassThrough proxies the request untouched: mutations and
	// cross-origin traffic are never cached.
	StrategyPassThrough Strategy = "passthrough"
	// StrategyNavigation is network-first with the offline document as
	// fallback.
	StrategyNavigation Strategy = "navigation"
	// StrategyMedia is cache-first with type-specific fallbacks.
	StrategyMedia Strategy = "media"
	// StrategyNetworkFirst is network-first-then-cache for every other GET.
	StrategyNetworkFirst Strategy = "network-first"
)

var mediaExtensions = map[string]string{
	".jpg":  "image",
	".jpeg": "image",
	".png":  "image",
	".pdf":  "pdf",
	".mp4":  "video",
	".webm": "video",
}

// Classify applies the strategy rules in priority order: pass-through for
// non-GET and cross-origin, then navigation, then media, then the generic
// network-first strategy.
func Classify(r *http.Request, originHost string) Strategy {
	if r.Method != http.MethodGet {
		return StrategyPassThrough
	}
	if r.URL.IsAbs() && !strings.EqualFold(r.URL.Host, originHost) {
		return StrategyPassThrough
	}
	if isNavigation(r) {
		return StrategyNavigation
	}
	if MediaKind(r.URL.Path) != "" {
		return StrategyMedia
	}
	return StrategyNetworkFirst
}

func isNavigation(r *http.Request) bool {
	switch r.Header.Get("Sec-Fetch-Mode") {
	case "navigate":
		return true
	case "":
		// Older agents: a top-level document load advertises text/html.
		return strings.Contains(r.Header.Get("Accept"), "text/html")
	default:
		return false
	}
}

// MediaKind returns "image", "video" or "pdf" for media paths, "" otherwise.
func MediaKind(requestPath string) string {
	return mediaExtensions[strings.ToLower(path.Ext(requestPath))]
}

// IsMutating reports whether the method belongs in the durable queue when
// the origin is unreachable.
func IsMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}
