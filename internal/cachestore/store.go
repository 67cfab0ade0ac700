// Package cachestore is the versioned response cache. Entries live inside
// named generations; at most one generation is current at any time and all
// others are garbage at activation.
package cachestore

import (
	"net/http"
	"net/url"
	"path"
	"time"
)

const DefaultMaxObjectBytes int64 = 50 * 1024 * 1024

// Entry is a full stored HTTP response.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

type Store interface {
	Get(generation string, key string) (Entry, bool)
	Set(generation string, key string, entry Entry) error
	Delete(generation string, key string)
	Generations() ([]string, error)
	DropGeneration(generation string) error
	Close() error
}

// Key normalizes a request URL into the cache key: the absolute URL under
// the origin, with a cleaned path and without fragment. Query strings are
// preserved because they address distinct resources.
func Key(origin *url.URL, requestURL *url.URL) string {
	if origin == nil || requestURL == nil {
		return ""
	}
	p := requestURL.Path
	if p == "" {
		p = "/"
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		cleaned = "/"
	}
	normalized := url.URL{
		Scheme:   origin.Scheme,
		Host:     origin.Host,
		Path:     cleaned,
		RawQuery: requestURL.RawQuery,
	}
	return normalized.String()
}
