package queue

import (
	"net/http"
	"net/url"
	"strings"
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// validate enforces the enqueue invariants: same-origin URL, one of the four
// allowed methods, well-formed header names and values.
func validate(origin *url.URL, desc Descriptor) error {
	if !allowedMethods[desc.Method] {
		return &ValidationError{Reason: "method " + desc.Method + " not allowed"}
	}

	parsed, err := url.Parse(desc.URL)
	if err != nil {
		return &ValidationError{Reason: "malformed url"}
	}
	if parsed.IsAbs() {
		if origin == nil || parsed.Scheme != origin.Scheme || parsed.Host != origin.Host {
			return &ValidationError{Reason: "url is not same-origin"}
		}
	} else if !strings.HasPrefix(parsed.Path, "/") {
		return &ValidationError{Reason: "relative url must be origin-rooted"}
	}

	for name, value := range desc.Headers {
		if name == "" || strings.ContainsAny(name, " \r\n:") {
			return &ValidationError{Reason: "malformed header name"}
		}
		if strings.ContainsAny(value, "\r\n") {
			return &ValidationError{Reason: "malformed header value"}
		}
	}
	return nil
}

// resolve turns a validated descriptor URL into the absolute form used for
// replay.
func resolve(origin *url.URL, raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.IsAbs() || origin == nil {
		return parsed.String()
	}
	return origin.ResolveReference(parsed).String()
}
