// Package fetch issues origin requests under a hard timeout. Unlike the
// race-against-a-timer shape this replaces, the timeout is a real context
// deadline: the losing transfer is cancelled, not abandoned, while the
// caller still unblocks at the timeout boundary.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r Result) OK() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

type Client struct {
	transport    http.RoundTripper
	maxBodyBytes int64
}

type Options struct {
	DialTimeout  time.Duration
	MaxBodyBytes int64
}

func NewClient(opts Options) *Client {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	dialer := &net.Dialer{Timeout: dialTimeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		IdleConnTimeout:     30 * time.Second,
		MaxIdleConns:        256,
		MaxIdleConnsPerHost: 64,
		ForceAttemptHTTP2:   true,
	}
	return &Client{transport: transport, maxBodyBytes: opts.MaxBodyBytes}
}

// Do sends the request and buffers the whole response body before the
// deadline is released, so the returned Result is safe to cache or serve
// after the context is gone.
func (c *Client) Do(ctx context.Context, req *http.Request, timeout time.Duration) (Result, error) {
	if c == nil || req == nil {
		return Result{}, errors.New("fetch client not initialized")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := c.transport.RoundTrip(req.WithContext(ctx))
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if c.maxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.maxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return Result{}, err
	}
	if c.maxBodyBytes > 0 && int64(len(body)) > c.maxBodyBytes {
		return Result{}, errors.New("response body exceeds max body bytes")
	}
	return Result{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
}

// NewRequest builds an outbound request with a replayable body.
func NewRequest(ctx context.Context, method string, url string, headers map[string]string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	return req, nil
}
