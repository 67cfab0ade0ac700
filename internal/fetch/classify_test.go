package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"dial", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, "dial"},
		{"timeout", timeoutError{}, "timeout"},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, "reset"},
		{"eof", io.ErrUnexpectedEOF, "eof"},
		{"other", errors.New("mystery"), "other"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyError(tc.err); got != tc.want {
				t.Fatalf("ClassifyError = %q, expected %q", got, tc.want)
			}
		})
	}
}

func TestIsNetworkFailure(t *testing.T) {
	if !IsNetworkFailure(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}) {
		t.Fatalf("dial failure must count as a network failure")
	}
	if IsNetworkFailure(context.Canceled) {
		t.Fatalf("cancellation is not a network failure")
	}
	if IsNetworkFailure(errors.New("http: 500")) {
		t.Fatalf("application errors are not network failures")
	}
	if IsNetworkFailure(nil) {
		t.Fatalf("nil error is not a network failure")
	}
}

func TestResultOK(t *testing.T) {
	for status, want := range map[int]bool{200: true, 201: true, 299: true, 199: false, 300: false, 404: false, 500: false} {
		if got := (Result{Status: status}).OK(); got != want {
			t.Errorf("OK() for %d = %v, expected %v", status, got, want)
		}
	}
}

func TestDoAppliesTimeout(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	// Accept but never respond, so the request can only end by deadline.
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	client := NewClient(Options{})
	req, err := NewRequest(context.Background(), "GET", "http://"+listener.Addr().String()+"/", nil, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	start := time.Now()
	_, err = client.Do(context.Background(), req, 100*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Do returned after %v, deadline not applied", elapsed)
	}
	if ClassifyError(err) != "timeout" {
		t.Fatalf("expected timeout classification, got %q (%v)", ClassifyError(err), err)
	}
}

func TestDoEnforcesMaxBodyBytes(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		body := "0123456789"
		fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
	}()

	client := NewClient(Options{MaxBodyBytes: 4})
	req, err := NewRequest(context.Background(), "GET", "http://"+listener.Addr().String()+"/", nil, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if _, err := client.Do(context.Background(), req, time.Second); err == nil {
		t.Fatalf("oversized body accepted")
	}
}

func TestNewRequestSetsHeadersAndBody(t *testing.T) {
	req, err := NewRequest(context.Background(), "POST", "http://origin.local/api",
		map[string]string{"Content-Type": "application/json"}, []byte(`{}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("header lost")
	}
	body, err := io.ReadAll(req.Body)
	if err != nil || string(body) != `{}` {
		t.Fatalf("body lost: %q %v", body, err)
	}
}
