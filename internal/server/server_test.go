package server

import (
	"io"
	"net/http"
	"testing"
	"time"
)

func TestStartServesAndShutsDown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	var stopped bool
	srv, err := Start(handler, "127.0.0.1:0", Options{
		Shutdown: ShutdownConfig{Drain: 10 * time.Millisecond, GracefulTimeout: time.Second},
		Stoppers: []func(){func() { stopped = true }},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("status %d body %q", resp.StatusCode, body)
	}

	if err := srv.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !stopped {
		t.Fatalf("stopper did not run")
	}
	if _, err := http.Get("http://" + srv.Addr + "/"); err == nil {
		t.Fatalf("server still accepting connections after shutdown")
	}

	// Shutdown is idempotent.
	if err := srv.Shutdown(); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestStartRejectsNilHandler(t *testing.T) {
	if _, err := Start(nil, "127.0.0.1:0", Options{}); err == nil {
		t.Fatalf("nil handler accepted")
	}
}

func TestApplyShutdownDefaults(t *testing.T) {
	cfg := ApplyShutdownDefaults(ShutdownConfig{})
	if cfg.Drain != 2*time.Second || cfg.GracefulTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	custom := ApplyShutdownDefaults(ShutdownConfig{Drain: time.Second, GracefulTimeout: time.Second})
	if custom.Drain != time.Second || custom.GracefulTimeout != time.Second {
		t.Fatalf("custom values overwritten %+v", custom)
	}
}
