package testutil

import (
	"testing"
	"time"
)

func Eventually(t *testing.T, timeout time.Duration, interval time.Duration, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}
	t.Fatalf("condition not met within %v: %s", timeout, message)
}
