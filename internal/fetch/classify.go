package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// ClassifyError maps a transport error onto a small category set used for
// logging and for deciding whether a request ever reached the origin.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "reset"
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "eof"
	}
	return "other"
}

// IsNetworkFailure reports whether the error means the origin was
// unreachable, the condition that parks a mutating request in the durable
// queue instead of failing it.
func IsNetworkFailure(err error) bool {
	switch ClassifyError(err) {
	case "dial", "timeout", "reset", "eof":
		return true
	default:
		return false
	}
}
