// Package queue is the durable store of mutating requests awaiting replay.
// Items are persisted in insertion order under monotonically increasing ids
// and removed only after a confirmed successful replay.
package queue

import (
	"errors"
	"fmt"
)

// Descriptor is what callers submit for enqueueing. It is validated before
// anything is persisted.
type Descriptor struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// Item is a persisted pending request. Attempts counts failed replays; it is
// the only field rewritten after creation.
type Item struct {
	ID        uint64
	URL       string
	Method    string
	Headers   map[string]string
	Body      []byte
	Timestamp string
	Attempts  int
}

type Store interface {
	// Enqueue validates the descriptor and persists it under a fresh id.
	Enqueue(desc Descriptor) (Item, error)
	// Drain returns all pending items in ascending id order.
	Drain() ([]Item, error)
	// Remove deletes one item. Removing an absent id is a no-op.
	Remove(id uint64) error
	// RecordFailure increments the attempt counter. Once the counter
	// reaches the store's max attempts the item moves to the dead-letter
	// list and the first return value is true.
	RecordFailure(item Item) (bool, error)
	// DeadLetters returns items that exhausted their replay attempts.
	DeadLetters() ([]Item, error)
	Depth() (int, error)
	Close() error
}

// ValidationError marks descriptors rejected at enqueue time. They are never
// persisted and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid queue item: %s", e.Reason)
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
