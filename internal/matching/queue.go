// Package matching implements the FIFO waiting queue used to pair users.
package matching

import (
	"context"
	"fmt"

	"github.com/whisper/pairchat/internal/store"
)

// Queue is the matchmaking queue. Order is arrival order as kept by the
// underlying store; a user appears at most once.
//
// Queue performs no locking of its own. Callers that combine a dequeue with
// a pairing must hold the coordinator lock for the whole step.
type Queue struct {
	store store.QueueStore
}

// NewQueue creates a Queue backed by s.
func NewQueue(s store.QueueStore) *Queue {
	return &Queue{store: s}
}

// Enqueue adds userID at the back of the queue. Enqueueing a user that is
// already waiting is a no-op and keeps the original position.
func (q *Queue) Enqueue(ctx context.Context, userID int64) error {
	if err := q.store.Enqueue(ctx, userID); err != nil {
		return fmt.Errorf("matching: enqueue %d: %w", userID, err)
	}
	return nil
}

// DequeueFirstExcluding removes and returns the longest-waiting user other
// than userID. ok is false when nobody else is waiting.
func (q *Queue) DequeueFirstExcluding(ctx context.Context, userID int64) (candidate int64, ok bool, err error) {
	candidate, ok, err = q.store.FirstInQueue(ctx, userID)
	if err != nil {
		return 0, false, fmt.Errorf("matching: first in queue: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	if err := q.store.Dequeue(ctx, candidate); err != nil {
		return 0, false, fmt.Errorf("matching: dequeue %d: %w", candidate, err)
	}
	return candidate, true, nil
}

// Remove takes userID out of the queue. Removing an absent user is a no-op.
func (q *Queue) Remove(ctx context.Context, userID int64) error {
	if err := q.store.Dequeue(ctx, userID); err != nil {
		return fmt.Errorf("matching: remove %d: %w", userID, err)
	}
	return nil
}

// Contains reports whether userID is waiting.
func (q *Queue) Contains(ctx context.Context, userID int64) (bool, error) {
	ok, err := q.store.IsQueued(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("matching: is queued %d: %w", userID, err)
	}
	return ok, nil
}

// Len returns the number of waiting users.
func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.store.QueueLen(ctx)
	if err != nil {
		return 0, fmt.Errorf("matching: queue len: %w", err)
	}
	return n, nil
}

// FirstExcluding returns the longest-waiting user other than userID without
// removing it.
func (q *Queue) FirstExcluding(ctx context.Context, userID int64) (int64, bool, error) {
	candidate, ok, err := q.store.FirstInQueue(ctx, userID)
	if err != nil {
		return 0, false, fmt.Errorf("matching: first in queue: %w", err)
	}
	return candidate, ok, nil
}
