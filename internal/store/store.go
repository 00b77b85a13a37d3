// Package store defines the persistence gateway for pairchat: users, the
// matching queue, active pairings, reports, blocks and quota records. The
// core treats it as a keyed row store; implementations live in the memory
// and postgres subpackages.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that expect a row to exist.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyPaired is returned by CreatePairing when either user already has
// a partner.
var ErrAlreadyPaired = errors.New("store: user already paired")

// User is the display metadata of a participant. Upserted on every
// interaction, never deleted.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// QuotaRecord is the per-user match-attempt counter.
type QuotaRecord struct {
	UsedCount int
	ResetAt   int64 // unix seconds
	Premium   bool
}

// Report is an append-only complaint filed by one partner against the other.
type Report struct {
	ID         string
	ReporterID int64
	ReportedID int64
	Reason     string
	CreatedAt  time.Time
}

// Stats is the aggregate view shown to the moderator.
type Stats struct {
	Users       int
	ActiveChats int
	Reports     int
	Queue       int
}

// UserStore persists user profiles.
type UserStore interface {
	UpsertUser(ctx context.Context, u User) error
}

// QueueStore persists waiting users in arrival order. Enqueue on an
// already-queued user is a no-op and keeps its position.
type QueueStore interface {
	Enqueue(ctx context.Context, userID int64) error
	Dequeue(ctx context.Context, userID int64) error
	// FirstInQueue returns the longest-waiting user other than excludeID.
	FirstInQueue(ctx context.Context, excludeID int64) (int64, bool, error)
	IsQueued(ctx context.Context, userID int64) (bool, error)
	QueueLen(ctx context.Context) (int, error)
}

// PairingStore persists active two-party sessions.
type PairingStore interface {
	// CreatePairing removes both users from the queue and records the pair
	// in one atomic step.
	CreatePairing(ctx context.Context, a, b int64) error
	Partner(ctx context.Context, userID int64) (int64, bool, error)
	DeletePairing(ctx context.Context, a, b int64) error
}

// ReportStore persists reports.
type ReportStore interface {
	AddReport(ctx context.Context, r Report) error
}

// BlockStore persists the set of blocked users.
type BlockStore interface {
	Block(ctx context.Context, userID int64) error
	Unblock(ctx context.Context, userID int64) error
	IsBlocked(ctx context.Context, userID int64) (bool, error)
}

// QuotaStore persists quota records. Quota returns the zero record for a
// user that has none.
type QuotaStore interface {
	Quota(ctx context.Context, userID int64) (QuotaRecord, error)
	SaveQuota(ctx context.Context, userID int64, rec QuotaRecord) error
}

// Store is the full persistence gateway.
type Store interface {
	UserStore
	QueueStore
	PairingStore
	ReportStore
	BlockStore
	QuotaStore

	Stats(ctx context.Context) (Stats, error)
	Close() error
}
