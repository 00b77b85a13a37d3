// Package memory is an in-process implementation of store.Store. It keeps
// every table in maps guarded by one mutex and loses everything on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whisper/pairchat/internal/store"
)

// Store is a goroutine-safe, map-backed store.Store.
type Store struct {
	mu       sync.RWMutex
	users    map[int64]store.User
	queue    []int64 // arrival order, oldest first
	queued   map[int64]struct{}
	partners map[int64]int64 // both directions of every pairing
	reports  []store.Report
	blocks   map[int64]struct{}
	quotas   map[int64]store.QuotaRecord
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[int64]store.User),
		queued:   make(map[int64]struct{}),
		partners: make(map[int64]int64),
		blocks:   make(map[int64]struct{}),
		quotas:   make(map[int64]store.QuotaRecord),
	}
}

func (s *Store) UpsertUser(_ context.Context, u store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) Enqueue(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queued[userID]; ok {
		return nil
	}
	s.queued[userID] = struct{}{}
	s.queue = append(s.queue, userID)
	return nil
}

func (s *Store) Dequeue(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dequeueLocked(userID)
	return nil
}

func (s *Store) dequeueLocked(userID int64) {
	if _, ok := s.queued[userID]; !ok {
		return
	}
	delete(s.queued, userID)
	for i, id := range s.queue {
		if id == userID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Store) FirstInQueue(_ context.Context, excludeID int64) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.queue {
		if id != excludeID {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) IsQueued(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.queued[userID]
	return ok, nil
}

func (s *Store) QueueLen(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue), nil
}

func (s *Store) CreatePairing(_ context.Context, a, b int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.partners[a]; ok {
		return store.ErrAlreadyPaired
	}
	if _, ok := s.partners[b]; ok {
		return store.ErrAlreadyPaired
	}
	s.dequeueLocked(a)
	s.dequeueLocked(b)
	s.partners[a] = b
	s.partners[b] = a
	return nil
}

func (s *Store) Partner(_ context.Context, userID int64) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partners[userID]
	return p, ok, nil
}

func (s *Store) DeletePairing(_ context.Context, a, b int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partners[a] == b {
		delete(s.partners, a)
	}
	if s.partners[b] == a {
		delete(s.partners, b)
	}
	return nil
}

func (s *Store) AddReport(_ context.Context, r store.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.reports = append(s.reports, r)
	return nil
}

// Reports returns a copy of every stored report, oldest first.
func (s *Store) Reports() []store.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Report, len(s.reports))
	copy(out, s.reports)
	return out
}

func (s *Store) Block(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[userID] = struct{}{}
	return nil
}

func (s *Store) Unblock(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, userID)
	return nil
}

func (s *Store) IsBlocked(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[userID]
	return ok, nil
}

func (s *Store) Quota(_ context.Context, userID int64) (store.QuotaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quotas[userID], nil
}

func (s *Store) SaveQuota(_ context.Context, userID int64, rec store.QuotaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[userID] = rec
	return nil
}

func (s *Store) Stats(_ context.Context) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Stats{
		Users:       len(s.users),
		ActiveChats: len(s.partners) / 2,
		Reports:     len(s.reports),
		Queue:       len(s.queue),
	}, nil
}

func (s *Store) Close() error { return nil }
