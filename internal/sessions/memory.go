package sessions

import (
	"context"
	"slices"
	"sync"
	"time"

	"GuestReportBot/internal/models/domain"
)

type memoryEntry struct {
	sess      domain.Session
	expiresAt time.Time
}

// Memory is an in-process Store. Sessions expire after ttl of inactivity.
type Memory struct {
	mu   sync.RWMutex
	data map[int64]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		data: make(map[int64]memoryEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get returns a copy of the stored session.
func (s *Memory) Get(_ context.Context, userID int64) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[userID]
	if !ok || s.expired(e) {
		return nil, ErrNotFound
	}
	sess := e.sess
	sess.PhotoIDs = slices.Clone(e.sess.PhotoIDs)
	return &sess, nil
}

func (s *Memory) Save(_ context.Context, sess *domain.Session) error {
	now := s.now()
	stored := *sess
	stored.PhotoIDs = slices.Clone(sess.PhotoIDs)
	stored.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sess.UserID] = memoryEntry{sess: stored, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *Memory) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, userID)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *Memory) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.data {
		if s.expired(e) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Memory) expired(e memoryEntry) bool {
	return s.ttl > 0 && s.now().After(e.expiresAt)
}
