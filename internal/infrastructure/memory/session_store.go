package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marketbuddy/backend/internal/domain"
)

// DefaultSessionTTL is how long an idle session is kept
const DefaultSessionTTL = 2 * time.Hour

// sessionEntry holds one session and the lock serializing its mutations
type sessionEntry struct {
	mu         sync.Mutex
	session    *domain.OrderSession
	expiration time.Time
	removed    bool
}

// SessionStore is a thread-safe in-memory session repository with idle expiry.
// Mutations of one session are serialized; different sessions proceed in parallel.
type SessionStore struct {
	data  map[string]*sessionEntry
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// NewSessionStore creates a store and starts the cleanup goroutine, which runs
// every cleanupInterval until Close is called
func NewSessionStore(ttl, cleanupInterval time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}

	store := &SessionStore{
		data: make(map[string]*sessionEntry),
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
	}

	go store.cleanupExpired(cleanupInterval)

	return store
}

// Create stores a new session
func (s *SessionStore) Create(ctx context.Context, session *domain.OrderSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session id required", domain.ErrInvalidRequest)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.data[session.ID]; exists {
		return fmt.Errorf("%w: session %s already exists", domain.ErrInvalidRequest, session.ID)
	}

	s.data[session.ID] = &sessionEntry{
		session:    session.Clone(),
		expiration: s.now().Add(s.ttl),
	}
	return nil
}

// Get returns a snapshot of the session
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.OrderSession, error) {
	entry, err := s.lockEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()

	return entry.session.Clone(), nil
}

// Update runs fn on a working copy of the session while holding the session's lock.
// The copy replaces the stored session only when fn returns nil.
func (s *SessionStore) Update(ctx context.Context, id string, fn func(*domain.OrderSession) error) error {
	entry, err := s.lockEntry(ctx, id)
	if err != nil {
		return err
	}
	defer entry.mu.Unlock()

	working := entry.session.Clone()
	if err := fn(working); err != nil {
		return err
	}

	entry.session = working
	entry.expiration = s.now().Add(s.ttl)
	return nil
}

// Delete removes a session
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mutex.Lock()
	entry, exists := s.data[id]
	delete(s.data, id)
	s.mutex.Unlock()

	if exists {
		entry.mu.Lock()
		entry.removed = true
		entry.mu.Unlock()
	}
	return nil
}

// Size returns the current number of stored sessions
func (s *SessionStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.data)
}

// Close stops the cleanup goroutine
func (s *SessionStore) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
}

// lockEntry finds a live session and returns it with its lock held
func (s *SessionStore) lockEntry(ctx context.Context, id string) (*sessionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	entry, exists := s.data[id]
	s.mutex.RUnlock()
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	entry.mu.Lock()
	if entry.removed || s.now().After(entry.expiration) {
		entry.mu.Unlock()
		return nil, domain.ErrSessionNotFound
	}
	return entry, nil
}

// cleanupExpired removes idle sessions periodically
func (s *SessionStore) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *SessionStore) removeExpired() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for id, entry := range s.data {
		// Entries busy in an Update are skipped this round
		if !entry.mu.TryLock() {
			continue
		}
		if now.After(entry.expiration) {
			entry.removed = true
			delete(s.data, id)
			removed++
		}
		entry.mu.Unlock()
	}
	return removed
}
