// pkg/session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/frame"
	"github.com/xtechon/vatflow/pkg/validate"
	"github.com/xtechon/vatflow/pkg/vat"
)

// ErrNotFound is returned when a session id is unknown or has expired
var ErrNotFound = errors.New("session not found or expired")

// Session holds the intermediate state between file validation and
// report download: the reconciled frame, the validation result and,
// once processing ran, the enrichment result and generated artifacts.
type Session struct {
	ID         string
	Filename   string
	Frame      *frame.Frame
	Issues     []validate.Issue
	Missing    []string
	Result     *vat.Result
	ReportXLSX []byte
	IssuesXLSX []byte
	ManualXLSX []byte
	CreatedAt  time.Time
}

// Store is a TTL-indexed in-memory session store. Expiry is checked on
// access (check-then-use) so a concurrent eviction sweep can never race
// an in-flight read into returning freed state.
type Store struct {
	ttl      time.Duration
	logger   *zap.Logger
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	session   *Session
	expiresAt time.Time
}

// NewStore creates a session store with the given retention window
func NewStore(ttl time.Duration, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	return &Store{
		ttl:      ttl,
		logger:   logger.Named("session"),
		sessions: make(map[string]*entry),
		now:      time.Now,
		stop:     make(chan struct{}),
	}, nil
}

// Put stores a session under a freshly generated id and returns the id
func (s *Store) Put(session *Session) string {
	id := uuid.New().String()
	session.ID = id
	session.CreatedAt = s.now()

	s.mu.Lock()
	s.sessions[id] = &entry{
		session:   session,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()

	s.logger.Debug("Session stored", zap.String("sessionID", id))
	return id
}

// Get returns a point-in-time copy of the session for an id, or
// ErrNotFound when the id is unknown or past its retention window.
// Writes go through Update
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok || s.now().After(e.expiresAt) {
		return nil, ErrNotFound
	}

	// Return a snapshot so callers never observe a concurrent Update
	// mid-write. Reference fields are only ever replaced wholesale
	// through Update, never mutated in place.
	snapshot := *e.session
	return &snapshot, nil
}

// Update applies a mutation to a stored session under the store lock
func (s *Store) Update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || s.now().After(e.expiresAt) {
		return ErrNotFound
	}
	fn(e.session)
	return nil
}

// Delete removes a session immediately
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of live (non-expired) sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	now := s.now()
	for _, e := range s.sessions {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}

// EvictExpired removes every session past its retention window and
// returns the number evicted
func (s *Store) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, e := range s.sessions {
		if now.After(e.expiresAt) {
			delete(s.sessions, id)
			evicted++
		}
	}

	if evicted > 0 {
		s.logger.Info("Evicted expired sessions",
			zap.Int("evicted", evicted),
			zap.Int("remaining", len(s.sessions)))
	}
	return evicted
}

// StartJanitor runs EvictExpired on the given interval until Close is
// called
func (s *Store) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.EvictExpired()
			case <-s.stop:
				return
			}
		}
	}()
}

// Close stops the janitor goroutine
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}
