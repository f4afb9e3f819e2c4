package wizard

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrSessionNotFound = errors.New("wizard session not found")
	// ErrVersionConflict means the session changed since the caller read it.
	ErrVersionConflict = errors.New("wizard session was modified concurrently")
)

// Session is a stored wizard state. Version increases by one on every
// successful transition.
type Session struct {
	ID        string
	Version   int
	State     State
	UpdatedAt time.Time
}

// Store keeps the most recently used sessions in memory. Idle sessions expire
// after the configured TTL; when full the least recently used one is evicted.
type Store struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, Session]
	now      func() time.Time
}

func NewStore(maxSessions int, ttl time.Duration) *Store {
	if maxSessions <= 0 {
		maxSessions = 1024
	}
	return &Store{
		sessions: expirable.NewLRU[string, Session](maxSessions, nil, ttl),
		now:      time.Now,
	}
}

// Create starts a new session at the first step.
func (s *Store) Create() Session {
	sess := Session{
		ID:        uuid.NewString(),
		Version:   1,
		State:     New(),
		UpdatedAt: s.now(),
	}
	s.mu.Lock()
	s.sessions.Add(sess.ID, sess)
	s.mu.Unlock()
	return sess
}

func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions.Get(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// Update applies transition to the stored state. The transition runs without
// the store lock held; the result is saved only if no other update landed in
// the meantime, otherwise ErrVersionConflict is returned. A non-negative
// expected version must also match the stored one. When transition fails the
// session is left unchanged and returned with the error.
func (s *Store) Update(id string, expected int, transition func(State) (State, error)) (Session, error) {
	current, err := s.Get(id)
	if err != nil {
		return Session{}, err
	}
	if expected >= 0 && expected != current.Version {
		return current, ErrVersionConflict
	}

	next, err := transition(current.State)
	if err != nil {
		return current, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	latest, ok := s.sessions.Get(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if latest.Version != current.Version {
		return latest, ErrVersionConflict
	}
	updated := Session{
		ID:        id,
		Version:   current.Version + 1,
		State:     next,
		UpdatedAt: s.now(),
	}
	s.sessions.Add(id, updated)
	return updated, nil
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Remove(id)
}

// Len is the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Len()
}
