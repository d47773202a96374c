package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-care/internal/facility"
)

// SessionStore keeps one facility map per viewer session, evicting sessions
// idle for longer than maxIdle.
type SessionStore struct {
	categories *CategoryService
	maxIdle    time.Duration
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	m        *facility.Map
	lastSeen time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore(categories *CategoryService, maxIdle time.Duration) *SessionStore {
	return &SessionStore{
		categories: categories,
		maxIdle:    maxIdle,
		now:        time.Now,
		sessions:   make(map[string]*session),
	}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// Get returns the map for a session. Empty, malformed and expired ids get a
// new session under a fresh id; created reports whether the map is new, so
// callers can seed it from the page's state.
func (s *SessionStore) Get(id string) (string, *facility.Map, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	sess, ok := s.sessions[id]
	if !ok {
		id = NewID()
		sess = &session{m: s.categories.NewMap()}
		s.sessions[id] = sess
	}
	sess.lastSeen = now
	return id, sess.m, !ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts idle sessions.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *SessionStore) sweepLocked(now time.Time) int {
	if s.maxIdle <= 0 {
		return 0
	}
	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.maxIdle {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		zap.L().Debug("service: evicted idle sessions", zap.Int("count", evicted))
	}
	return evicted
}
