package wizard

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/firerestore-dev/firerestore/internal/assert"
	"github.com/firerestore-dev/firerestore/internal/metrics"
)

// Manager holds the in-memory sessions of all browser clients
type Manager struct {
	gateway  Gateway
	recorder Recorder
	opts     Options
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty manager. recorder may be nil.
func NewManager(gateway Gateway, recorder Recorder, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		gateway:  gateway,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session with a random id
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	assert.Length(id, 36)
	session := NewSession(id, m.gateway, m.recorder, m.opts, m.logger)

	m.mu.Lock()
	m.sessions[session.ID()] = session
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SetSessions(n)
	m.logger.Debug().Str("session_id", session.ID()).Msg("Wizard session created")
	return session
}

// Get returns the session with id and marks it used
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		session.Touch()
	}
	return session, ok
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Remove stops and forgets a session
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if ok {
		session.Close()
		metrics.SetSessions(n)
	}
}

// EvictIdle removes sessions unused for longer than ttl. Sessions that are
// still polling an operation are kept.
func (m *Manager) EvictIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	var evicted []*Session
	for id, session := range m.sessions {
		if session.Polling() || session.LastSeen().After(cutoff) {
			continue
		}
		evicted = append(evicted, session)
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, session := range evicted {
		session.Close()
	}
	metrics.SetSessions(n)

	if len(evicted) > 0 {
		m.logger.Info().
			Int("evicted", len(evicted)).
			Int("remaining", n).
			Msg("Evicted idle wizard sessions")
	}
	return len(evicted)
}

// Close stops polling in every session
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
