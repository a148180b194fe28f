package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lexiqai/voice-studio/internal/observability"
	"github.com/rs/zerolog"
)

// ErrSessionNotFound is returned for unknown or destroyed session ids
var ErrSessionNotFound = errors.New("session not found")

// CloseFunc is called after a session has been destroyed
type CloseFunc func(sessionID string)

// Manager is the registry of live sessions
type Manager struct {
	deps   Dependencies
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
	onClose  []CloseFunc
}

// NewManager creates an empty registry. deps are shared by every session it creates.
func NewManager(deps Dependencies) *Manager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Manager{
		deps:     deps,
		logger:   observability.GetLogger().With().Str("component", "sessions").Logger(),
		sessions: make(map[string]*Controller),
	}
}

// OnClose registers a hook run whenever a session is destroyed
func (m *Manager) OnClose(fn CloseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = append(m.onClose, fn)
}

// Create opens a new session with default state
func (m *Manager) Create() *Controller {
	c := NewController(uuid.New().String(), m.deps)

	m.mu.Lock()
	m.sessions[c.ID()] = c
	m.mu.Unlock()

	observability.RecordSessionOpened()
	m.logger.Info().Str("session_id", c.ID()).Msg("Session created")
	return c
}

func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// Delete destroys a session and releases its asset
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.destroy(c)
	m.logger.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

func (m *Manager) destroy(c *Controller) {
	c.Close()
	observability.RecordSessionClosed()

	m.mu.RLock()
	hooks := make([]CloseFunc, len(m.onClose))
	copy(hooks, m.onClose)
	m.mu.RUnlock()

	for _, fn := range hooks {
		fn(c.ID())
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep destroys sessions inactive for longer than idle and returns how many.
// Sessions with a request in flight are left alone.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.deps.Now().Add(-idle)

	var expired []*Controller
	m.mu.Lock()
	for id, c := range m.sessions {
		if c.Snapshot().Status == StatusGenerating {
			continue
		}
		if c.LastActive().Before(cutoff) {
			expired = append(expired, c)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, c := range expired {
		m.destroy(c)
	}
	if len(expired) > 0 {
		m.logger.Info().Int("expired", len(expired)).Int("live", m.Len()).Msg("Swept idle sessions")
	}
	return len(expired)
}

// RunJanitor sweeps idle sessions every interval until ctx is cancelled
func (m *Manager) RunJanitor(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(idle)
		}
	}
}

// Close destroys every session
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	for _, c := range sessions {
		m.destroy(c)
	}
	m.logger.Info().Int("closed", len(sessions)).Msg("All sessions closed")
}
