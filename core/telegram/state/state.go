// Package state tracks multi-step conversations. Each user has at most one
// session holding the current step and scratch data collected along the way.
// Sessions live in memory and reset on restart.
package state

import "sync"

// Step identifies a position in a conversation flow.
type Step string

// StepIdle means no conversation is in progress.
const StepIdle Step = "idle"

type session struct {
	step Step
	data map[string]any
}

// Manager stores conversation sessions keyed by user id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*session
}

// NewManager constructs an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[int64]*session)}
}

// Step returns the user's current step, or StepIdle without a session.
func (m *Manager) Step(userID int64) Step {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[userID]; ok {
		return s.step
	}
	return StepIdle
}

// SetStep moves the user to a step, creating the session if needed.
func (m *Manager) SetStep(userID int64, step Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionLocked(userID).step = step
}

// InProgress reports whether the user is mid-conversation.
func (m *Manager) InProgress(userID int64) bool {
	return m.Step(userID) != StepIdle
}

// Put stores a scratch value for the user's session.
func (m *Manager) Put(userID int64, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionLocked(userID).data[key] = value
}

// Get retrieves a scratch value for the user's session.
func (m *Manager) Get(userID int64, key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	v, ok := s.data[key]
	return v, ok
}

// GetString retrieves a scratch value and asserts it as a string.
func (m *Manager) GetString(userID int64, key string) (string, bool) {
	v, ok := m.Get(userID, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clear removes the user's session entirely.
func (m *Manager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

func (m *Manager) sessionLocked(userID int64) *session {
	s, ok := m.sessions[userID]
	if !ok {
		s = &session{step: StepIdle, data: make(map[string]any)}
		m.sessions[userID] = s
	}
	return s
}
