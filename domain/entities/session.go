package entities

import (
	"fmt"
	"sync"
	"time"
)

// SessionState represents the lifecycle state of a connection
type SessionState string

const (
	SessionStateConnecting     SessionState = "connecting"
	SessionStateAuthenticating SessionState = "authenticating"
	SessionStateActive         SessionState = "active"
	SessionStateClosing        SessionState = "closing"
	SessionStateClosed         SessionState = "closed"
)

var sessionTransitions = map[SessionState][]SessionState{
	SessionStateConnecting:     {SessionStateAuthenticating, SessionStateClosed},
	SessionStateAuthenticating: {SessionStateActive, SessionStateClosed},
	SessionStateActive:         {SessionStateClosing},
	SessionStateClosing:        {SessionStateClosed},
}

// Session is one connection's identity and lifecycle
type Session struct {
	ID          string
	UserID      string
	Preferences UserPreferences
	CreatedAt   time.Time

	mu           sync.RWMutex
	state        SessionState
	conversation string
}

// CurrentConversation returns the conversation the session last addressed
func (s *Session) CurrentConversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversation
}

// SetCurrentConversation remembers id for messages that omit one
func (s *Session) SetCurrentConversation(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.conversation = id
	s.mu.Unlock()
}

// NewSession creates a session in the Connecting state
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		state:     SessionStateConnecting,
	}
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transition moves the session to next, rejecting moves the lifecycle forbids
func (s *Session) Transition(next SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, allowed := range sessionTransitions[s.state] {
		if allowed == next {
			s.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid session transition %s -> %s", s.state, next)
}

// Activate records the authenticated identity and moves to Active
func (s *Session) Activate(userID string, prefs UserPreferences) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := s.Transition(SessionStateActive); err != nil {
		return err
	}
	s.UserID = userID
	s.Preferences = prefs
	return nil
}

// IsActive reports whether the session may process messages
func (s *Session) IsActive() bool {
	return s.State() == SessionStateActive
}
