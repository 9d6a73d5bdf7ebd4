package entities

import (
	"testing"
	"time"
)

func TestSessionCreation(t *testing.T) {
	session := NewSession("session-123")

	if session.ID != "session-123" {
		t.Errorf("Expected session ID session-123, got %s", session.ID)
	}

	if session.State() != SessionStateConnecting {
		t.Errorf("Expected state %s, got %s", SessionStateConnecting, session.State())
	}

	if session.IsActive() {
		t.Error("New session should not be active")
	}
}

func TestSessionLifecycle(t *testing.T) {
	session := NewSession("session-1")

	if err := session.Transition(SessionStateAuthenticating); err != nil {
		t.Fatalf("Connecting -> Authenticating failed: %v", err)
	}

	prefs := UserPreferences{Language: "ko"}
	if err := session.Activate("user-1", prefs); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	if !session.IsActive() {
		t.Error("Session should be active")
	}
	if session.UserID != "user-1" {
		t.Errorf("Expected user-1, got %s", session.UserID)
	}
	if session.Preferences.Language != "ko" {
		t.Errorf("Expected language ko, got %s", session.Preferences.Language)
	}

	if err := session.Transition(SessionStateClosing); err != nil {
		t.Fatalf("Active -> Closing failed: %v", err)
	}
	if err := session.Transition(SessionStateClosed); err != nil {
		t.Fatalf("Closing -> Closed failed: %v", err)
	}
}

func TestSessionInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []SessionState
	}{
		{"skip authentication", []SessionState{SessionStateActive}},
		{"reopen closed", []SessionState{SessionStateClosed, SessionStateAuthenticating}},
		{"close active directly", []SessionState{SessionStateAuthenticating, SessionStateActive, SessionStateClosed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := NewSession("s")
			var err error
			for _, next := range tt.path {
				if err = session.Transition(next); err != nil {
					break
				}
			}
			if err == nil {
				t.Error("Expected invalid transition error")
			}
		})
	}
}

func TestSessionAuthFailureGoesStraightToClosed(t *testing.T) {
	session := NewSession("s")
	_ = session.Transition(SessionStateAuthenticating)

	if err := session.Transition(SessionStateClosed); err != nil {
		t.Fatalf("Authenticating -> Closed failed: %v", err)
	}
	if err := session.Activate("user", UserPreferences{}); err == nil {
		t.Error("Closed session must not activate")
	}
}

func TestConversationContextTurns(t *testing.T) {
	ctx := NewConversationContext("c1", "s1", "u1")

	ctx.AddTurn(Turn{Role: MessageRoleUser, Text: "hello"})
	ctx.AddTurn(Turn{Role: MessageRoleAssistant, Text: "hi there"})

	if len(ctx.Turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(ctx.Turns))
	}
	if ctx.Turns[0].Timestamp.IsZero() {
		t.Error("Turn timestamp should be set")
	}
	if ctx.UserTurnCount() != 1 {
		t.Errorf("Expected 1 user turn, got %d", ctx.UserTurnCount())
	}

	want := "user: hello\nassistant: hi there"
	if got := ctx.Transcript(); got != want {
		t.Errorf("Transcript = %q, want %q", got, want)
	}
}

func TestConversationContextCloneIsDeep(t *testing.T) {
	ctx := NewConversationContext("c1", "s1", "u1")
	ctx.AddTurn(Turn{Role: MessageRoleUser, Text: "one"})

	cp := ctx.Clone()
	ctx.AddTurn(Turn{Role: MessageRoleUser, Text: "two"})
	ctx.Turns[0].Text = "changed"

	if len(cp.Turns) != 1 || cp.Turns[0].Text != "one" {
		t.Errorf("Clone shares state with original: %+v", cp.Turns)
	}
}

func TestConversationContextValidation(t *testing.T) {
	ctx := NewConversationContext("c1", "s1", "u1")
	if err := ctx.Validate(); err != nil {
		t.Errorf("Valid context should not have validation errors, got: %v", err)
	}

	ctx.ConversationID = ""
	if err := ctx.Validate(); err == nil {
		t.Error("Context with empty conversation ID should have validation error")
	}

	ctx.ConversationID = "c1"
	ctx.Turns = append(ctx.Turns, Turn{Role: "narrator", Text: "x", Timestamp: time.Now()})
	if err := ctx.Validate(); err == nil {
		t.Error("Context with invalid role should have validation error")
	}
}
