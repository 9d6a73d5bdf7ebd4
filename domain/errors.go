package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures by how the session reacts to them.
type ErrorKind string

const (
	// KindProtocol is a malformed or unroutable frame. The session continues.
	KindProtocol ErrorKind = "protocol"
	// KindAuth is a bad or expired credential. The session is closed without a reply.
	KindAuth ErrorKind = "auth"
	// KindCollaborator is a failed or timed out external call. The session continues.
	KindCollaborator ErrorKind = "collaborator"
	// KindDomain is a business rule rejection carrying a stable code.
	KindDomain ErrorKind = "domain"
	// KindTransport is a connection drop. It is never reported to the peer.
	KindTransport ErrorKind = "transport"
)

// Stable error codes sent to clients.
const (
	CodeProtocolError        = "PROTOCOL_ERROR"
	CodeInvalidAudio         = "INVALID_AUDIO"
	CodeStreamNotFound       = "STREAM_NOT_FOUND"
	CodeSequenceMismatch     = "SEQUENCE_MISMATCH"
	CodeIncompleteStream     = "INCOMPLETE_STREAM"
	CodeAudioTooLarge        = "AUDIO_TOO_LARGE"
	CodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	CodeForbidden            = "FORBIDDEN"
	CodeNotReady             = "NOT_READY"
	CodeStoryLimitExceeded   = "STORY_LIMIT_EXCEEDED"
	CodeTimeout              = "TIMEOUT"
	CodeDialogueFailed       = "DIALOGUE_FAILED"
	CodeTranscriptionFailed  = "TRANSCRIPTION_FAILED"
	CodeStoryFailed          = "STORY_FAILED"
	CodeSynthesisFailed      = "SYNTHESIS_FAILED"
	CodeQuotaUnavailable     = "QUOTA_UNAVAILABLE"
	CodeUnauthorized         = "UNAUTHORIZED"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationOwner    = errors.New("conversation belongs to another session")
	ErrStreamNotFound       = errors.New("no active audio stream")
	ErrSequenceMismatch     = errors.New("unexpected audio sequence number")
	ErrIncompleteStream     = errors.New("audio stream is missing chunks")
	ErrAudioTooLarge        = errors.New("audio stream exceeds size limit")
	ErrNotReadyForStory     = errors.New("conversation is not ready for a story")
	ErrStoryLimitExceeded   = errors.New("story limit exceeded")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrMissingToken         = errors.New("missing token")
)

// Error is the typed failure carried from handlers to the router boundary.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewProtocolError reports a malformed frame.
func NewProtocolError(code, message string, err error) *Error {
	return &Error{Kind: KindProtocol, Code: code, Message: message, Err: err}
}

// NewDomainError reports a business rule rejection.
func NewDomainError(code, message string, err error) *Error {
	return &Error{Kind: KindDomain, Code: code, Message: message, Err: err}
}

// NewAuthError reports a rejected credential.
func NewAuthError(err error) *Error {
	return &Error{Kind: KindAuth, Code: CodeUnauthorized, Message: "authentication failed", Err: err}
}

// NewCollaboratorError wraps a failed external call. Deadline overruns are
// reported with CodeTimeout regardless of the code passed in.
func NewCollaboratorError(code, message string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
		message = message + " (timed out)"
	}
	return &Error{Kind: KindCollaborator, Code: code, Message: message, Err: err}
}

// AsError extracts a *Error from err, or wraps unknown failures as a
// collaborator error with the fallback code.
func AsError(err error, fallbackCode string) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return NewCollaboratorError(fallbackCode, "request failed", err)
}
