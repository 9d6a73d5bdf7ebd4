package api

import "github.com/jheun66/novel-mvp/server/domain/entities"

// HealthResponse is the payload of the health check
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// SessionsResponse reports what the server currently holds in memory
type SessionsResponse struct {
	ActiveSessions      int `json:"active_sessions"`
	ActiveConversations int `json:"active_conversations"`
	OpenAudioStreams    int `json:"open_audio_streams"`
}

// StoriesResponse lists a user's stories, newest first
type StoriesResponse struct {
	Stories []entities.Story `json:"stories"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
