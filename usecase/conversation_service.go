package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain"
	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/conversation"
	"github.com/jheun66/novel-mvp/server/internal/metrics"
	"github.com/jheun66/novel-mvp/server/internal/pipeline"
)

// TurnRequest is one user utterance addressed to a conversation
type TurnRequest struct {
	SessionID      string
	UserID         string
	ConversationID string
	Text           string
	Preferences    entities.UserPreferences
}

// AudioTurnRequest is a recorded utterance that needs transcription first
type AudioTurnRequest struct {
	SessionID      string
	UserID         string
	ConversationID string
	Audio          []byte
	Format         string
	SampleRate     int
	Channels       int
	Preferences    entities.UserPreferences
}

// TurnResult is what the client hears back for a turn
type TurnResult struct {
	UserText           string
	Reply              string
	Emotion            string
	SuggestedQuestions []string
	ReadyForStory      bool
	// Speech is nil when synthesis failed
	Speech *repositories.SpeechAudio
}

// ConversationService orchestrates the dialogue flow of a conversation
type ConversationService struct {
	store    conversation.Store
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(store conversation.Store, p *pipeline.Pipeline, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		store:    store,
		pipeline: p,
		logger:   logger,
	}
}

// Turn runs the dialogue stage for a text utterance. The context is only
// created or extended once the dialogue stage succeeded.
func (s *ConversationService) Turn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	var history []entities.Turn
	snap, err := s.store.Snapshot(req.ConversationID)
	switch {
	case err == nil:
		if snap.SessionID != req.SessionID {
			return TurnResult{}, forbidden()
		}
		history = snap.Turns
	case errors.Is(err, domain.ErrConversationNotFound):
	default:
		return TurnResult{}, err
	}

	out, err := s.pipeline.Dialogue(ctx, repositories.DialogueInput{
		UserText:    req.Text,
		History:     history,
		Preferences: req.Preferences,
	})
	if err != nil {
		return TurnResult{}, err
	}

	ready, err := s.commit(req, out)
	if err != nil {
		return TurnResult{}, err
	}

	s.logger.Info("Dialogue turn completed",
		zap.String("sessionID", req.SessionID),
		zap.String("conversationID", req.ConversationID),
		zap.Int("turns", len(history)+2),
		zap.Bool("readyForStory", ready))

	result := TurnResult{
		UserText:           req.Text,
		Reply:              out.Reply,
		Emotion:            out.Emotion,
		SuggestedQuestions: out.SuggestedQuestions,
		ReadyForStory:      ready,
	}

	speech, err := s.pipeline.Synthesize(ctx, out.Reply, out.Emotion)
	if err != nil {
		s.logger.Warn("Reply synthesis failed, sending text only",
			zap.String("conversationID", req.ConversationID),
			zap.Error(err))
		return result, nil
	}
	result.Speech = &speech
	return result, nil
}

// AudioTurn transcribes recorded audio and runs it as a turn
func (s *ConversationService) AudioTurn(ctx context.Context, req AudioTurnRequest) (TurnResult, error) {
	text, err := s.pipeline.Transcribe(ctx, req.Audio, repositories.AudioConfig{
		SampleRate: req.SampleRate,
		Encoding:   req.Format,
		Channels:   req.Channels,
		Language:   req.Preferences.Language,
	})
	if err != nil {
		return TurnResult{}, err
	}

	s.logger.Info("Transcription completed",
		zap.String("conversationID", req.ConversationID),
		zap.Int("audioBytes", len(req.Audio)),
		zap.Int("chars", len(text)))

	return s.Turn(ctx, TurnRequest{
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Text:           text,
		Preferences:    req.Preferences,
	})
}

// EndSession drops every conversation the session created
func (s *ConversationService) EndSession(sessionID string) int {
	n := s.store.RemoveOwnedBy(sessionID)
	metrics.ConversationsActive.Set(float64(s.store.Len()))
	return n
}

func (s *ConversationService) commit(req TurnRequest, out repositories.DialogueOutput) (bool, error) {
	if _, err := s.store.GetOrCreate(req.ConversationID, req.SessionID, req.UserID); err != nil {
		if errors.Is(err, domain.ErrConversationOwner) {
			return false, forbidden()
		}
		return false, err
	}

	var ready bool
	err := s.store.Update(req.ConversationID, func(c *entities.ConversationContext) error {
		c.AddTurn(entities.Turn{Role: entities.MessageRoleUser, Text: req.Text})
		c.AddTurn(entities.Turn{Role: entities.MessageRoleAssistant, Text: out.Reply, Emotion: out.Emotion})
		c.ReadyForStory = c.ReadyForStory || out.ReadyForStory
		ready = c.ReadyForStory
		return nil
	})
	metrics.ConversationsActive.Set(float64(s.store.Len()))
	return ready, err
}

func forbidden() *domain.Error {
	return domain.NewDomainError(domain.CodeForbidden, "conversation belongs to another session", domain.ErrConversationOwner)
}
