// Package router dispatches decoded inbound messages of one session to the
// use cases and turns their results into outbound messages.
package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain"
	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/internal/audio"
	"github.com/jheun66/novel-mvp/server/internal/metrics"
	"github.com/jheun66/novel-mvp/server/internal/protocol"
	"github.com/jheun66/novel-mvp/server/usecase"
)

// Router is safe for concurrent use by many sessions. Callers must not
// invoke Handle concurrently for the same session.
type Router struct {
	conversations *usecase.ConversationService
	stories       *usecase.StoryService
	assembler     *audio.Assembler
	logger        *zap.Logger
}

// New creates a router
func New(
	conversations *usecase.ConversationService,
	stories *usecase.StoryService,
	assembler *audio.Assembler,
	logger *zap.Logger,
) *Router {
	return &Router{
		conversations: conversations,
		stories:       stories,
		assembler:     assembler,
		logger:        logger,
	}
}

// Handle runs msg for session and returns the replies in send order
func (r *Router) Handle(ctx context.Context, session *entities.Session, msg protocol.Inbound) []protocol.Outbound {
	metrics.MessagesTotal.WithLabelValues(string(msg.Type()), metrics.Inbound).Inc()

	out, err := r.dispatch(ctx, session, msg)
	if err != nil {
		return append(out, r.errorReply(session, msg, err))
	}
	return out
}

func (r *Router) dispatch(ctx context.Context, session *entities.Session, msg protocol.Inbound) ([]protocol.Outbound, error) {
	switch m := msg.(type) {
	case protocol.AuthRequest:
		return []protocol.Outbound{protocol.AuthResponse{Success: true, Message: "already authenticated"}}, nil
	case protocol.TextInput:
		return r.handleText(ctx, session, m)
	case protocol.AudioInput:
		return r.handleAudio(ctx, session, m)
	case protocol.AudioStreamStart:
		return nil, r.handleStreamStart(session, m)
	case protocol.AudioStreamChunk:
		return nil, r.handleStreamChunk(session, m)
	case protocol.AudioStreamEnd:
		return r.handleStreamEnd(ctx, session, m)
	case protocol.AudioEchoTest:
		return r.handleEcho(session, m), nil
	case protocol.GenerateStory:
		return r.handleGenerateStory(ctx, session, m)
	default:
		// Inbound is closed; reaching this is a programming error in the codec.
		return nil, domain.NewProtocolError(domain.CodeProtocolError, "unroutable message "+string(msg.Type()), nil)
	}
}

func (r *Router) handleText(ctx context.Context, session *entities.Session, m protocol.TextInput) ([]protocol.Outbound, error) {
	res, err := r.conversations.Turn(ctx, usecase.TurnRequest{
		SessionID:      session.ID,
		UserID:         session.UserID,
		ConversationID: conversationFor(session, m.ConversationID),
		Text:           m.Text,
		Preferences:    session.Preferences,
	})
	if err != nil {
		return nil, err
	}
	return turnReplies(res), nil
}

func (r *Router) handleAudio(ctx context.Context, session *entities.Session, m protocol.AudioInput) ([]protocol.Outbound, error) {
	if err := r.assembler.CheckSize(len(m.AudioData)); err != nil {
		return nil, err
	}
	res, err := r.conversations.AudioTurn(ctx, usecase.AudioTurnRequest{
		SessionID:      session.ID,
		UserID:         session.UserID,
		ConversationID: conversationFor(session, m.ConversationID),
		Audio:          m.AudioData,
		Format:         m.Format,
		SampleRate:     m.SampleRate,
		Channels:       protocol.DefaultChannels,
		Preferences:    session.Preferences,
	})
	if err != nil {
		return nil, err
	}
	return turnReplies(res), nil
}

func (r *Router) handleStreamStart(session *entities.Session, m protocol.AudioStreamStart) error {
	convID := conversationFor(session, m.ConversationID)
	err := r.assembler.Start(convID, session.ID, audio.StreamConfig{
		SampleRate: m.SampleRate,
		Format:     m.Format,
		Channels:   m.Channels,
	})
	if err != nil {
		return err
	}

	r.logger.Info("Audio stream started",
		zap.String("sessionID", session.ID),
		zap.String("conversationID", convID),
		zap.Int("sampleRate", m.SampleRate),
		zap.String("format", m.Format),
		zap.Int("channels", m.Channels))
	return nil
}

func (r *Router) handleStreamChunk(session *entities.Session, m protocol.AudioStreamChunk) error {
	convID := conversationFor(session, m.ConversationID)
	res, err := r.assembler.Append(convID, session.ID, m.SequenceNumber, m.AudioData)
	if err != nil {
		return err
	}

	r.logger.Debug("Audio chunk received",
		zap.String("conversationID", convID),
		zap.Int("sequence", m.SequenceNumber),
		zap.Int("bytes", len(m.AudioData)),
		zap.Int("totalBytes", res.Bytes),
		zap.Float64("level", res.Level))
	return nil
}

func (r *Router) handleStreamEnd(ctx context.Context, session *entities.Session, m protocol.AudioStreamEnd) ([]protocol.Outbound, error) {
	convID := conversationFor(session, m.ConversationID)
	upload, err := r.assembler.End(convID, session.ID, m.TotalChunks)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Audio stream finished",
		zap.String("sessionID", session.ID),
		zap.String("conversationID", convID),
		zap.Int("chunks", upload.Chunks),
		zap.Int("bytes", len(upload.Data)))

	res, err := r.conversations.AudioTurn(ctx, usecase.AudioTurnRequest{
		SessionID:      session.ID,
		UserID:         session.UserID,
		ConversationID: convID,
		Audio:          upload.Data,
		Format:         upload.Format,
		SampleRate:     upload.SampleRate,
		Channels:       upload.Channels,
		Preferences:    session.Preferences,
	})
	if err != nil {
		return nil, err
	}
	return turnReplies(res), nil
}

func (r *Router) handleEcho(session *entities.Session, m protocol.AudioEchoTest) []protocol.Outbound {
	r.logger.Info("Audio echo test",
		zap.String("sessionID", session.ID),
		zap.Int("bytes", len(m.AudioData)),
		zap.Float64("level", audio.Level(m.AudioData)))

	return []protocol.Outbound{protocol.AudioOutput{
		AudioData:  m.AudioData,
		Format:     protocol.DefaultAudioFormat,
		SampleRate: protocol.DefaultSampleRate,
		Duration:   audio.Duration(m.AudioData, protocol.DefaultSampleRate, protocol.DefaultChannels),
		AudioType:  protocol.AudioTypeEcho,
	}}
}

func (r *Router) handleGenerateStory(ctx context.Context, session *entities.Session, m protocol.GenerateStory) ([]protocol.Outbound, error) {
	res, err := r.stories.Generate(ctx, usecase.StoryRequest{
		SessionID:      session.ID,
		UserID:         session.UserID,
		ConversationID: conversationFor(session, m.ConversationID),
		Preferences:    session.Preferences,
	})
	if err != nil {
		return nil, err
	}

	out := protocol.StoryOutput{
		Title:        res.Story.Title,
		Content:      res.Story.Content,
		Emotion:      res.Story.Emotion,
		Genre:        res.Story.Genre,
		EmotionalArc: res.Story.EmotionalArc,
	}
	if res.Narration != nil {
		out.AudioData = res.Narration.Data
	}
	return []protocol.Outbound{out}, nil
}

func (r *Router) errorReply(session *entities.Session, msg protocol.Inbound, err error) protocol.Error {
	de := domain.AsError(err, domain.CodeProtocolError)
	metrics.ErrorsTotal.WithLabelValues(de.Code).Inc()

	fields := []zap.Field{
		zap.String("sessionID", session.ID),
		zap.String("messageType", string(msg.Type())),
		zap.String("kind", string(de.Kind)),
		zap.String("code", de.Code),
		zap.Error(err),
	}
	if de.Kind == domain.KindCollaborator {
		r.logger.Error("Message handling failed", fields...)
	} else {
		r.logger.Warn("Message rejected", fields...)
	}
	return protocol.NewError(de.Code, de.Message)
}

// conversationFor resolves the conversation a message addresses. Messages
// without one continue the session's current conversation.
func conversationFor(session *entities.Session, id string) string {
	if id != "" {
		session.SetCurrentConversation(id)
		return id
	}
	if current := session.CurrentConversation(); current != "" {
		return current
	}
	return session.ID
}

func turnReplies(res usecase.TurnResult) []protocol.Outbound {
	out := []protocol.Outbound{
		protocol.NewTextOutput(res.Reply, res.Emotion, res.SuggestedQuestions, res.ReadyForStory),
	}
	if res.Speech != nil {
		out = append(out, protocol.AudioOutput{
			AudioData:  res.Speech.Data,
			Format:     res.Speech.Format,
			SampleRate: res.Speech.SampleRate,
			Emotion:    res.Emotion,
			Duration:   res.Speech.Duration.Seconds(),
			AudioType:  protocol.AudioTypeDialogue,
		})
	}
	return out
}
