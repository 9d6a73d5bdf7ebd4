package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain"
	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/conversation"
	"github.com/jheun66/novel-mvp/server/internal/metrics"
	"github.com/jheun66/novel-mvp/server/internal/pipeline"
)

// StoryRequest asks for the story of a conversation
type StoryRequest struct {
	SessionID      string
	UserID         string
	ConversationID string
	Preferences    entities.UserPreferences
}

// StoryResult is a delivered story and its optional narration
type StoryResult struct {
	Story   entities.Story
	Emotion entities.Emotion
	// Narration is nil when synthesis failed
	Narration *repositories.SpeechAudio
}

// StoryService turns a ready conversation into a story
type StoryService struct {
	store        conversation.Store
	pipeline     *pipeline.Pipeline
	quota        repositories.StoryQuota
	quotaTimeout time.Duration
	users        *userLocks
	logger       *zap.Logger
}

// NewStoryService creates a new story service
func NewStoryService(
	store conversation.Store,
	p *pipeline.Pipeline,
	quota repositories.StoryQuota,
	quotaTimeout time.Duration,
	logger *zap.Logger,
) *StoryService {
	if quotaTimeout <= 0 {
		quotaTimeout = pipeline.DefaultTimeout
	}
	return &StoryService{
		store:        store,
		pipeline:     p,
		quota:        quota,
		quotaTimeout: quotaTimeout,
		users:        newUserLocks(),
		logger:       logger,
	}
}

// Generate checks readiness and quota, runs emotion analysis and story
// generation, and removes the context once the story exists. Any failure
// before that leaves the context as it was. Runs for the same user are
// serialized from the quota check to the record so the limit holds across
// sessions.
func (s *StoryService) Generate(ctx context.Context, req StoryRequest) (StoryResult, error) {
	snap, err := s.store.Snapshot(req.ConversationID)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return StoryResult{}, domain.NewDomainError(domain.CodeConversationNotFound,
				"conversation not found", err)
		}
		return StoryResult{}, err
	}
	if snap.SessionID != req.SessionID {
		return StoryResult{}, forbidden()
	}
	if !snap.ReadyForStory {
		return StoryResult{}, domain.NewDomainError(domain.CodeNotReady,
			"keep talking a little more before asking for a story", domain.ErrNotReadyForStory)
	}

	release, err := s.users.acquire(ctx, req.UserID)
	if err != nil {
		return StoryResult{}, domain.NewCollaboratorError(domain.CodeQuotaUnavailable, "story quota unavailable", err)
	}
	defer release()

	if err := s.checkQuota(ctx, req.UserID); err != nil {
		return StoryResult{}, err
	}

	res, err := s.pipeline.Story(ctx, pipeline.StoryRequest{
		Transcript:  snap.Turns,
		Preferences: req.Preferences,
	})
	if err != nil {
		return StoryResult{}, err
	}

	story := entities.Story{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		Title:        res.Story.Title,
		Content:      res.Story.Content,
		Genre:        res.Story.Genre,
		Emotion:      res.Emotion.Primary,
		EmotionalArc: res.Story.EmotionalArc,
		CreatedAt:    time.Now(),
	}

	result := StoryResult{Story: story, Emotion: res.Emotion}
	narration, err := s.pipeline.Synthesize(ctx, story.Content, story.Emotion)
	if err != nil {
		s.logger.Warn("Story narration failed, sending text only",
			zap.String("storyID", story.ID),
			zap.Error(err))
	} else {
		result.Narration = &narration
	}

	s.record(ctx, story)

	s.store.Remove(req.ConversationID)
	metrics.ConversationsActive.Set(float64(s.store.Len()))
	metrics.StoriesGenerated.Inc()

	s.logger.Info("Story generated",
		zap.String("sessionID", req.SessionID),
		zap.String("conversationID", req.ConversationID),
		zap.String("storyID", story.ID),
		zap.String("emotion", story.Emotion),
		zap.Int("turns", len(snap.Turns)))

	return result, nil
}

func (s *StoryService) checkQuota(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.quotaTimeout)
	defer cancel()

	ok, err := s.quota.CanGenerateStory(ctx, userID)
	if err != nil {
		return domain.NewCollaboratorError(domain.CodeQuotaUnavailable, "story quota unavailable", err)
	}
	if !ok {
		return domain.NewDomainError(domain.CodeStoryLimitExceeded,
			"story limit reached, try again tomorrow", domain.ErrStoryLimitExceeded)
	}
	return nil
}

func (s *StoryService) record(ctx context.Context, story entities.Story) {
	ctx, cancel := context.WithTimeout(ctx, s.quotaTimeout)
	defer cancel()

	if err := s.quota.RecordStory(ctx, story); err != nil {
		s.logger.Error("Failed to record story",
			zap.String("storyID", story.ID),
			zap.String("userID", story.UserID),
			zap.Error(err))
	}
}
