package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jheun66/novel-mvp/server/domain/entities"
)

// QuotaWindow is the period a story limit applies to
const QuotaWindow = 24 * time.Hour

// MemoryStoryQuota is an in-memory StoryQuota used when no database is configured
type MemoryStoryQuota struct {
	mu      sync.Mutex
	limit   int
	stories map[string][]entities.Story // user_id -> full history in creation order
	now     func() time.Time
}

// NewMemoryStoryQuota creates a quota allowing limit stories per user per day.
// A limit <= 0 disables the check.
func NewMemoryStoryQuota(limit int) *MemoryStoryQuota {
	return &MemoryStoryQuota{
		limit:   limit,
		stories: make(map[string][]entities.Story),
		now:     time.Now,
	}
}

// CanGenerateStory implements StoryQuota interface
func (m *MemoryStoryQuota) CanGenerateStory(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.limit <= 0 {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.countSince(userID, m.now().Add(-QuotaWindow)) < m.limit, nil
}

// RecordStory implements StoryQuota interface
func (m *MemoryStoryQuota) RecordStory(ctx context.Context, story entities.Story) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if story.UserID == "" {
		return errors.New("story user id is required")
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stories[story.UserID] = append(m.stories[story.UserID], story)
	return nil
}

// Stories returns every story recorded for userID in creation order
func (m *MemoryStoryQuota) Stories(userID string) []entities.Story {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]entities.Story, len(m.stories[userID]))
	copy(out, m.stories[userID])
	return out
}

func (m *MemoryStoryQuota) countSince(userID string, cutoff time.Time) int {
	n := 0
	for _, s := range m.stories[userID] {
		if s.CreatedAt.After(cutoff) {
			n++
		}
	}
	return n
}

// Recent returns up to limit stories of userID, newest first
func (m *MemoryStoryQuota) Recent(ctx context.Context, userID string, limit int) ([]entities.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stories := m.Stories(userID)
	out := make([]entities.Story, 0, len(stories))
	for i := len(stories) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, stories[i])
	}
	return out, nil
}
