package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
)

// DefaultWindow is the period a story limit applies to
const DefaultWindow = 24 * time.Hour

// DB is the subset of pgxpool.Pool the quota needs
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StoryQuota counts stories per user in a rolling window
type StoryQuota struct {
	db     DB
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ repositories.StoryQuota = (*StoryQuota)(nil)

// NewStoryQuota creates a quota allowing limit stories per window.
// A limit <= 0 disables the check but stories are still recorded.
func NewStoryQuota(db DB, limit int) *StoryQuota {
	return &StoryQuota{db: db, limit: limit, window: DefaultWindow, now: time.Now}
}

const countRecentStories = `
SELECT COUNT(*) FROM stories
WHERE user_id = $1 AND created_at > $2`

func (q *StoryQuota) CanGenerateStory(ctx context.Context, userID string) (bool, error) {
	if q.limit <= 0 {
		return true, nil
	}

	var count int
	since := q.now().Add(-q.window)
	if err := q.db.QueryRow(ctx, countRecentStories, userID, since).Scan(&count); err != nil {
		return false, fmt.Errorf("count stories: %w", err)
	}
	return count < q.limit, nil
}

const insertStory = `
INSERT INTO stories (id, user_id, title, content, genre, emotion, emotional_arc, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (q *StoryQuota) RecordStory(ctx context.Context, story entities.Story) error {
	if story.ID == "" || story.UserID == "" {
		return errors.New("story id and user id are required")
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = q.now()
	}

	_, err := q.db.Exec(ctx, insertStory,
		story.ID, story.UserID, story.Title, story.Content,
		story.Genre, story.Emotion, story.EmotionalArc, story.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	return nil
}

const selectRecentStories = `
SELECT id, user_id, title, content, genre, emotion, emotional_arc, created_at
FROM stories
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`

// Recent returns the latest stories of a user, newest first
func (q *StoryQuota) Recent(ctx context.Context, userID string, limit int) ([]entities.Story, error) {
	rows, err := q.db.Query(ctx, selectRecentStories, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer rows.Close()

	var stories []entities.Story
	for rows.Next() {
		var s entities.Story
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.Content,
			&s.Genre, &s.Emotion, &s.EmotionalArc, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}
