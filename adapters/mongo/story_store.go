package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
)

// StoriesCollection holds one document per generated story
const StoriesCollection = "stories"

// DefaultWindow is the period a story limit applies to
const DefaultWindow = 24 * time.Hour

type storyDocument struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	Title        string    `bson:"title"`
	Content      string    `bson:"content"`
	Genre        string    `bson:"genre"`
	Emotion      string    `bson:"emotion"`
	EmotionalArc string    `bson:"emotional_arc"`
	CreatedAt    time.Time `bson:"created_at"`
}

// StoryStore keeps the story ledger in MongoDB and enforces the daily limit
type StoryStore struct {
	collection *mongo.Collection
	limit      int
	window     time.Duration
	now        func() time.Time
}

var _ repositories.StoryQuota = (*StoryStore)(nil)

// NewStoryStore creates a store over db allowing limit stories per window.
// A limit <= 0 disables the check.
func NewStoryStore(db *mongo.Database, limit int) *StoryStore {
	return &StoryStore{
		collection: db.Collection(StoriesCollection),
		limit:      limit,
		window:     DefaultWindow,
		now:        time.Now,
	}
}

// EnsureIndexes creates the (user_id, created_at) index the queries rely on
func (s *StoryStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create stories index: %w", err)
	}
	return nil
}

func (s *StoryStore) CanGenerateStory(ctx context.Context, userID string) (bool, error) {
	if s.limit <= 0 {
		return true, nil
	}

	filter := bson.M{
		"user_id":    userID,
		"created_at": bson.M{"$gt": s.now().Add(-s.window)},
	}
	count, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("count stories: %w", err)
	}
	return count < int64(s.limit), nil
}

func (s *StoryStore) RecordStory(ctx context.Context, story entities.Story) error {
	if story.ID == "" || story.UserID == "" {
		return errors.New("story id and user id are required")
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = s.now()
	}

	_, err := s.collection.InsertOne(ctx, storyDocument{
		ID:           story.ID,
		UserID:       story.UserID,
		Title:        story.Title,
		Content:      story.Content,
		Genre:        story.Genre,
		Emotion:      story.Emotion,
		EmotionalArc: story.EmotionalArc,
		CreatedAt:    story.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	return nil
}

// Recent returns the latest stories of a user, newest first
func (s *StoryStore) Recent(ctx context.Context, userID string, limit int) ([]entities.Story, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find stories: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []storyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode stories: %w", err)
	}

	stories := make([]entities.Story, 0, len(docs))
	for _, d := range docs {
		stories = append(stories, entities.Story{
			ID:           d.ID,
			UserID:       d.UserID,
			Title:        d.Title,
			Content:      d.Content,
			Genre:        d.Genre,
			Emotion:      d.Emotion,
			EmotionalArc: d.EmotionalArc,
			CreatedAt:    d.CreatedAt,
		})
	}
	return stories, nil
}
