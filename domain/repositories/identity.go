package repositories

import (
	"context"

	"github.com/jheun66/novel-mvp/server/domain/entities"
)

// Identity is the result of verifying a bearer credential
type Identity struct {
	UserID      string
	Preferences entities.UserPreferences
}

// IdentityVerifier resolves a bearer token to a user
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// StoryQuota decides whether a user may request another story
type StoryQuota interface {
	CanGenerateStory(ctx context.Context, userID string) (bool, error)
	RecordStory(ctx context.Context, story entities.Story) error
}
