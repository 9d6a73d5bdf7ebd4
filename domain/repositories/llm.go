package repositories

import (
	"context"

	"github.com/jheun66/novel-mvp/server/domain/entities"
)

// DialogueAgent produces the assistant's reply for one conversation turn
type DialogueAgent interface {
	Respond(ctx context.Context, input DialogueInput) (DialogueOutput, error)
}

// EmotionAnalyzer extracts the dominant emotion of a full transcript
type EmotionAnalyzer interface {
	Analyze(ctx context.Context, input EmotionInput) (entities.Emotion, error)
}

// StoryGenerator writes a short story from a transcript and its emotion
type StoryGenerator interface {
	Generate(ctx context.Context, input StoryInput) (StoryOutput, error)
}

// DialogueInput is the request of the dialogue stage
type DialogueInput struct {
	UserText    string
	History     []entities.Turn
	Preferences entities.UserPreferences
}

// DialogueOutput is the reply of the dialogue stage
type DialogueOutput struct {
	Reply              string   `json:"reply"`
	Emotion            string   `json:"emotion,omitempty"`
	SuggestedQuestions []string `json:"suggested_questions,omitempty"`
	ReadyForStory      bool     `json:"ready_for_story"`
}

// EmotionInput is the request of the emotion analysis stage
type EmotionInput struct {
	Transcript []entities.Turn
}

// StoryInput is the request of the story generation stage
type StoryInput struct {
	Transcript  []entities.Turn
	Emotion     entities.Emotion
	Preferences entities.UserPreferences
}

// StoryOutput is the reply of the story generation stage
type StoryOutput struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	Genre        string `json:"genre"`
	EmotionalArc string `json:"emotional_arc"`
}
