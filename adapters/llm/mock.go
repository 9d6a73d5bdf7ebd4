package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
)

// MockTurnsForStory is how many user turns the mock dialogue needs before a story
const MockTurnsForStory = 3

// MockDialogueAgent is a deterministic DialogueAgent for development and tests
type MockDialogueAgent struct{}

// NewMockDialogueAgent creates a mock dialogue agent
func NewMockDialogueAgent() *MockDialogueAgent {
	return &MockDialogueAgent{}
}

func (m *MockDialogueAgent) Respond(ctx context.Context, input repositories.DialogueInput) (repositories.DialogueOutput, error) {
	if err := ctx.Err(); err != nil {
		return repositories.DialogueOutput{}, err
	}

	userTurns := 1
	for _, t := range input.History {
		if t.Role == entities.MessageRoleUser {
			userTurns++
		}
	}
	ready := userTurns >= MockTurnsForStory

	reply := fmt.Sprintf("Thanks for sharing '%s'. What happened next?", input.UserText)
	if ready {
		reply = fmt.Sprintf("'%s' sounds memorable. I have enough to write your story whenever you like.", input.UserText)
	}

	return repositories.DialogueOutput{
		Reply:   reply,
		Emotion: keywordEmotion(input.UserText),
		SuggestedQuestions: []string{
			"Who was with you?",
			"How did it make you feel?",
		},
		ReadyForStory: ready,
	}, nil
}

// MockEmotionAnalyzer picks an emotion from simple keywords
type MockEmotionAnalyzer struct{}

// NewMockEmotionAnalyzer creates a mock emotion analyzer
func NewMockEmotionAnalyzer() *MockEmotionAnalyzer {
	return &MockEmotionAnalyzer{}
}

func (m *MockEmotionAnalyzer) Analyze(ctx context.Context, input repositories.EmotionInput) (entities.Emotion, error) {
	if err := ctx.Err(); err != nil {
		return entities.Emotion{}, err
	}

	var words []string
	for _, t := range input.Transcript {
		if t.Role == entities.MessageRoleUser {
			words = append(words, t.Text)
		}
	}
	text := strings.Join(words, " ")

	return entities.Emotion{
		Primary:    keywordEmotion(text),
		Confidence: 0.7,
		Intensity:  0.5,
		Keywords:   firstWords(text, 5),
	}, nil
}

// MockStoryGenerator writes a template story from the transcript
type MockStoryGenerator struct{}

// NewMockStoryGenerator creates a mock story generator
func NewMockStoryGenerator() *MockStoryGenerator {
	return &MockStoryGenerator{}
}

func (m *MockStoryGenerator) Generate(ctx context.Context, input repositories.StoryInput) (repositories.StoryOutput, error) {
	if err := ctx.Err(); err != nil {
		return repositories.StoryOutput{}, err
	}

	var b strings.Builder
	title := "A Quiet Day"
	for _, t := range input.Transcript {
		if t.Role != entities.MessageRoleUser {
			continue
		}
		if title == "A Quiet Day" {
			title = "The Day of " + strings.Join(firstWords(t.Text, 3), " ")
		}
		b.WriteString(t.Text)
		b.WriteString(" ")
	}
	b.WriteString("And that is how the day was remembered.")

	genre := "slice of life"
	if len(input.Preferences.PreferredGenres) > 0 {
		genre = input.Preferences.PreferredGenres[0]
	}

	return repositories.StoryOutput{
		Title:        title,
		Content:      b.String(),
		Genre:        genre,
		EmotionalArc: "calm to " + input.Emotion.Primary,
	}, nil
}

var emotionKeywords = map[string][]string{
	"joy":     {"happy", "fun", "great", "love", "glad", "excited"},
	"sadness": {"sad", "lonely", "miss", "cry", "tired"},
	"anger":   {"angry", "mad", "annoyed", "unfair"},
	"fear":    {"scared", "afraid", "worried", "nervous"},
}

func keywordEmotion(text string) string {
	lower := strings.ToLower(text)
	for _, emotion := range []string{"joy", "sadness", "anger", "fear"} {
		for _, kw := range emotionKeywords[emotion] {
			if strings.Contains(lower, kw) {
				return emotion
			}
		}
	}
	return "neutral"
}

func firstWords(text string, n int) []string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return words
}
