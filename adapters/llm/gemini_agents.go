package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
)

// GeminiDialogueAgent implements repositories.DialogueAgent
type GeminiDialogueAgent struct {
	client *GeminiClient
}

// NewGeminiDialogueAgent creates a dialogue agent
func NewGeminiDialogueAgent(client *GeminiClient) *GeminiDialogueAgent {
	return &GeminiDialogueAgent{client: client}
}

type dialogueResponse struct {
	Reply              string   `json:"reply"`
	Emotion            string   `json:"emotion"`
	SuggestedQuestions []string `json:"suggestedQuestions"`
	ReadyForStory      bool     `json:"readyForStory"`
}

func (a *GeminiDialogueAgent) Respond(ctx context.Context, input repositories.DialogueInput) (repositories.DialogueOutput, error) {
	contents := turnsToContents(input.History)
	contents = append(contents, genai.NewContentFromText(input.UserText, genai.RoleUser))

	var resp dialogueResponse
	if err := a.client.generateJSON(ctx, withPreferences(dialoguePrompt, input.Preferences), contents, &resp); err != nil {
		return repositories.DialogueOutput{}, err
	}
	return resp.toOutput(), nil
}

func (r dialogueResponse) toOutput() repositories.DialogueOutput {
	return repositories.DialogueOutput{
		Reply:              strings.TrimSpace(r.Reply),
		Emotion:            strings.ToLower(strings.TrimSpace(r.Emotion)),
		SuggestedQuestions: r.SuggestedQuestions,
		ReadyForStory:      r.ReadyForStory,
	}
}

// GeminiEmotionAnalyzer implements repositories.EmotionAnalyzer
type GeminiEmotionAnalyzer struct {
	client *GeminiClient
}

// NewGeminiEmotionAnalyzer creates an emotion analyzer
func NewGeminiEmotionAnalyzer(client *GeminiClient) *GeminiEmotionAnalyzer {
	return &GeminiEmotionAnalyzer{client: client}
}

type emotionResponse struct {
	Primary    string   `json:"primary"`
	Confidence float64  `json:"confidence"`
	Intensity  float64  `json:"intensity"`
	Keywords   []string `json:"keywords"`
}

func (a *GeminiEmotionAnalyzer) Analyze(ctx context.Context, input repositories.EmotionInput) (entities.Emotion, error) {
	contents := []*genai.Content{
		genai.NewContentFromText("Transcript:\n"+transcript(input.Transcript), genai.RoleUser),
	}

	var resp emotionResponse
	if err := a.client.generateJSON(ctx, emotionPrompt, contents, &resp); err != nil {
		return entities.Emotion{}, err
	}
	return resp.toEmotion(), nil
}

func (r emotionResponse) toEmotion() entities.Emotion {
	return entities.Emotion{
		Primary:    strings.ToLower(strings.TrimSpace(r.Primary)),
		Confidence: clamp01(r.Confidence),
		Intensity:  clamp01(r.Intensity),
		Keywords:   r.Keywords,
	}
}

// GeminiStoryGenerator implements repositories.StoryGenerator
type GeminiStoryGenerator struct {
	client *GeminiClient
}

// NewGeminiStoryGenerator creates a story generator
func NewGeminiStoryGenerator(client *GeminiClient) *GeminiStoryGenerator {
	return &GeminiStoryGenerator{client: client}
}

type storyResponse struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	Genre        string `json:"genre"`
	EmotionalArc string `json:"emotionalArc"`
}

func (g *GeminiStoryGenerator) Generate(ctx context.Context, input repositories.StoryInput) (repositories.StoryOutput, error) {
	prompt := fmt.Sprintf("Emotion: %s (confidence %.2f, intensity %.2f)\nKeywords: %s\n\nTranscript:\n%s",
		input.Emotion.Primary,
		input.Emotion.Confidence,
		input.Emotion.Intensity,
		strings.Join(input.Emotion.Keywords, ", "),
		transcript(input.Transcript))
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	var resp storyResponse
	if err := g.client.generateJSON(ctx, withPreferences(storyPrompt, input.Preferences), contents, &resp); err != nil {
		return repositories.StoryOutput{}, err
	}
	return repositories.StoryOutput{
		Title:        strings.TrimSpace(resp.Title),
		Content:      strings.TrimSpace(resp.Content),
		Genre:        strings.TrimSpace(resp.Genre),
		EmotionalArc: strings.TrimSpace(resp.EmotionalArc),
	}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
