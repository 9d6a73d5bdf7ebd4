package llm

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "plain", text: `{"reply":"hi"}`, want: "hi"},
		{name: "fenced", text: "```json\n{\"reply\":\"fenced\"}\n```", want: "fenced"},
		{name: "prose around", text: `Sure! {"reply":"inside"} Hope that helps.`, want: "inside"},
		{name: "no object", text: "I cannot help with that", wantErr: true},
		{name: "broken", text: `{"reply": }`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp dialogueResponse
			err := decodeJSON(tt.text, &resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && resp.Reply != tt.want {
				t.Errorf("Reply = %q, want %q", resp.Reply, tt.want)
			}
		})
	}
}

func TestValidateGeminiConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GeminiConfig
		wantErr bool
	}{
		{"valid", GeminiConfig{APIKey: "key"}, false},
		{"missing key", GeminiConfig{}, true},
		{"temperature too high", GeminiConfig{APIKey: "key", Temperature: 3}, true},
		{"topP out of range", GeminiConfig{APIKey: "key", TopP: 1.5}, true},
		{"negative topK", GeminiConfig{APIKey: "key", TopK: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateGeminiConfig(tt.config); (err != nil) != tt.wantErr {
				t.Errorf("ValidateGeminiConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateGeminiConfig_MissingKeyMessage(t *testing.T) {
	err := ValidateGeminiConfig(GeminiConfig{})
	if err == nil || err.Error() != "gemini api key is required" {
		t.Errorf("ValidateGeminiConfig() error = %v, want %q", err, "gemini api key is required")
	}
}

func TestGeminiConfigDefaults(t *testing.T) {
	c := GeminiConfig{APIKey: "key"}.withDefaults()
	if c.Model != defaultModel {
		t.Errorf("Model = %s, want %s", c.Model, defaultModel)
	}
	if c.MaxAttempts != defaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", c.MaxAttempts, defaultMaxAttempts)
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: `{"a":`}, {Text: `1}`}}},
		}},
	}
	if got := responseText(resp); got != `{"a":1}` {
		t.Errorf("responseText() = %q", got)
	}
	if got := responseText(&genai.GenerateContentResponse{}); got != "" {
		t.Errorf("responseText() of empty response = %q", got)
	}
}

func TestTurnsToContents(t *testing.T) {
	contents := turnsToContents([]entities.Turn{
		{Role: entities.MessageRoleUser, Text: "hello"},
		{Role: entities.MessageRoleAssistant, Text: "hi"},
	})
	if len(contents) != 2 {
		t.Fatalf("Expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[1].Role != string(genai.RoleModel) {
		t.Errorf("Unexpected roles %s, %s", contents[0].Role, contents[1].Role)
	}
}

func TestWithPreferences(t *testing.T) {
	got := withPreferences("base", entities.UserPreferences{Language: "ko", PreferredGenres: []string{"fantasy", "mystery"}})
	want := "base\nWrite every text field in the language with code \"ko\".\nThe user enjoys these genres: fantasy, mystery."
	if got != want {
		t.Errorf("withPreferences() = %q, want %q", got, want)
	}
	if withPreferences("base", entities.UserPreferences{}) != "base" {
		t.Error("Empty preferences should not change the prompt")
	}
}

func TestResponseNormalization(t *testing.T) {
	out := dialogueResponse{Reply: "  hello ", Emotion: " Joy "}.toOutput()
	if out.Reply != "hello" || out.Emotion != "joy" {
		t.Errorf("Unexpected dialogue output %+v", out)
	}

	emotion := emotionResponse{Primary: "Calm", Confidence: 1.4, Intensity: -0.2}.toEmotion()
	if emotion.Primary != "calm" || emotion.Confidence != 1 || emotion.Intensity != 0 {
		t.Errorf("Unexpected emotion %+v", emotion)
	}
}

func TestMockDialogueAgent_ReadyAfterThreeUserTurns(t *testing.T) {
	agent := NewMockDialogueAgent()
	var history []entities.Turn

	for i := 1; i <= MockTurnsForStory; i++ {
		out, err := agent.Respond(context.Background(), repositories.DialogueInput{UserText: "I had fun", History: history})
		if err != nil {
			t.Fatalf("Respond failed: %v", err)
		}
		if out.Reply == "" {
			t.Fatal("Reply should not be empty")
		}
		if out.Emotion != "joy" {
			t.Errorf("Emotion = %s, want joy", out.Emotion)
		}
		if want := i >= MockTurnsForStory; out.ReadyForStory != want {
			t.Errorf("Turn %d: ReadyForStory = %v, want %v", i, out.ReadyForStory, want)
		}
		history = append(history,
			entities.Turn{Role: entities.MessageRoleUser, Text: "I had fun"},
			entities.Turn{Role: entities.MessageRoleAssistant, Text: out.Reply})
	}
}

func TestMockStoryPipeline(t *testing.T) {
	transcript := []entities.Turn{
		{Role: entities.MessageRoleUser, Text: "I was scared of the storm"},
		{Role: entities.MessageRoleAssistant, Text: "What did you do?"},
	}

	emotion, err := NewMockEmotionAnalyzer().Analyze(context.Background(), repositories.EmotionInput{Transcript: transcript})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if emotion.Primary != "fear" {
		t.Errorf("Primary = %s, want fear", emotion.Primary)
	}

	story, err := NewMockStoryGenerator().Generate(context.Background(), repositories.StoryInput{
		Transcript:  transcript,
		Emotion:     emotion,
		Preferences: entities.UserPreferences{PreferredGenres: []string{"mystery"}},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if story.Title != "The Day of I was scared" {
		t.Errorf("Title = %q", story.Title)
	}
	if story.Genre != "mystery" || story.Content == "" {
		t.Errorf("Unexpected story %+v", story)
	}
}
