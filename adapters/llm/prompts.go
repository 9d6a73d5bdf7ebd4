package llm

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/jheun66/novel-mvp/server/domain/entities"
)

var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
}

const dialoguePrompt = `You are a warm interviewer helping the user recall a moment from their day so it can become a short story.
Ask one question at a time about what happened, who was there, and how it felt.
When you have enough detail for a story (usually after three or more answers) set readyForStory to true.
Answer only with JSON:
{"reply": string, "emotion": string, "suggestedQuestions": [string], "readyForStory": boolean}`

const emotionPrompt = `Analyse the emotions the user expressed in the conversation transcript.
Answer only with JSON:
{"primary": string, "confidence": number between 0 and 1, "intensity": number between 0 and 1, "keywords": [string]}`

const storyPrompt = `Write a short story (300 to 600 words) based on the user's conversation.
Keep the user's real events and feelings, and shape them with the given emotion.
Answer only with JSON:
{"title": string, "content": string, "genre": string, "emotionalArc": string}`

func withPreferences(prompt string, prefs entities.UserPreferences) string {
	var b strings.Builder
	b.WriteString(prompt)
	if prefs.Language != "" {
		fmt.Fprintf(&b, "\nWrite every text field in the language with code %q.", prefs.Language)
	}
	if len(prefs.PreferredGenres) > 0 {
		fmt.Fprintf(&b, "\nThe user enjoys these genres: %s.", strings.Join(prefs.PreferredGenres, ", "))
	}
	return b.String()
}

func turnsToContents(turns []entities.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == entities.MessageRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return contents
}

func transcript(turns []entities.Turn) string {
	c := entities.ConversationContext{Turns: turns}
	return c.Transcript()
}
