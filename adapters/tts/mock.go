package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jheun66/novel-mvp/server/domain/repositories"
)

const mockSampleRate = 16000

// MockTextToSpeech returns silence sized to the text, 50ms per character
type MockTextToSpeech struct{}

// NewMockTextToSpeech creates a mock synthesizer
func NewMockTextToSpeech() *MockTextToSpeech {
	return &MockTextToSpeech{}
}

func (m *MockTextToSpeech) SynthesizeSpeech(ctx context.Context, text, emotion string) (repositories.SpeechAudio, error) {
	if err := ctx.Err(); err != nil {
		return repositories.SpeechAudio{}, err
	}
	if strings.TrimSpace(text) == "" {
		return repositories.SpeechAudio{}, fmt.Errorf("text cannot be empty")
	}

	chars := len([]rune(text))
	samples := chars * mockSampleRate / 20
	return repositories.SpeechAudio{
		Data:       make([]byte, samples*2),
		Format:     "pcm16",
		SampleRate: mockSampleRate,
		Duration:   time.Duration(chars) * 50 * time.Millisecond,
	}, nil
}
