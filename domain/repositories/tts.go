package repositories

import (
	"context"
	"time"
)

// TextToSpeech abstracts speech synthesis services
type TextToSpeech interface {
	// SynthesizeSpeech renders text as audio, colouring the voice with emotion
	SynthesizeSpeech(ctx context.Context, text, emotion string) (SpeechAudio, error)
}

// SpeechAudio is a synthesized clip
type SpeechAudio struct {
	Data       []byte
	Format     string
	SampleRate int
	Duration   time.Duration
}
