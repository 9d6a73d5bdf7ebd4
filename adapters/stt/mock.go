package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/audio"
)

// MockSpeechToText is a placeholder implementation for speech recognition
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

// TranscribeAudio returns a fixed sentence describing the audio it received
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	s.logger.Info("Mock transcription",
		zap.Int("bytes", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.Float64("level", audio.Level(audioData)))

	return fmt.Sprintf("I recorded %d bytes of audio today", len(audioData)), nil
}
