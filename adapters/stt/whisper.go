package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/audio"
)

// WhisperConfig points at an OpenAI compatible transcription endpoint
type WhisperConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// WhisperSpeechToText implements SpeechToText against a Whisper server
type WhisperSpeechToText struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewWhisperSpeechToText creates a Whisper transcriber
func NewWhisperSpeechToText(config WhisperConfig, logger *zap.Logger) (*WhisperSpeechToText, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("whisper base URL is required")
	}
	if config.Model == "" {
		config.Model = openai.Whisper1
	}

	openaiCfg := openai.DefaultConfig(config.APIKey)
	openaiCfg.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	return &WhisperSpeechToText{
		client: openai.NewClientWithConfig(openaiCfg),
		model:  config.Model,
		logger: logger,
	}, nil
}

// TranscribeAudio uploads the audio as a file. Raw PCM is wrapped in a WAV
// header first since the server decodes by container.
func (w *WhisperSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	data, name := uploadFile(audioData, config)

	lang := config.Language
	if lang == "" {
		lang = DefaultLanguage
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: name,
		Reader:   bytes.NewReader(data),
		Language: lang,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}

	w.logger.Debug("Whisper transcription completed",
		zap.Int("bytes", len(data)),
		zap.String("language", resp.Language))
	return strings.TrimSpace(resp.Text), nil
}

func uploadFile(audioData []byte, config repositories.AudioConfig) ([]byte, string) {
	switch strings.ToLower(config.Encoding) {
	case "", "pcm16", "pcm", "linear16":
		if audio.IsWAV(audioData) {
			return audioData, "audio.wav"
		}
		sampleRate := config.SampleRate
		if sampleRate <= 0 {
			sampleRate = 16000
		}
		channels := config.Channels
		if channels <= 0 {
			channels = 1
		}
		return audio.WrapWAV(audioData, sampleRate, channels), "audio.wav"
	case "webm", "webm_opus":
		return audioData, "audio.webm"
	case "opus", "ogg_opus":
		return audioData, "audio.ogg"
	default:
		return audioData, "audio." + strings.ToLower(config.Encoding)
	}
}
