package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/jheun66/novel-mvp/server/domain/repositories"
)

func TestNewElevenLabsTTS(t *testing.T) {
	logger := zaptest.NewLogger(t)

	if _, err := NewElevenLabsTTS(ElevenLabsConfig{}, logger); err == nil {
		t.Error("Expected error when API key is not set")
	}

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "test-api-key"}, logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}
	if tts.cfg.APIKey != "test-api-key" {
		t.Errorf("Expected API key 'test-api-key', got '%s'", tts.cfg.APIKey)
	}
	if tts.cfg.VoiceID != defaultVoiceID {
		t.Errorf("Expected default voice ID '%s', got '%s'", defaultVoiceID, tts.cfg.VoiceID)
	}
	if tts.cfg.OutputFormat != defaultOutputFormat {
		t.Errorf("Expected default output format '%s', got '%s'", defaultOutputFormat, tts.cfg.OutputFormat)
	}
}

func TestValidateElevenLabsConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ElevenLabsConfig
		wantErr bool
	}{
		{"valid", ElevenLabsConfig{APIKey: "k"}, false},
		{"stability out of range", ElevenLabsConfig{APIKey: "k", Stability: 1.5}, true},
		{"clarity out of range", ElevenLabsConfig{APIKey: "k", Clarity: -0.5}, true},
		{"negative chunk size", ElevenLabsConfig{APIKey: "k", ChunkSize: -1}, true},
		{"unknown output format", ElevenLabsConfig{APIKey: "k", OutputFormat: "flac"}, true},
		{"mp3 output format", ElevenLabsConfig{APIKey: "k", OutputFormat: "mp3_44100_128"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateElevenLabsConfig(tt.config); (err != nil) != tt.wantErr {
				t.Errorf("ValidateElevenLabsConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestElevenLabsTTS_SynthesizeSpeech(t *testing.T) {
	pcm := make([]byte, 48000) // one second at 24kHz

	var got synthesisRequest
	var gotPath, gotKey, gotAccept, gotFormat string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotAccept = r.Header.Get("Accept")
		gotFormat = r.URL.Query().Get("output_format")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write(pcm)
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{
		APIKey:     "secret",
		APIBaseURL: server.URL,
		VoiceID:    "voice-1",
		ChunkSize:  1000,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	clip, err := tts.SynthesizeSpeech(context.Background(), "안녕하세요", "joy")
	if err != nil {
		t.Fatalf("SynthesizeSpeech failed: %v", err)
	}

	if gotPath != "/text-to-speech/voice-1/stream" {
		t.Errorf("Unexpected path %s", gotPath)
	}
	if gotKey != "secret" || gotAccept != "audio/pcm" || gotFormat != "pcm_24000" {
		t.Errorf("Unexpected headers key=%s accept=%s format=%s", gotKey, gotAccept, gotFormat)
	}
	if got.Text != "안녕하세요" || got.ModelID != defaultModelID {
		t.Errorf("Unexpected request %+v", got)
	}
	if got.VoiceSettings.Stability >= defaultStability {
		t.Errorf("Joy should lower stability, got %f", got.VoiceSettings.Stability)
	}
	if len(clip.Data) != len(pcm) {
		t.Errorf("Expected %d bytes, got %d", len(pcm), len(clip.Data))
	}
	if clip.Format != "pcm16" || clip.SampleRate != 24000 {
		t.Errorf("Unexpected clip format %s/%d", clip.Format, clip.SampleRate)
	}
	if clip.Duration != time.Second {
		t.Errorf("Expected 1s duration, got %s", clip.Duration)
	}
}

func TestElevenLabsTTS_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota_exceeded"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "k", APIBaseURL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	if _, err := tts.SynthesizeSpeech(context.Background(), "hello", ""); err == nil {
		t.Error("Expected error for non-200 response")
	}
	if _, err := tts.SynthesizeSpeech(context.Background(), "  ", ""); err == nil {
		t.Error("Expected error for empty text")
	}
}

func TestElevenLabsTTS_VoiceSettings(t *testing.T) {
	tts, err := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "k", Stability: 0.95}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabsTTS: %v", err)
	}

	calm := tts.voiceSettings("Calm")
	if calm.Stability != 1 {
		t.Errorf("Stability should be clamped to 1, got %f", calm.Stability)
	}

	unknown := tts.voiceSettings("nostalgic")
	if unknown.Stability != 0.95 || unknown.Style != 0 {
		t.Errorf("Unknown emotion should keep base settings, got %+v", unknown)
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in       string
		format   string
		rate     int
		hasError bool
	}{
		{"pcm_24000", "pcm16", 24000, false},
		{"mp3_44100_128", "mp3", 44100, false},
		{"pcm", "", 0, true},
		{"wav_x", "", 0, true},
	}

	for _, tt := range tests {
		format, rate, err := parseOutputFormat(tt.in)
		if (err != nil) != tt.hasError || format != tt.format || rate != tt.rate {
			t.Errorf("parseOutputFormat(%q) = %q, %d, %v", tt.in, format, rate, err)
		}
	}
}

func TestMockTextToSpeech(t *testing.T) {
	var _ repositories.TextToSpeech = NewMockTextToSpeech()

	clip, err := NewMockTextToSpeech().SynthesizeSpeech(context.Background(), "hello", "joy")
	if err != nil {
		t.Fatalf("SynthesizeSpeech failed: %v", err)
	}
	if clip.Duration != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %s", clip.Duration)
	}
	if len(clip.Data) != 5*mockSampleRate/20*2 {
		t.Errorf("Unexpected data length %d", len(clip.Data))
	}
}
