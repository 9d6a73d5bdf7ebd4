package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/audio"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID      = "eleven_multilingual_v2"
	defaultOutputFormat = "pcm_24000"
	defaultChunkSize    = 4096
	defaultStability    = 0.5
	defaultClarity      = 0.75

	maxAudioBytes = 32 << 20
)

// ElevenLabsConfig configures the ElevenLabs adapter. Zero values select
// the defaults above; only APIKey is required.
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	ChunkSize    int
	Stability    float64
	Clarity      float64 // similarity_boost
	HTTPClient   *http.Client
}

func (c ElevenLabsConfig) withDefaults() ElevenLabsConfig {
	c.APIBaseURL = strings.TrimSuffix(c.APIBaseURL, "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.VoiceID == "" {
		c.VoiceID = defaultVoiceID
	}
	if c.ModelID == "" {
		c.ModelID = defaultModelID
	}
	if c.OutputFormat == "" {
		c.OutputFormat = defaultOutputFormat
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.Stability == 0 {
		c.Stability = defaultStability
	}
	if c.Clarity == 0 {
		c.Clarity = defaultClarity
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return c
}

// ElevenLabsTTS synthesizes replies and narration with the ElevenLabs
// streaming endpoint
type ElevenLabsTTS struct {
	cfg    ElevenLabsConfig
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type synthesisRequest struct {
	Text                   string        `json:"text"`
	ModelID                string        `json:"model_id"`
	VoiceSettings          voiceSettings `json:"voice_settings"`
	ApplyTextNormalization string        `json:"apply_text_normalization,omitempty"`
}

// emotionStyles shifts stability and style per emotion. Lower stability
// gives a livelier read.
var emotionStyles = map[string]struct {
	stabilityDelta float64
	style          float64
}{
	"joy":      {-0.15, 0.45},
	"excited":  {-0.2, 0.6},
	"sadness":  {0.15, 0.25},
	"fear":     {-0.1, 0.35},
	"anger":    {-0.1, 0.5},
	"calm":     {0.2, 0.1},
	"neutral":  {0, 0},
	"surprise": {-0.15, 0.4},
}

func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	switch {
	case config.APIKey == "":
		return fmt.Errorf("elevenlabs: api key is required")
	case config.Stability < 0 || config.Stability > 1:
		return fmt.Errorf("elevenlabs: stability %.2f outside [0,1]", config.Stability)
	case config.Clarity < 0 || config.Clarity > 1:
		return fmt.Errorf("elevenlabs: clarity %.2f outside [0,1]", config.Clarity)
	case config.ChunkSize < 0:
		return fmt.Errorf("elevenlabs: negative chunk size %d", config.ChunkSize)
	}
	if config.OutputFormat != "" {
		if _, _, err := parseOutputFormat(config.OutputFormat); err != nil {
			return err
		}
	}
	return nil
}

// NewElevenLabsTTS validates config and fills in defaults
func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	e := &ElevenLabsTTS{cfg: config.withDefaults(), logger: logger}
	logger.Info("ElevenLabs TTS configured",
		zap.String("voiceID", e.cfg.VoiceID),
		zap.String("modelID", e.cfg.ModelID),
		zap.String("outputFormat", e.cfg.OutputFormat))
	return e, nil
}

// SynthesizeSpeech streams the synthesized clip from Eleven Labs and returns it whole
func (e *ElevenLabsTTS) SynthesizeSpeech(ctx context.Context, text, emotion string) (repositories.SpeechAudio, error) {
	if strings.TrimSpace(text) == "" {
		return repositories.SpeechAudio{}, fmt.Errorf("text cannot be empty")
	}

	requestBody, err := json.Marshal(synthesisRequest{
		Text:                   text,
		ModelID:                e.cfg.ModelID,
		ApplyTextNormalization: "auto",
		VoiceSettings:          e.voiceSettings(emotion),
	})
	if err != nil {
		return repositories.SpeechAudio{}, fmt.Errorf("encode synthesis request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.cfg.APIBaseURL, e.cfg.VoiceID, e.cfg.OutputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return repositories.SpeechAudio{}, fmt.Errorf("build synthesis request: %w", err)
	}

	accept := "audio/mpeg"
	if strings.HasPrefix(e.cfg.OutputFormat, "pcm") {
		accept = "audio/pcm"
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return repositories.SpeechAudio{}, fmt.Errorf("call elevenlabs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return repositories.SpeechAudio{}, fmt.Errorf("elevenlabs returned %d: %s", resp.StatusCode, msg)
	}

	data, chunks, err := e.readBody(resp.Body)
	if err != nil {
		return repositories.SpeechAudio{}, err
	}

	format, sampleRate, _ := parseOutputFormat(e.cfg.OutputFormat)
	clip := repositories.SpeechAudio{Data: data, Format: format, SampleRate: sampleRate}
	if format == "pcm16" {
		clip.Duration = time.Duration(audio.Duration(data, sampleRate, 1) * float64(time.Second))
	}

	e.logger.Debug("Speech synthesized",
		zap.Int("chunks", chunks),
		zap.Int("bytes", len(data)),
		zap.String("emotion", emotion))
	return clip, nil
}

func (e *ElevenLabsTTS) readBody(body io.Reader) ([]byte, int, error) {
	var out bytes.Buffer
	buf := make([]byte, e.cfg.ChunkSize)
	chunks := 0
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunks++
			if out.Len()+n > maxAudioBytes {
				return nil, chunks, fmt.Errorf("synthesized audio exceeds %d bytes", maxAudioBytes)
			}
			out.Write(buf[:n])
		}
		switch {
		case errors.Is(err, io.EOF):
			return out.Bytes(), chunks, nil
		case err != nil:
			return nil, chunks, fmt.Errorf("read synthesized audio: %w", err)
		}
	}
}

func (e *ElevenLabsTTS) voiceSettings(emotion string) voiceSettings {
	settings := voiceSettings{
		Stability:       e.cfg.Stability,
		SimilarityBoost: e.cfg.Clarity,
		UseSpeakerBoost: true,
	}
	if s, ok := emotionStyles[strings.ToLower(emotion)]; ok {
		settings.Stability = clamp(e.cfg.Stability+s.stabilityDelta, 0, 1)
		settings.Style = s.style
	}
	return settings
}

// parseOutputFormat maps an Eleven Labs output format such as pcm_24000 or
// mp3_44100_128 to a protocol format name and sample rate
func parseOutputFormat(format string) (string, int, error) {
	parts := strings.Split(format, "_")
	if len(parts) < 2 {
		return "", 0, fmt.Errorf("unsupported output format: %s", format)
	}
	rate, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("unsupported output format: %s", format)
	}
	switch parts[0] {
	case "pcm":
		return "pcm16", rate, nil
	case "mp3", "opus", "ulaw":
		return parts[0], rate, nil
	default:
		return "", 0, fmt.Errorf("unsupported output format: %s", format)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
