package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port           string        `env:"PORT" envDefault:"8080"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	TraceStdout    bool          `env:"TRACE_STDOUT" envDefault:"false"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`

	// Auth
	JWTSecret string `env:"JWT_SECRET,required"`
	JWTIssuer string `env:"JWT_ISSUER"`

	// Session
	Session SessionConfig

	// Collaborators
	Gemini     GeminiConfig     `envPrefix:"GEMINI_"`
	ElevenLabs ElevenLabsConfig `envPrefix:"ELEVENLABS_"`
	STT        STTConfig        `envPrefix:"STT_"`

	// Story quota
	DatabaseURL      string `env:"DATABASE_URL"`
	StoryDailyLimit  int    `env:"STORY_DAILY_LIMIT" envDefault:"3"`
	MigrateOnStartup bool   `env:"MIGRATE_ON_STARTUP" envDefault:"true"`
	MongoURI         string `env:"MONGODB_URI"`
	MongoDatabase    string `env:"MONGODB_DATABASE" envDefault:"novel"`
}

type SessionConfig struct {
	AuthTimeout         time.Duration `env:"AUTH_TIMEOUT" envDefault:"10s"`
	InboundQueueSize    int           `env:"INBOUND_QUEUE_SIZE" envDefault:"64"`
	OutboundQueueSize   int           `env:"OUTBOUND_QUEUE_SIZE" envDefault:"256"`
	CollaboratorTimeout time.Duration `env:"COLLABORATOR_TIMEOUT" envDefault:"30s"`
	MaxAudioBytes       int           `env:"MAX_AUDIO_BYTES" envDefault:"26214400"`
	StreamIdleTimeout   time.Duration `env:"STREAM_IDLE_TIMEOUT" envDefault:"2m"`
	StreamSweepInterval time.Duration `env:"STREAM_SWEEP_INTERVAL" envDefault:"30s"`
}

type GeminiConfig struct {
	APIKey      string  `env:"API_KEY"`
	Model       string  `env:"MODEL" envDefault:"gemini-2.0-flash"`
	Temperature float32 `env:"TEMPERATURE" envDefault:"0.8"`
	MaxAttempts int     `env:"MAX_ATTEMPTS" envDefault:"3"`
}

type ElevenLabsConfig struct {
	APIKey       string  `env:"API_KEY"`
	VoiceID      string  `env:"VOICE_ID"`
	ModelID      string  `env:"MODEL_ID"`
	OutputFormat string  `env:"OUTPUT_FORMAT" envDefault:"pcm_24000"`
	Stability    float64 `env:"STABILITY"`
	Clarity      float64 `env:"CLARITY"`
}

type STTConfig struct {
	// Provider is one of mock, google or whisper
	Provider      string `env:"PROVIDER" envDefault:"mock"`
	WhisperURL    string `env:"WHISPER_URL" envDefault:"http://localhost:8000/v1"`
	WhisperAPIKey string `env:"WHISPER_API_KEY"`
	WhisperModel  string `env:"WHISPER_MODEL"`
}

// Load reads a .env file when present, then the environment
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Session.InboundQueueSize <= 0 || c.Session.OutboundQueueSize <= 0 {
		return fmt.Errorf("queue sizes must be positive")
	}
	if c.Session.AuthTimeout <= 0 || c.Session.CollaboratorTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Session.MaxAudioBytes <= 0 {
		return fmt.Errorf("MAX_AUDIO_BYTES must be positive")
	}
	switch c.STT.Provider {
	case "mock", "google", "whisper":
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STT.Provider)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UseMockModels reports whether the language model adapters fall back to mocks
func (c *Config) UseMockModels() bool {
	return c.Gemini.APIKey == ""
}

// UseMockSpeech reports whether speech synthesis falls back to a mock
func (c *Config) UseMockSpeech() bool {
	return c.ElevenLabs.APIKey == ""
}
