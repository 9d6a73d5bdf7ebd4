package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.Session.AuthTimeout)
	assert.Equal(t, 64, cfg.Session.InboundQueueSize)
	assert.Equal(t, 256, cfg.Session.OutboundQueueSize)
	assert.Equal(t, 30*time.Second, cfg.Session.CollaboratorTimeout)
	assert.Equal(t, 25<<20, cfg.Session.MaxAudioBytes)
	assert.Equal(t, 3, cfg.StoryDailyLimit)
	assert.Equal(t, "novel", cfg.MongoDatabase)
	assert.Empty(t, cfg.MongoURI)
	assert.Equal(t, "mock", cfg.STT.Provider)
	assert.Equal(t, "pcm_24000", cfg.ElevenLabs.OutputFormat)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.UseMockModels())
	assert.True(t, cfg.UseMockSpeech())
	assert.False(t, cfg.IsProduction())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("GEMINI_API_KEY", "")
	os.Unsetenv("GEMINI_API_KEY")
	t.Setenv("INBOUND_QUEUE_SIZE", "")
	os.Unsetenv("INBOUND_QUEUE_SIZE")

	path := filepath.Join(t.TempDir(), ".env")
	content := "GEMINI_API_KEY=abc\nINBOUND_QUEUE_SIZE=8\nJWT_SECRET=from-file\nSTT_PROVIDER=whisper\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("GEMINI_API_KEY")
		os.Unsetenv("INBOUND_QUEUE_SIZE")
		os.Unsetenv("STT_PROVIDER")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Gemini.APIKey)
	assert.Equal(t, 8, cfg.Session.InboundQueueSize)
	assert.Equal(t, "whisper", cfg.STT.Provider)
	// existing environment wins over the file
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.False(t, cfg.UseMockModels())
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")

	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero inbound queue", "INBOUND_QUEUE_SIZE", "0"},
		{"negative timeout", "COLLABORATOR_TIMEOUT", "-1s"},
		{"unknown stt provider", "STT_PROVIDER", "vosk"},
		{"zero audio cap", "MAX_AUDIO_BYTES", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
