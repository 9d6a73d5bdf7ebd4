package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jheun66/novel-mvp/server/adapters"
	"github.com/jheun66/novel-mvp/server/adapters/llm"
	"github.com/jheun66/novel-mvp/server/adapters/mongo"
	"github.com/jheun66/novel-mvp/server/adapters/postgres"
	"github.com/jheun66/novel-mvp/server/adapters/stt"
	"github.com/jheun66/novel-mvp/server/adapters/tts"
	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/config"
	"github.com/jheun66/novel-mvp/server/internal/pipeline"
)

// quotaStore is a story quota that can also list history
type quotaStore interface {
	repositories.StoryQuota
	Recent(ctx context.Context, userID string, limit int) ([]entities.Story, error)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	zc := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func setupTracing(cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.TraceStdout {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func buildCollaborators(ctx context.Context, cfg *config.Config, logger *zap.Logger) (pipeline.Collaborators, func(), error) {
	var c pipeline.Collaborators
	closers := []func(){}
	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}

	if cfg.UseMockModels() {
		logger.Warn("GEMINI_API_KEY not set, using mock language models")
		c.Dialogue = llm.NewMockDialogueAgent()
		c.Emotion = llm.NewMockEmotionAnalyzer()
		c.Story = llm.NewMockStoryGenerator()
	} else {
		client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			Temperature: cfg.Gemini.Temperature,
			MaxAttempts: cfg.Gemini.MaxAttempts,
		}, logger)
		if err != nil {
			return c, closeAll, fmt.Errorf("gemini: %w", err)
		}
		c.Dialogue = llm.NewGeminiDialogueAgent(client)
		c.Emotion = llm.NewGeminiEmotionAnalyzer(client)
		c.Story = llm.NewGeminiStoryGenerator(client)
	}

	switch cfg.STT.Provider {
	case "google":
		google, err := stt.NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			return c, closeAll, fmt.Errorf("google speech: %w", err)
		}
		closers = append(closers, func() { _ = google.Close() })
		c.STT = google
	case "whisper":
		whisper, err := stt.NewWhisperSpeechToText(stt.WhisperConfig{
			BaseURL: cfg.STT.WhisperURL,
			APIKey:  cfg.STT.WhisperAPIKey,
			Model:   cfg.STT.WhisperModel,
		}, logger)
		if err != nil {
			return c, closeAll, fmt.Errorf("whisper: %w", err)
		}
		c.STT = whisper
	default:
		c.STT = stt.NewMockSpeechToText(logger)
	}

	if cfg.UseMockSpeech() {
		logger.Warn("ELEVENLABS_API_KEY not set, using mock speech synthesis")
		c.TTS = tts.NewMockTextToSpeech()
	} else {
		eleven, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabs.APIKey,
			VoiceID:      cfg.ElevenLabs.VoiceID,
			ModelID:      cfg.ElevenLabs.ModelID,
			OutputFormat: cfg.ElevenLabs.OutputFormat,
			Stability:    cfg.ElevenLabs.Stability,
			Clarity:      cfg.ElevenLabs.Clarity,
		}, logger)
		if err != nil {
			return c, closeAll, fmt.Errorf("elevenlabs: %w", err)
		}
		c.TTS = eleven
	}

	return c, closeAll, nil
}

func buildQuota(ctx context.Context, cfg *config.Config, logger *zap.Logger) (quotaStore, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
	case cfg.MongoURI != "":
		return buildMongoQuota(ctx, cfg, logger)
	default:
		logger.Warn("Neither DATABASE_URL nor MONGODB_URI set, story quota is kept in memory")
		return adapters.NewMemoryStoryQuota(cfg.StoryDailyLimit), func() {}, nil
	}

	if cfg.MigrateOnStartup {
		if err := postgres.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			return nil, nil, err
		}
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewStoryQuota(pool, cfg.StoryDailyLimit), pool.Close, nil
}

func buildMongoQuota(ctx context.Context, cfg *config.Config, logger *zap.Logger) (quotaStore, func(), error) {
	client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		return nil, nil, err
	}

	store := mongo.NewStoryStore(client.Database, cfg.StoryDailyLimit)
	if err := store.EnsureIndexes(ctx); err != nil {
		client.Close(context.Background())
		return nil, nil, err
	}

	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Close(ctx)
	}
	return store, closeFn, nil
}
