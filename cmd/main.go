package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/internal/api"
	"github.com/jheun66/novel-mvp/server/internal/audio"
	"github.com/jheun66/novel-mvp/server/internal/auth"
	"github.com/jheun66/novel-mvp/server/internal/config"
	"github.com/jheun66/novel-mvp/server/internal/conversation"
	"github.com/jheun66/novel-mvp/server/internal/pipeline"
	"github.com/jheun66/novel-mvp/server/internal/router"
	"github.com/jheun66/novel-mvp/server/internal/websocket"
	"github.com/jheun66/novel-mvp/server/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	logger, err := newLogger(cfg)
	if err != nil {
		zap.NewExample().Fatal("Failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(cfg)
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	// Initialize adapters
	collaborators, closeAdapters, err := buildCollaborators(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize collaborators", zap.Error(err))
	}
	quota, closeQuota, err := buildQuota(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize story quota", zap.Error(err))
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		logger.Fatal("Failed to initialize token verifier", zap.Error(err))
	}

	// Core components
	store := conversation.NewShardedStore(0)
	assembler := audio.NewAssembler(cfg.Session.MaxAudioBytes)
	janitor := audio.NewJanitor(assembler, cfg.Session.StreamSweepInterval, cfg.Session.StreamIdleTimeout, logger)
	janitor.Start()

	p := pipeline.New(collaborators, cfg.Session.CollaboratorTimeout, logger)
	conversations := usecase.NewConversationService(store, p, logger)
	stories := usecase.NewStoryService(store, p, quota, cfg.Session.CollaboratorTimeout, logger)
	msgRouter := router.New(conversations, stories, assembler, logger)

	// Initialize WebSocket hub and gateway
	hub := websocket.NewHub(logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	gateway := websocket.NewGateway(hub, verifier, msgRouter, websocket.Config{
		AuthTimeout:       cfg.Session.AuthTimeout,
		InboundQueueSize:  cfg.Session.InboundQueueSize,
		OutboundQueueSize: cfg.Session.OutboundQueueSize,
		AllowedOrigins:    cfg.AllowedOrigins,
	}, logger,
		func(s *entities.Session) {
			n := conversations.EndSession(s.ID)
			logger.Debug("Removed session conversations", zap.String("sessionID", s.ID), zap.Int("count", n))
		},
		func(s *entities.Session) {
			assembler.DiscardOwnedBy(s.ID)
		},
	)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))

	// Initialize API routes
	api.InitRoutes(e, api.Deps{
		Gateway:       gateway,
		Verifier:      verifier,
		Stories:       quota,
		Sessions:      hub,
		Conversations: store.Len,
		Streams:       assembler.Len,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.AppEnv),
		zap.Bool("mockModels", cfg.UseMockModels()),
		zap.Bool("mockSpeech", cfg.UseMockSpeech()),
		zap.String("sttProvider", cfg.STT.Provider))

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	closed := hub.CloseAll()
	logger.Info("Closed live sessions", zap.Int("count", closed))

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	janitor.Stop()
	stopHub()
	closeAdapters()
	closeQuota()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", zap.Error(err))
	}

	logger.Info("Server exited")
}
