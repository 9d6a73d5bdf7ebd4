package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/websocket"
)

const (
	defaultStoryPage = 20
	maxStoryPage     = 100
)

// SessionCounter reports live session and conversation counts
type SessionCounter interface {
	Count() int
}

// StoryLister returns a user's latest stories
type StoryLister interface {
	Recent(ctx context.Context, userID string, limit int) ([]entities.Story, error)
}

// Deps are the components the routes expose
type Deps struct {
	Gateway       *websocket.Gateway
	Verifier      repositories.IdentityVerifier
	Stories       StoryLister
	Sessions      SessionCounter
	Conversations func() int
	Streams       func() int
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Deps, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:  "ok",
			Service: "novel-mvp-server",
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.GET("/sessions", func(c echo.Context) error {
		return getSessions(c, deps)
	})
	v1.GET("/stories", func(c echo.Context) error {
		return getStories(c, deps, logger)
	})

	// WebSocket endpoint; authentication happens inside the session
	e.GET("/ws", deps.Gateway.HandleWebSocket)

	logger.Info("Routes registered", zap.Int("count", len(e.Routes())))
}

func getSessions(c echo.Context, deps Deps) error {
	if deps.Sessions == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "session registry not configured",
		})
	}

	resp := SessionsResponse{ActiveSessions: deps.Sessions.Count()}
	if deps.Conversations != nil {
		resp.ActiveConversations = deps.Conversations()
	}
	if deps.Streams != nil {
		resp.OpenAudioStreams = deps.Streams()
	}
	return c.JSON(http.StatusOK, resp)
}

func getStories(c echo.Context, deps Deps, logger *zap.Logger) error {
	if deps.Verifier == nil || deps.Stories == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "story history not configured",
		})
	}

	token := c.Request().Header.Get(echo.HeaderAuthorization)
	identity, err := deps.Verifier.Verify(c.Request().Context(), token)
	if err != nil {
		logger.Warn("Story history request rejected", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	limit := defaultStoryPage
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a positive integer",
			})
		}
		limit = min(n, maxStoryPage)
	}

	stories, err := deps.Stories.Recent(c.Request().Context(), identity.UserID, limit)
	if err != nil {
		logger.Error("Failed to list stories",
			zap.String("userID", identity.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load stories",
		})
	}
	if stories == nil {
		stories = []entities.Story{}
	}
	return c.JSON(http.StatusOK, StoriesResponse{Stories: stories})
}
