package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/domain"
	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/metrics"
	"github.com/jheun66/novel-mvp/server/internal/protocol"
)

// Handler turns one inbound message into its replies. It is never called
// concurrently for the same session.
type Handler interface {
	Handle(ctx context.Context, session *entities.Session, msg protocol.Inbound) []protocol.Outbound
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, session *entities.Session, msg protocol.Inbound) []protocol.Outbound

func (f HandlerFunc) Handle(ctx context.Context, session *entities.Session, msg protocol.Inbound) []protocol.Outbound {
	return f(ctx, session, msg)
}

// Config bounds a session's queues and its authentication window
type Config struct {
	AuthTimeout       time.Duration
	InboundQueueSize  int
	OutboundQueueSize int
	// AllowedOrigins lists accepted Origin headers; empty or "*" accepts all
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.InboundQueueSize <= 0 {
		c.InboundQueueSize = 64
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = 256
	}
	return c
}

// Gateway authenticates connections and runs their sessions
type Gateway struct {
	hub      *Hub
	verifier repositories.IdentityVerifier
	handler  Handler
	teardown []func(session *entities.Session)
	cfg      Config
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewGateway creates a gateway. Each teardown func runs once per session
// after its loops stopped.
func NewGateway(
	hub *Hub,
	verifier repositories.IdentityVerifier,
	handler Handler,
	cfg Config,
	logger *zap.Logger,
	teardown ...func(session *entities.Session),
) *Gateway {
	cfg = cfg.withDefaults()
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		handler:  handler,
		teardown: teardown,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// HandleWebSocket handles websocket requests from the peer.
func (g *Gateway) HandleWebSocket(c echo.Context) error {
	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		g.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return nil
	}

	session := entities.NewSession(uuid.NewString())
	_ = session.Transition(entities.SessionStateAuthenticating)

	token := bearerToken(c.Request())
	var greeting []protocol.Outbound
	if token == "" {
		token, err = g.readAuthFrame(conn)
		if err != nil {
			g.reject(conn, session, err)
			return nil
		}
		greeting = append(greeting, protocol.AuthResponse{Success: true, Message: "authenticated"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), g.cfg.AuthTimeout)
	identity, err := g.verifier.Verify(ctx, token)
	cancel()
	if err != nil {
		g.reject(conn, session, err)
		return nil
	}
	if err := session.Activate(identity.UserID, identity.Preferences); err != nil {
		g.reject(conn, session, err)
		return nil
	}

	client := newClient(g.hub, conn, session, g.handler, g.cfg, g.logger)
	g.hub.add(client)
	client.logger.Info("Session started", zap.Bool("frameAuth", len(greeting) > 0))

	err = client.serve(c.Request().Context(), greeting...)
	g.finish(client, err)
	return nil
}

// readAuthFrame waits for an AuthRequest as the first frame
func (g *Gateway) readAuthFrame(conn *websocket.Conn) (string, error) {
	conn.SetReadLimit(64 << 10)
	conn.SetReadDeadline(time.Now().Add(g.cfg.AuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if messageType != websocket.TextMessage {
		return "", domain.ErrMissingToken
	}
	msg, err := protocol.Decode(protocol.TextFrame, payload)
	if err != nil {
		return "", err
	}
	req, ok := msg.(protocol.AuthRequest)
	if !ok || req.Token == "" {
		return "", domain.ErrMissingToken
	}
	return req.Token, nil
}

// reject closes an unauthenticated connection with a policy violation and
// writes nothing else.
func (g *Gateway) reject(conn *websocket.Conn, session *entities.Session, err error) {
	metrics.AuthFailuresTotal.Inc()
	_ = session.Transition(entities.SessionStateClosed)

	reason := "authentication failed"
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		reason = "peer closed before authenticating"
	}
	g.logger.Warn("WebSocket connection rejected",
		zap.String("sessionID", session.ID),
		zap.String("reason", reason),
		zap.Error(domain.NewAuthError(err)))

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	conn.Close()
}

func (g *Gateway) finish(client *Client, err error) {
	session := client.session
	_ = session.Transition(entities.SessionStateClosing)

	g.hub.remove(client)
	for _, fn := range g.teardown {
		fn(session)
	}

	_ = session.Transition(entities.SessionStateClosed)
	fields := []zap.Field{zap.Duration("duration", time.Since(session.CreatedAt))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	client.logger.Info("Session closed", fields...)
}

// bearerToken reads the credential from the query string or the
// Authorization header
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimSuffix(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
