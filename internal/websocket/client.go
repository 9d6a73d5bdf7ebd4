package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jheun66/novel-mvp/server/domain"
	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/internal/metrics"
	"github.com/jheun66/novel-mvp/server/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. A single-shot upload of the
	// largest accepted clip is sent base64 encoded.
	maxMessageSize = 36 << 20
)

// inboundItem is a decoded frame or the reason it could not be decoded
type inboundItem struct {
	msg protocol.Inbound
	err error
}

// Client is one authenticated connection and its three loops.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *entities.Session
	handler Handler

	// inbound is closed by the reader, outbound by the dispatcher.
	inbound  chan inboundItem
	outbound chan protocol.Outbound
	// writerDone is closed when the writer stops taking messages.
	writerDone chan struct{}

	closeOnce sync.Once
	logger    *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, session *entities.Session, handler Handler, cfg Config, logger *zap.Logger) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		session:    session,
		handler:    handler,
		inbound:    make(chan inboundItem, cfg.InboundQueueSize),
		outbound:   make(chan protocol.Outbound, cfg.OutboundQueueSize),
		writerDone: make(chan struct{}),
		logger:     logger.With(zap.String("sessionID", session.ID), zap.String("userID", session.UserID)),
	}
}

// serve runs the loops until the connection goes away. Handler work is
// detached from ctx cancellation so in-flight turns complete.
func (c *Client) serve(ctx context.Context, greeting ...protocol.Outbound) error {
	for _, m := range greeting {
		c.outbound <- m
	}

	handlerCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.Go(c.readPump)
	g.Go(func() error { return c.dispatch(handlerCtx) })
	g.Go(c.writePump)
	return g.Wait()
}

// readPump decodes frames into the inbound queue. Closing that queue is the
// only shutdown signal of the session.
func (c *Client) readPump() error {
	defer close(c.inbound)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return nil
		}

		var kind protocol.FrameKind
		switch messageType {
		case websocket.TextMessage:
			kind = protocol.TextFrame
		case websocket.BinaryMessage:
			kind = protocol.BinaryFrame
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
			continue
		}

		msg, err := protocol.Decode(kind, message)
		c.inbound <- inboundItem{msg: msg, err: err}
	}
}

// dispatch runs the handler for each inbound message in receipt order
func (c *Client) dispatch(ctx context.Context) error {
	defer close(c.outbound)

	for item := range c.inbound {
		if item.err != nil {
			de := domain.AsError(item.err, domain.CodeProtocolError)
			metrics.ErrorsTotal.WithLabelValues(de.Code).Inc()
			c.logger.Warn("Dropping undecodable frame", zap.String("code", de.Code), zap.Error(item.err))
			c.send(protocol.NewError(de.Code, de.Message))
			continue
		}

		for _, out := range c.handler.Handle(ctx, c.session, item.msg) {
			c.send(out)
		}
	}
	return nil
}

// send queues msg unless the writer already stopped
func (c *Client) send(msg protocol.Outbound) {
	select {
	case c.outbound <- msg:
	case <-c.writerDone:
	}
}

// writePump encodes queued messages in order and keeps the peer alive
func (c *Client) writePump() error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}

			payload, err := protocol.Encode(msg)
			if err != nil {
				c.logger.Error("Failed to encode message", zap.String("type", string(msg.Type())), zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				return err
			}
			metrics.MessagesTotal.WithLabelValues(string(msg.Type()), metrics.Outbound).Inc()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}
