package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jheun66/novel-mvp/server/internal/audio"
	"github.com/jheun66/novel-mvp/server/internal/protocol"
)

// client is a thin synchronous protocol client for manual testing
type client struct {
	conn     *websocket.Conn
	audioDir string
	logger   *zap.Logger
}

func dial(serverURL, token string, frameAuth bool, audioDir string, logger *zap.Logger) (*client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	headers := http.Header{}
	if !frameAuth {
		headers.Add("Authorization", "Bearer "+token)
	}

	logger.Info("Connecting", zap.String("url", u.String()), zap.Bool("frameAuth", frameAuth))
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &client{conn: conn, audioDir: audioDir, logger: logger}
	if frameAuth {
		if err := c.send(protocol.AuthRequest{Token: token}); err != nil {
			conn.Close()
			return nil, err
		}
		if _, err := c.await(protocol.TypeAuthResponse, 10*time.Second); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *client) close() {
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}

func (c *client) send(msg protocol.Inbound) error {
	payload, err := protocol.EncodeInbound(msg)
	if err != nil {
		return err
	}
	c.logger.Debug("Sending", zap.String("type", string(msg.Type())), zap.Int("bytes", len(payload)))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// await reads messages, reporting each, until one of type want or an
// Error arrives
func (c *client) await(want protocol.MessageType, timeout time.Duration) (protocol.Outbound, error) {
	deadline := time.Now().Add(timeout)
	for {
		c.conn.SetReadDeadline(deadline)
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		msg, err := protocol.DecodeOutbound(payload)
		if err != nil {
			c.logger.Warn("Undecodable server message", zap.Error(err))
			continue
		}
		c.report(msg)

		if e, ok := msg.(protocol.Error); ok {
			return msg, fmt.Errorf("server error %s: %s", e.Code, e.Message)
		}
		if msg.Type() == want {
			return msg, nil
		}
	}
}

func (c *client) report(msg protocol.Outbound) {
	switch m := msg.(type) {
	case protocol.AuthResponse:
		c.logger.Info("Authenticated", zap.Bool("success", m.Success), zap.String("message", m.Message))
	case protocol.TextOutput:
		c.logger.Info("Reply",
			zap.String("text", m.Text),
			zap.String("emotion", m.Emotion),
			zap.Strings("suggestions", m.SuggestedQuestions),
			zap.Bool("readyForStory", m.ReadyForStory))
	case protocol.AudioOutput:
		path := c.saveAudio(m.AudioType, m.AudioData, m.Format, m.SampleRate)
		c.logger.Info("Audio",
			zap.String("audioType", m.AudioType),
			zap.String("format", m.Format),
			zap.Int("bytes", len(m.AudioData)),
			zap.Float64("duration", m.Duration),
			zap.String("savedTo", path))
	case protocol.StoryOutput:
		path := c.saveAudio("story", m.AudioData, "pcm16", 0)
		c.logger.Info("Story",
			zap.String("title", m.Title),
			zap.String("genre", m.Genre),
			zap.String("emotion", m.Emotion),
			zap.String("emotionalArc", m.EmotionalArc),
			zap.String("savedTo", path))
		fmt.Printf("\n%s\n\n%s\n\n", m.Title, m.Content)
	case protocol.Error:
		c.logger.Warn("Error", zap.String("code", m.Code), zap.String("message", m.Message))
	}
}

func (c *client) saveAudio(kind string, data []byte, format string, sampleRate int) string {
	if c.audioDir == "" || len(data) == 0 {
		return ""
	}
	if err := os.MkdirAll(c.audioDir, 0o755); err != nil {
		c.logger.Warn("Error creating audio directory", zap.Error(err))
		return ""
	}

	ext := format
	if format == "pcm16" && sampleRate > 0 {
		data = audio.WrapWAV(data, sampleRate, 1)
		ext = "wav"
	}
	path := filepath.Join(c.audioDir, fmt.Sprintf("%s_%d.%s", kind, time.Now().UnixNano(), ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.logger.Warn("Error writing audio file", zap.Error(err))
		return ""
	}
	return path
}
