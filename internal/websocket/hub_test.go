package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jheun66/novel-mvp/server/domain"
	"github.com/jheun66/novel-mvp/server/domain/entities"
	"github.com/jheun66/novel-mvp/server/domain/repositories"
	"github.com/jheun66/novel-mvp/server/internal/conversation"
	"github.com/jheun66/novel-mvp/server/internal/protocol"
)

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (repositories.Identity, error) {
	if token != "good" {
		return repositories.Identity{}, domain.ErrInvalidToken
	}
	return repositories.Identity{UserID: "user-1", Preferences: entities.UserPreferences{Language: "en"}}, nil
}

// echoHandler replies to each TextInput with its text and records sessions
type echoHandler struct {
	mu      sync.Mutex
	handled int
	delay   time.Duration
}

func (h *echoHandler) Handle(_ context.Context, s *entities.Session, msg protocol.Inbound) []protocol.Outbound {
	time.Sleep(h.delay)
	h.mu.Lock()
	h.handled++
	h.mu.Unlock()

	switch m := msg.(type) {
	case protocol.TextInput:
		return []protocol.Outbound{
			protocol.NewTextOutput(m.Text, "", nil, false),
			protocol.AudioOutput{AudioData: []byte(m.Text), Format: "pcm16", SampleRate: 16000, AudioType: protocol.AudioTypeDialogue},
		}
	case protocol.AudioInput:
		return []protocol.Outbound{protocol.NewTextOutput(s.UserID, "", nil, false)}
	default:
		return nil
	}
}

func (h *echoHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handled
}

type testServer struct {
	url      string
	hub      *Hub
	handler  *echoHandler
	teardown chan *entities.Session
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger)
	go hub.Run(ctx)

	ts := &testServer{
		hub:      hub,
		handler:  &echoHandler{},
		teardown: make(chan *entities.Session, 4),
	}
	gw := NewGateway(hub, stubVerifier{}, ts.handler, cfg, logger, func(s *entities.Session) {
		ts.teardown <- s
	})

	e := echo.New()
	e.GET("/ws", gw.HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	ts.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return ts
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readOutbound(t *testing.T, conn *websocket.Conn) protocol.Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.DecodeOutbound(payload)
	require.NoError(t, err)
	return msg
}

func sendText(t *testing.T, conn *websocket.Conn, msg protocol.Inbound) {
	t.Helper()
	payload, err := protocol.EncodeInbound(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func requirePolicyClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "expected close error, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
}

func TestGateway_InvalidTokenClosesWithoutMessages(t *testing.T) {
	ts := newTestServer(t, Config{})

	conn := dial(t, ts.url+"?token=bad", nil)
	requirePolicyClose(t, conn)
	assert.Equal(t, 0, ts.handler.count())
	assert.Equal(t, 0, ts.hub.Count())
}

func TestGateway_QueryTokenSessionReplies(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := dial(t, ts.url+"?token=good", nil)

	sendText(t, conn, protocol.TextInput{Text: "hello", ConversationID: "c1"})

	first := readOutbound(t, conn)
	text, ok := first.(protocol.TextOutput)
	require.True(t, ok, "expected TextOutput, got %T", first)
	assert.Equal(t, "hello", text.Text)

	second := readOutbound(t, conn)
	speech, ok := second.(protocol.AudioOutput)
	require.True(t, ok, "expected AudioOutput, got %T", second)
	assert.Equal(t, []byte("hello"), speech.AudioData)
}

func TestGateway_BearerHeader(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := dial(t, ts.url, http.Header{"Authorization": []string{"Bearer good"}})

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}))
	out := readOutbound(t, conn)
	text, ok := out.(protocol.TextOutput)
	require.True(t, ok)
	assert.Equal(t, "user-1", text.Text)
}

func TestGateway_AuthRequestFrame(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := dial(t, ts.url, nil)

	sendText(t, conn, protocol.AuthRequest{Token: "good"})
	out := readOutbound(t, conn)
	resp, ok := out.(protocol.AuthResponse)
	require.True(t, ok, "expected AuthResponse, got %T", out)
	assert.True(t, resp.Success)

	sendText(t, conn, protocol.TextInput{Text: "after auth", ConversationID: "c1"})
	out = readOutbound(t, conn)
	assert.Equal(t, protocol.TypeTextOutput, out.Type())
}

func TestGateway_FirstFrameMustAuthenticate(t *testing.T) {
	ts := newTestServer(t, Config{})

	conn := dial(t, ts.url, nil)
	sendText(t, conn, protocol.TextInput{Text: "sneaky", ConversationID: "c1"})
	requirePolicyClose(t, conn)

	conn = dial(t, ts.url, nil)
	sendText(t, conn, protocol.AuthRequest{Token: "bad"})
	requirePolicyClose(t, conn)

	assert.Equal(t, 0, ts.handler.count())
}

func TestGateway_AuthTimeout(t *testing.T) {
	ts := newTestServer(t, Config{AuthTimeout: 50 * time.Millisecond})

	conn := dial(t, ts.url, nil)
	start := time.Now()
	requirePolicyClose(t, conn)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGateway_DecodeErrorKeepsSession(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := dial(t, ts.url+"?token=good", nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	out := readOutbound(t, conn)
	e, ok := out.(protocol.Error)
	require.True(t, ok, "expected Error, got %T", out)
	assert.Equal(t, domain.CodeProtocolError, e.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"TextOutput","text":"x"}`)))
	out = readOutbound(t, conn)
	assert.Equal(t, protocol.TypeError, out.Type())

	sendText(t, conn, protocol.TextInput{Text: "still here", ConversationID: "c1"})
	out = readOutbound(t, conn)
	assert.Equal(t, protocol.TypeTextOutput, out.Type())
}

func TestGateway_RepliesKeepReceiptOrder(t *testing.T) {
	ts := newTestServer(t, Config{InboundQueueSize: 2, OutboundQueueSize: 2})
	ts.handler.delay = 2 * time.Millisecond
	conn := dial(t, ts.url+"?token=good", nil)

	words := []string{"one", "two", "three", "four", "five", "six", "seven", "eight"}
	go func() {
		for _, w := range words {
			payload, _ := protocol.EncodeInbound(protocol.TextInput{Text: w, ConversationID: "c1"})
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()

	for _, w := range words {
		text, ok := readOutbound(t, conn).(protocol.TextOutput)
		require.True(t, ok)
		assert.Equal(t, w, text.Text)

		speech, ok := readOutbound(t, conn).(protocol.AudioOutput)
		require.True(t, ok)
		assert.Equal(t, []byte(w), speech.AudioData)
	}
}

func TestGateway_TeardownOnDisconnect(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := dial(t, ts.url+"?token=good", nil)

	sendText(t, conn, protocol.TextInput{Text: "hi", ConversationID: "c1"})
	readOutbound(t, conn)
	readOutbound(t, conn)
	assert.Eventually(t, func() bool { return ts.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	select {
	case s := <-ts.teardown:
		assert.Equal(t, "user-1", s.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("teardown was not called")
	}
	assert.Eventually(t, func() bool { return ts.hub.Count() == 0 }, time.Second, 10*time.Millisecond)
}

// storeHandler opens the addressed conversation after a delay
type storeHandler struct {
	store   *conversation.ShardedStore
	delay   time.Duration
	handled atomic.Int32
}

func (h *storeHandler) Handle(_ context.Context, s *entities.Session, msg protocol.Inbound) []protocol.Outbound {
	time.Sleep(h.delay)
	m, ok := msg.(protocol.TextInput)
	if !ok {
		return nil
	}
	if _, err := h.store.GetOrCreate(m.ConversationID, s.ID, s.UserID); err != nil {
		return []protocol.Outbound{protocol.NewError(domain.CodeForbidden, err.Error())}
	}
	h.handled.Add(1)
	return []protocol.Outbound{protocol.NewTextOutput(m.Text, "", nil, false)}
}

func TestGateway_TeardownWaitsForInFlightHandler(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger)
	go hub.Run(ctx)

	store := conversation.NewShardedStore(0)
	handler := &storeHandler{store: store, delay: 300 * time.Millisecond}

	type teardownSeen struct {
		handled int32
		removed int
	}
	seen := make(chan teardownSeen, 1)
	gw := NewGateway(hub, stubVerifier{}, handler, Config{}, logger, func(s *entities.Session) {
		handled := handler.handled.Load()
		seen <- teardownSeen{handled: handled, removed: store.RemoveOwnedBy(s.ID)}
	})

	e := echo.New()
	e.GET("/ws", gw.HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token=good", nil)
	sendText(t, conn, protocol.TextInput{Text: "hi", ConversationID: "c1"})
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case got := <-seen:
		assert.EqualValues(t, 1, got.handled, "teardown ran before the handler finished")
		assert.Equal(t, 1, got.removed, "conversation opened by the handler was not removed")
	case <-time.After(2 * time.Second):
		t.Fatal("teardown was not called")
	}
	assert.Zero(t, store.Len())
}

func TestHub_CloseAll(t *testing.T) {
	ts := newTestServer(t, Config{})
	a := dial(t, ts.url+"?token=good", nil)
	b := dial(t, ts.url+"?token=good", nil)
	assert.Eventually(t, func() bool { return ts.hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, ts.hub.CloseAll())

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	}
	assert.Eventually(t, func() bool { return ts.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	assert.Equal(t, "q", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "bearer h")
	assert.Equal(t, "h", bearerToken(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", bearerToken(r))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com/"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))

	assert.True(t, originChecker([]string{"*"})(r))
}
