package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/realtime"
)

type staticValidator struct{}

func (staticValidator) ValidateAccessToken(token string) (*models.TokenClaims, error) {
	if !strings.HasPrefix(token, "user:") {
		return nil, pkg.ErrUnauthorized
	}
	return &models.TokenClaims{UserID: strings.TrimPrefix(token, "user:")}, nil
}

// bridgeSubscriber, "items" koleksiyonunu herkese, "private" koleksiyonunu
// sadece key == viewer olana açar.
type bridgeSubscriber struct {
	bridge *realtime.Bridge
}

func (s bridgeSubscriber) Subscribe(ctx context.Context, viewerID string, q realtime.Query, onChange func(realtime.Update)) (func(), error) {
	if q.Collection == "private" && q.Key != viewerID {
		return nil, pkg.Denied("read", q.String(), "not the owner")
	}
	return s.bridge.Subscribe(ctx, q, onChange)
}

type typingCall struct {
	userID, convID string
	typing         bool
}

type wsEnv struct {
	bridge *realtime.Bridge
	hub    *Hub
	server *httptest.Server

	mu     sync.Mutex
	typing []typingCall
}

// newWSEnv, typingErr nil değilse typing callback'i bu hatayı döner.
func newWSEnv(t *testing.T, typingErr error) *wsEnv {
	t.Helper()

	bridge := realtime.NewBridge()
	bridge.Register("items", func(_ context.Context, key string) ([]realtime.Change, error) {
		return []realtime.Change{{Type: realtime.Added, ID: key + "-1", Data: "first"}}, nil
	})
	bridge.Register("private", func(context.Context, string) ([]realtime.Change, error) {
		return nil, nil
	})

	env := &wsEnv{bridge: bridge}
	env.hub = NewHub(bridgeSubscriber{bridge: bridge})
	env.hub.OnTyping(func(_ context.Context, userID, convID string, typing bool) error {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.typing = append(env.typing, typingCall{userID, convID, typing})
		return typingErr
	})
	go env.hub.Run()

	handler := NewHandler(env.hub, staticValidator{}, nil)
	env.server = httptest.NewServer(http.HandlerFunc(handler.HandleConnection))

	t.Cleanup(func() {
		env.server.Close()
		env.hub.Shutdown()
		bridge.Close()
	})
	return env
}

func (e *wsEnv) typingCalls() []typingCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]typingCall(nil), e.typing...)
}

type wireEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  int64           `json:"seq"`
}

func (e *wsEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "?token=user:" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ready := readEvent(t, conn)
	require.Equal(t, OpReady, ready.Op)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func send(t *testing.T, conn *websocket.Conn, op string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"op": op, "d": data}))
}

func readUpdate(t *testing.T, conn *websocket.Conn) UpdateData {
	t.Helper()
	ev := readEvent(t, conn)
	require.Equal(t, OpUpdate, ev.Op, "payload: %s", ev.Data)
	var u UpdateData
	require.NoError(t, json.Unmarshal(ev.Data, &u))
	return u
}

func TestHandler_RejectsMissingOrInvalidToken(t *testing.T) {
	env := newWSEnv(t, nil)
	base := "ws" + strings.TrimPrefix(env.server.URL, "http")

	for _, url := range []string{base, base + "?token=garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, 401, resp.StatusCode)
	}
}

func TestClient_SnapshotThenChanges(t *testing.T) {
	env := newWSEnv(t, nil)
	conn := env.dial(t, "alice")

	send(t, conn, OpSubscribe, SubscribeData{SubID: "s1", Path: "items/k"})

	snap := readUpdate(t, conn)
	assert.Equal(t, "s1", snap.SubID)
	assert.Equal(t, "items/k", snap.Path)
	assert.True(t, snap.Snapshot)

	env.bridge.Publish(realtime.Query{Collection: "items", Key: "k"},
		realtime.Change{Type: realtime.Modified, ID: "k-1", Data: "second"})

	live := readUpdate(t, conn)
	assert.False(t, live.Snapshot)
	assert.Greater(t, live.Seq, snap.Seq)
}

func TestClient_UnsubscribeStopsUpdates(t *testing.T) {
	env := newWSEnv(t, nil)
	conn := env.dial(t, "alice")
	q := realtime.Query{Collection: "items", Key: "k"}

	send(t, conn, OpSubscribe, SubscribeData{SubID: "s1", Path: q.String()})
	readUpdate(t, conn)
	require.Equal(t, 1, env.bridge.SubscriberCount(q))

	send(t, conn, OpUnsubscribe, UnsubscribeData{SubID: "s1"})
	require.Eventually(t, func() bool { return env.bridge.SubscriberCount(q) == 0 },
		2*time.Second, 5*time.Millisecond)

	env.bridge.Publish(q, realtime.Change{Type: realtime.Modified, ID: "k-1"})

	// Sonraki event heartbeat ack olmalı; arada update gelmemeli.
	send(t, conn, OpHeartbeat, nil)
	ev := readEvent(t, conn)
	assert.Equal(t, OpHeartbeatAck, ev.Op)
}

func TestClient_SubscribeErrors(t *testing.T) {
	env := newWSEnv(t, nil)
	conn := env.dial(t, "alice")

	cases := []struct {
		data SubscribeData
		code string
	}{
		{SubscribeData{SubID: "a", Path: "private/bob"}, "permission_denied"},
		{SubscribeData{SubID: "b", Path: "nope"}, "bad_request"},
		{SubscribeData{SubID: "", Path: "items/k"}, "bad_request"},
	}

	for _, tc := range cases {
		send(t, conn, OpSubscribe, tc.data)
		ev := readEvent(t, conn)
		require.Equal(t, OpError, ev.Op)

		var data ErrorData
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, tc.code, data.Code, "path=%s", tc.data.Path)
		assert.Equal(t, OpSubscribe, data.Op)
	}

	// Aynı sub_id ikinci kez kullanılamaz.
	send(t, conn, OpSubscribe, SubscribeData{SubID: "s1", Path: "private/alice"})
	readUpdate(t, conn)
	send(t, conn, OpSubscribe, SubscribeData{SubID: "s1", Path: "items/k"})
	ev := readEvent(t, conn)
	require.Equal(t, OpError, ev.Op)
	assert.Contains(t, string(ev.Data), "already_exists")
}

func TestClient_DisconnectTearsDownSubscriptionsAndTyping(t *testing.T) {
	env := newWSEnv(t, nil)
	conn := env.dial(t, "alice")
	q := realtime.Query{Collection: "items", Key: "k"}

	send(t, conn, OpSubscribe, SubscribeData{SubID: "s1", Path: q.String()})
	readUpdate(t, conn)
	send(t, conn, OpTyping, TypingData{ConversationID: "alice_bob", Typing: true})

	require.Eventually(t, func() bool { return len(env.typingCalls()) == 1 },
		2*time.Second, 5*time.Millisecond)
	assert.True(t, env.hub.IsOnline("alice"))

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return env.bridge.SubscriberCount(q) == 0 && !env.hub.IsOnline("alice")
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return len(env.typingCalls()) == 2 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, typingCall{"alice", "alice_bob", false}, env.typingCalls()[1])
}

func TestClient_TypingErrorIsReported(t *testing.T) {
	env := newWSEnv(t, fmt.Errorf("%w: slow down", pkg.ErrRateLimited))
	conn := env.dial(t, "alice")

	send(t, conn, OpTyping, TypingData{ConversationID: "alice_bob", Typing: true})
	ev := readEvent(t, conn)
	require.Equal(t, OpError, ev.Op)

	var data ErrorData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "rate_limited", data.Code)
}
