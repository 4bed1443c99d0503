package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/realtime"
	"github.com/akinalp/pano/ws"
)

type tokenIsUser struct{}

func (tokenIsUser) ValidateAccessToken(token string) (*models.TokenClaims, error) {
	if token == "" {
		return nil, pkg.ErrUnauthorized
	}
	return &models.TokenClaims{UserID: token}, nil
}

type openSubscriber struct{ bridge *realtime.Bridge }

func (s openSubscriber) Subscribe(ctx context.Context, viewerID string, q realtime.Query, onChange func(realtime.Update)) (func(), error) {
	if q.Collection == "private" {
		return nil, pkg.Denied("read", q.String(), "")
	}
	return s.bridge.Subscribe(ctx, q, onChange)
}

func newRealtimeServer(t *testing.T) (*realtime.Bridge, string) {
	t.Helper()

	bridge := realtime.NewBridge()
	for _, c := range []string{"items", "private"} {
		bridge.Register(c, func(_ context.Context, key string) ([]realtime.Change, error) {
			return []realtime.Change{{Type: realtime.Added, ID: key}}, nil
		})
	}

	hub := ws.NewHub(openSubscriber{bridge: bridge})
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(ws.NewHandler(hub, tokenIsUser{}, nil).HandleConnection))
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
		bridge.Close()
	})
	return bridge, srv.URL
}

func TestRealtime_SnapshotThenChanges(t *testing.T) {
	bridge, url := newRealtimeServer(t)
	ctx := context.Background()

	rt, err := DialRealtime(ctx, url, "alice")
	require.NoError(t, err)
	defer rt.Close()

	updates := make(chan Update, 8)
	unsubscribe, err := rt.Subscribe(ctx, "items/k", func(u Update) { updates <- u })
	require.NoError(t, err)
	defer unsubscribe()

	snap := <-updates
	assert.True(t, snap.Snapshot)
	require.Len(t, snap.Changes, 1)
	assert.Equal(t, "k", snap.Changes[0].ID)

	bridge.Publish(realtime.Query{Collection: "items", Key: "k"}, realtime.Change{Type: realtime.Modified, ID: "k"})

	select {
	case u := <-updates:
		assert.False(t, u.Snapshot)
		assert.Greater(t, u.Seq, snap.Seq)
	case <-time.After(3 * time.Second):
		t.Fatal("no live update")
	}
}

func TestRealtime_NoCallbackAfterUnsubscribe(t *testing.T) {
	bridge, url := newRealtimeServer(t)
	ctx := context.Background()

	rt, err := DialRealtime(ctx, url, "alice")
	require.NoError(t, err)
	defer rt.Close()

	var calls atomic.Int32
	unsubscribe, err := rt.Subscribe(ctx, "items/k", func(Update) { calls.Add(1) })
	require.NoError(t, err)

	unsubscribe()
	after := calls.Load()

	q := realtime.Query{Collection: "items", Key: "k"}
	for i := 0; i < 5; i++ {
		bridge.Publish(q, realtime.Change{Type: realtime.Modified, ID: "k"})
	}

	// İkinci abonelik snapshot'ı geldiğinde, ilk aboneliğe ait tüm event'ler
	// (gelmişlerse) çoktan işlenmiştir.
	marker, err := rt.Subscribe(ctx, "items/other", func(Update) {})
	require.NoError(t, err)
	marker()

	assert.Equal(t, after, calls.Load())
}

func TestRealtime_StopFromCallback(t *testing.T) {
	bridge, url := newRealtimeServer(t)
	ctx := context.Background()

	rt, err := DialRealtime(ctx, url, "alice")
	require.NoError(t, err)
	defer rt.Close()

	var calls atomic.Int32
	_, err = rt.Subscribe(ctx, "items/k", func(u Update) {
		if calls.Add(1) == 2 {
			u.Stop()
		}
	})
	require.NoError(t, err)

	q := realtime.Query{Collection: "items", Key: "k"}
	bridge.Publish(q, realtime.Change{Type: realtime.Modified, ID: "k"})
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 3*time.Second, 5*time.Millisecond)

	bridge.Publish(q, realtime.Change{Type: realtime.Modified, ID: "k"})
	marker, err := rt.Subscribe(ctx, "items/other", func(Update) {})
	require.NoError(t, err)
	marker()

	assert.Equal(t, int32(2), calls.Load())
}

func TestRealtime_SubscribeDenied(t *testing.T) {
	_, url := newRealtimeServer(t)
	ctx := context.Background()

	rt, err := DialRealtime(ctx, url, "alice")
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Subscribe(ctx, "private/bob", func(Update) {})
	assert.ErrorIs(t, err, pkg.ErrPermissionDenied)
}

func TestRealtime_RejectsBadToken(t *testing.T) {
	_, url := newRealtimeServer(t)

	_, err := DialRealtime(context.Background(), url, "")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
}

func TestRealtime_CloseStopsCallbacks(t *testing.T) {
	bridge, url := newRealtimeServer(t)
	ctx := context.Background()

	rt, err := DialRealtime(ctx, url, "alice")
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = rt.Subscribe(ctx, "items/k", func(Update) { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, rt.Close())
	after := calls.Load()

	bridge.Publish(realtime.Query{Collection: "items", Key: "k"}, realtime.Change{Type: realtime.Modified, ID: "k"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load())

	_, err = rt.Subscribe(ctx, "items/k", func(Update) {})
	assert.ErrorIs(t, err, ErrRealtimeClosed)
}
