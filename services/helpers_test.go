package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akinalp/pano/database"
	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg/cache"
	"github.com/akinalp/pano/pkg/push"
	"github.com/akinalp/pano/realtime"
)

// ─── Fakes ───

type recordingPublisher struct {
	mu      sync.Mutex
	changes map[string][]realtime.Change
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{changes: make(map[string][]realtime.Change)}
}

func (p *recordingPublisher) Publish(q realtime.Query, changes ...realtime.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes[q.String()] = append(p.changes[q.String()], changes...)
}

func (p *recordingPublisher) For(path string) []realtime.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Change(nil), p.changes[path]...)
}

// inlineQueue, task'ları Submit içinde senkron çalıştırır; hataları sayar.
type inlineQueue struct {
	mu       sync.Mutex
	names    []string
	failures int
	closed   bool
}

func (q *inlineQueue) Submit(name string, run func(ctx context.Context) error) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.names = append(q.names, name)
	q.mu.Unlock()

	if err := run(context.Background()); err != nil {
		q.mu.Lock()
		q.failures++
		q.mu.Unlock()
	}
	return true
}

func (q *inlineQueue) Failures() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failures
}

// deferredQueue, task'ları biriktirir; test istediği sırada çalıştırır.
// Birden fazla worker'ın task'ları sırasız bitirmesini taklit eder.
type deferredQueue struct {
	mu    sync.Mutex
	tasks []func(ctx context.Context) error
}

func (q *deferredQueue) Submit(_ string, run func(ctx context.Context) error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, run)
	return true
}

// Drain, bekleyen task'ları çalıştırır; reversed ise son gönderilen önce.
func (q *deferredQueue) Drain(t *testing.T, reversed bool) {
	t.Helper()
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	for i := range tasks {
		run := tasks[i]
		if reversed {
			run = tasks[len(tasks)-1-i]
		}
		require.NoError(t, run(context.Background()))
	}
}

type fakeSender struct {
	mu      sync.Mutex
	reject  map[string]bool
	sent    []string
	payload []push.Payload
}

func (f *fakeSender) SendToTokens(_ context.Context, tokens []string, payload push.Payload) ([]push.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]push.Result, 0, len(tokens))
	for _, tok := range tokens {
		f.sent = append(f.sent, tok)
		results = append(results, push.Result{Token: tok, Success: !f.reject[tok]})
	}
	f.payload = append(f.payload, payload)
	return results, nil
}

// fakeClock, elle tetiklenen TimerFactory.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) New(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// FireAll, durdurulmamış tüm zamanlayıcıları tetikler.
func (c *fakeClock) FireAll() {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()

	for _, t := range timers {
		t.mu.Lock()
		run := !t.stopped && !t.fired
		t.fired = true
		t.mu.Unlock()
		if run {
			t.f()
		}
	}
}

func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// ─── Environment ───

type testEnv struct {
	db    *database.DB
	store *Store
	pub   *recordingPublisher
	queue *inlineQueue
	push  *fakeSender
	clock *fakeClock

	notifications NotificationService
	interactions  InteractionService
	content       ContentService
	conversations ConversationService
	presence      *Presence
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "pano.db"), 0, database.Migrations())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	titles := cache.New[string, string](time.Minute, 0)
	names := cache.New[string, string](time.Minute, 0)
	t.Cleanup(titles.Close)
	t.Cleanup(names.Close)

	env := &testEnv{
		db:    db,
		store: NewStore(db.Conn, database.RetryPolicy{Attempts: 5, Backoff: 5 * time.Millisecond}),
		pub:   newRecordingPublisher(),
		queue: &inlineQueue{},
		push:  &fakeSender{reject: map[string]bool{}},
		clock: &fakeClock{},
	}

	env.notifications = NewNotificationService(env.store, env.queue, env.pub, env.push, titles, names, "a post")
	env.interactions = NewInteractionService(env.store, env.pub, env.notifications)
	env.content = NewContentService(env.store, env.pub, env.notifications)
	env.conversations, env.presence = NewConversationService(
		env.store, env.pub, env.notifications, env.queue, env.clock.New,
		PresenceSettings{QuietPeriod: 2 * time.Second},
	)
	t.Cleanup(env.presence.Close)
	return env
}

func (e *testEnv) user(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, DisplayName: username, PasswordHash: "x"}
	require.NoError(t, e.store.Repos().Users.Create(context.Background(), u))
	return u
}

func (e *testEnv) post(t *testing.T, authorID, title string) *models.Target {
	t.Helper()
	p, err := e.content.CreatePost(context.Background(), authorID, &models.CreatePostRequest{CommunityID: "c1", Title: title, Body: "body"})
	require.NoError(t, err)
	return p
}

func (e *testEnv) target(t *testing.T, id string) *models.Target {
	t.Helper()
	got, err := e.store.Repos().Targets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return got
}

func (e *testEnv) notificationsOf(t *testing.T, userID string) []models.Notification {
	t.Helper()
	list, err := e.notifications.List(context.Background(), userID, 100, "")
	require.NoError(t, err)
	return list
}
