package workqueue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	mu     sync.Mutex
	failed []string
}

func (s *sinkRecorder) sink(task string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, task+": "+err.Error())
}

func TestQueue_RunsSubmittedTasks(t *testing.T) {
	q := New(4, nil)
	q.Start(context.Background())
	defer q.Close()

	var mu sync.Mutex
	seen := make(map[int]bool)

	for i := 0; i < 50; i++ {
		ok := q.Submit("count", func(ctx context.Context) error {
			mu.Lock()
			seen[i] = true
			mu.Unlock()
			return nil
		})
		require.True(t, ok)
	}

	q.Drain()
	assert.Len(t, seen, 50)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_SingleWorkerIsFIFO(t *testing.T) {
	q := New(1, nil)

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		q.Submit(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	q.Start(context.Background())
	q.Drain()
	q.Close()

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestQueue_FailuresGoToSink(t *testing.T) {
	rec := &sinkRecorder{}
	q := New(2, rec.sink)
	q.Start(context.Background())
	defer q.Close()

	q.Submit("notify:vote", func(ctx context.Context) error { return errors.New("db down") })
	q.Submit("notify:panic", func(ctx context.Context) error { panic("boom") })
	q.Submit("ok", func(ctx context.Context) error { return nil })
	q.Drain()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.ElementsMatch(t, []string{"notify:vote: db down", "notify:panic: panic: boom"}, rec.failed)
	assert.Equal(t, int64(2), q.Failures())
}

func TestQueue_SubmitAfterClose(t *testing.T) {
	q := New(1, nil)
	q.Start(context.Background())
	q.Close()

	assert.False(t, q.Submit("late", func(ctx context.Context) error { return nil }))
	assert.NotPanics(t, q.Close)
}
