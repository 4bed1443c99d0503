package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typingWrite struct {
	user   string
	typing bool
}

type writeLog struct {
	mu     sync.Mutex
	writes []typingWrite
	epochs []int64
}

func (w *writeLog) write(_ string, userID string, typing bool, epoch int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, typingWrite{userID, typing})
	w.epochs = append(w.epochs, epoch)
}

func (w *writeLog) all() []typingWrite {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]typingWrite(nil), w.writes...)
}

func TestPresence_KeystrokesWriteOnce(t *testing.T) {
	clock := &fakeClock{}
	log := &writeLog{}
	p := NewPresence(2*time.Second, clock.New, log.write)

	for i := 0; i < 10; i++ {
		p.Keystroke("c1", "alice")
	}
	assert.Equal(t, []typingWrite{{"alice", true}}, log.all())
	assert.Equal(t, 1, clock.Active())

	clock.FireAll()
	assert.Equal(t, []typingWrite{{"alice", true}, {"alice", false}}, log.all())
	assert.False(t, p.IsTyping("c1", "alice"))
}

func TestPresence_StaleTimerIgnored(t *testing.T) {
	clock := &fakeClock{}
	log := &writeLog{}
	p := NewPresence(2*time.Second, clock.New, log.write)

	p.Keystroke("c1", "alice")
	stale := clock.timers[0]
	p.Keystroke("c1", "alice")

	// Stop ile yarışıp yine de tetiklenen eski zamanlayıcı
	stale.f()
	assert.True(t, p.IsTyping("c1", "alice"))
	assert.Len(t, log.all(), 1)
}

func TestPresence_SentWritesFalseOnlyFromTyping(t *testing.T) {
	clock := &fakeClock{}
	log := &writeLog{}
	p := NewPresence(2*time.Second, clock.New, log.write)

	p.Sent("c1", "alice")
	assert.Empty(t, log.all())

	p.Keystroke("c1", "alice")
	p.Sent("c1", "alice")
	clock.FireAll()

	assert.Equal(t, []typingWrite{{"alice", true}, {"alice", false}}, log.all())
	assert.Zero(t, clock.Active())
}

func TestPresence_EpochsIncreaseAcrossTransitions(t *testing.T) {
	clock := &fakeClock{}
	log := &writeLog{}
	p := NewPresence(2*time.Second, clock.New, log.write)

	p.Keystroke("c1", "alice")
	p.Stop("c1", "alice")
	p.Keystroke("c1", "alice")
	clock.FireAll()
	p.Keystroke("c1", "alice")
	p.Sent("c1", "alice")

	log.mu.Lock()
	epochs := append([]int64(nil), log.epochs...)
	log.mu.Unlock()

	require.Len(t, epochs, 6)
	for i := 1; i < len(epochs); i++ {
		assert.Greater(t, epochs[i], epochs[i-1])
	}
}

func TestPresence_StopWritesOnlyFromTyping(t *testing.T) {
	clock := &fakeClock{}
	log := &writeLog{}
	p := NewPresence(2*time.Second, clock.New, log.write)

	p.Stop("c1", "alice")
	assert.Empty(t, log.all())

	p.Keystroke("c1", "alice")
	p.Keystroke("c1", "bob")
	p.Stop("c1", "alice")
	p.Stop("c1", "alice")

	assert.Equal(t, []typingWrite{{"alice", true}, {"bob", true}, {"alice", false}}, log.all())
	assert.True(t, p.IsTyping("c1", "bob"), "states are per participant")

	p.Close()
	clock.FireAll()
	assert.Len(t, log.all(), 3, "closed presence does not write")
}
