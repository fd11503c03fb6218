package logs

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charliek/devlog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription_Send(t *testing.T) {
	sub := newSubscription(nil, 10)

	ok := sub.Send(makeEntry("hello"))
	assert.True(t, ok)

	received := <-sub.Channel()
	assert.Equal(t, "hello", received.Message)
	assert.True(t, strings.HasPrefix(sub.ID(), "sub-"))
}

func TestSubscription_Filter(t *testing.T) {
	view := domain.ViewSpec{ShowWarning: true, SearchText: "texture"}
	sub := newSubscription(&view, 10)

	// Should pass filter
	sub.Send(makeSevEntry(domain.SeverityWarning, "Texture missing"))

	// Should not pass filter (but Send returns true)
	assert.True(t, sub.Send(makeSevEntry(domain.SeverityError, "texture missing")))
	sub.Send(makeSevEntry(domain.SeverityWarning, "mesh missing"))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "Texture missing", msg.Message)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected to receive message")
	}

	select {
	case <-sub.Channel():
		t.Fatal("should not receive filtered message")
	case <-time.After(50 * time.Millisecond):
		// Expected
	}
}

func TestSubscription_Close(t *testing.T) {
	sub := newSubscription(nil, 10)

	sub.Close()

	// Send should return false after close
	ok := sub.Send(makeEntry("hello"))
	assert.False(t, ok)

	// Double close should be safe
	sub.Close()
}

func TestSubscription_FullChannel(t *testing.T) {
	sub := newSubscription(nil, 2)

	// Fill the buffer
	sub.Send(makeEntry("1"))
	sub.Send(makeEntry("2"))

	// This should drop (non-blocking)
	ok := sub.Send(makeEntry("3"))
	assert.False(t, ok)
	assert.Equal(t, int64(1), sub.Dropped())
}

func TestSubscriptionManager_Subscribe(t *testing.T) {
	m := NewSubscriptionManager(10)

	id, ch := m.Subscribe(nil)
	assert.NotEmpty(t, id)
	assert.NotNil(t, ch)
	assert.Equal(t, 1, m.Count())

	other, _ := m.Subscribe(nil)
	assert.NotEqual(t, id, other)
}

func TestSubscriptionManager_Unsubscribe(t *testing.T) {
	m := NewSubscriptionManager(10)

	id, ch := m.Subscribe(nil)

	m.Unsubscribe(id)
	assert.Equal(t, 0, m.Count())

	// Channel should be closed
	_, ok := <-ch
	assert.False(t, ok)

	// Unknown id is a no-op
	m.Unsubscribe("missing")
}

func TestSubscriptionManager_BroadcastCopies(t *testing.T) {
	m := NewSubscriptionManager(10)

	_, ch1 := m.Subscribe(nil)
	_, ch2 := m.Subscribe(nil)

	entry := makeEntry("broadcast")
	entry.Frames = []domain.StackFrame{{FilePath: "a.cs", Line: 1}}
	m.Broadcast(entry)

	msg1 := <-ch1
	msg2 := <-ch2
	require.Len(t, msg1.Frames, 1)

	msg1.Frames[0].Line = 42
	assert.Equal(t, 1, msg2.Frames[0].Line)
	assert.Equal(t, 1, entry.Frames[0].Line)
}

func TestSubscriptionManager_Close(t *testing.T) {
	m := NewSubscriptionManager(10)

	_, ch1 := m.Subscribe(nil)
	_, ch2 := m.Subscribe(nil)

	m.Close()

	assert.Equal(t, 0, m.Count())

	// Channels should be closed
	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestSubscriptionManager_Concurrent(t *testing.T) {
	m := NewSubscriptionManager(100)

	var wg sync.WaitGroup

	// Concurrent subscribes
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				id, _ := m.Subscribe(nil)
				m.Unsubscribe(id)
			}
		}()
	}

	// Concurrent broadcasts
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.Broadcast(makeEntry("concurrent"))
			}
		}()
	}

	wg.Wait()
}
