package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub()
	go h.Run(ctx)
	return h, cancel
}

func TestSlowSubscriberEvictionDoesNotPanicSenders(t *testing.T) {
	h, _ := runHub(t)

	conn := h.NewConnection(nil, "c1")
	conn.Send = make(chan []byte, 1)
	h.Register(conn)
	require.Eventually(t, func() bool { return h.HasSubscribers("c1") }, 2*time.Second, 5*time.Millisecond)

	// A reader goroutine keeps replying on the connection the way the
	// websocket read loop does while the hub evicts it.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			err := h.SendJSON(conn, &Message{Type: TypeError, Message: "late"})
			if err == ErrConnectionClosed {
				return
			}
		}
	}()

	for i := 0; i < 5; i++ {
		h.Publish("c1", &Message{Type: TypePoll, Attempt: i + 1})
	}

	require.Eventually(t, func() bool { return !h.HasSubscribers("c1") }, 2*time.Second, 5*time.Millisecond)
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("evicted connection was not marked done")
	}
	wg.Wait()

	assert.NotPanics(t, func() {
		assert.ErrorIs(t, h.SendJSON(conn, &Message{Type: TypeError}), ErrConnectionClosed)
	})
	assert.Equal(t, 0, h.ConnectionCount())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h, cancel := runHub(t)

	conn := h.NewConnection(nil, "c1")
	h.Register(conn)
	h.Unregister(conn)
	h.Unregister(conn)
	assert.Equal(t, 0, h.ConnectionCount())

	cancel()
	done := make(chan struct{})
	go func() {
		h.Unregister(conn)
		h.Register(h.NewConnection(nil, "c2"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Register/Unregister blocked after the hub stopped")
	}
}

func TestPublishSkipsClosedConnection(t *testing.T) {
	h, _ := runHub(t)

	conn := h.NewConnection(nil, "c1")
	h.Register(conn)
	conn.shutdown()

	marker := h.NewConnection(nil, "c2")
	h.Register(marker)
	require.Eventually(t, func() bool { return h.HasSubscribers("c2") }, 2*time.Second, 5*time.Millisecond)

	h.Publish("c1", &Message{Type: TypePoll, Attempt: 1})
	h.Publish("c1", &Message{Type: TypePoll, Attempt: 2})
	// Broadcasts are handled in order, so the marker's message arrives last.
	h.Publish("c2", &Message{Type: TypePoll, Attempt: 3})
	select {
	case <-marker.Send:
	case <-time.After(2 * time.Second):
		t.Fatal("marker message not delivered")
	}
	assert.Empty(t, conn.Send)
}

func TestBindClientAndClientIDConcurrently(t *testing.T) {
	h, _ := runHub(t)

	conn := h.NewConnection(nil, "c1")
	h.Register(conn)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if i%2 == 0 {
				h.BindClient(conn, "c2")
			} else {
				h.BindClient(conn, "c1")
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			id := h.ClientID(conn)
			assert.Contains(t, []string{"c1", "c2"}, id)
		}
	}()
	wg.Wait()

	h.BindClient(conn, "c3")
	assert.Equal(t, "c3", h.ClientID(conn))
	assert.True(t, h.HasSubscribers("c3"))
	assert.False(t, h.HasSubscribers("c1"))
	assert.False(t, h.HasSubscribers("c2"))
}
