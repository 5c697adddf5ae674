package fanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowgrid/platform/internal/platform/logger"
)

func newTestClient(h *Hub, executionID string) *Client {
	return &Client{hub: h, executionID: executionID, send: make(chan []byte, 4), log: h.log}
}

func TestHubBroadcastsOnlyToSubscribersOfExecution(t *testing.T) {
	h := NewHub(logger.New("error", "json"))
	go h.Run()

	c1 := newTestClient(h, "exec-1")
	c2 := newTestClient(h, "exec-2")
	h.register <- c1
	h.register <- c2

	h.Broadcast(&Message{ExecutionID: "exec-1", Data: []byte(`{"status":"running"}`)})

	select {
	case msg := <-c1.send:
		require.Equal(t, `{"status":"running"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for c1 message")
	}

	select {
	case msg := <-c2.send:
		t.Fatalf("c2 should not have received a message, got %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	h := NewHub(logger.New("error", "json"))
	go h.Run()

	c := newTestClient(h, "exec-1")
	h.register <- c
	h.unregister <- c

	time.Sleep(50 * time.Millisecond)

	_, ok := <-c.send
	require.False(t, ok)
	require.Equal(t, 0, h.ConnectionCount())
}
