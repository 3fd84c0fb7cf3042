package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"alert-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(hub *Hub, buffer int) *Client {
	return &Client{hub: hub, send: make(chan []byte, buffer)}
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if connected, _ := hub.GetStats(); connected == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	connected, _ := hub.GetStats()
	t.Fatalf("expected %d connected clients, got %d", want, connected)
}

func receive(t *testing.T, client *Client) models.BroadcastMessage {
	t.Helper()
	select {
	case data, ok := <-client.send:
		require.True(t, ok, "send channel closed")
		var message models.BroadcastMessage
		require.NoError(t, json.Unmarshal(data, &message))
		return message
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return models.BroadcastMessage{}
	}
}

func TestHubBroadcastsAlertCreated(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	first := newTestClient(hub, 4)
	second := newTestClient(hub, 4)
	hub.Register <- first
	hub.Register <- second
	waitForClients(t, hub, 2)

	lat := 10.0
	hub.BroadcastAlertCreated(&models.Alert{ID: 7, UserID: 3, TypeID: 1, Latitude: &lat, State: models.StateActive})

	for _, client := range []*Client{first, second} {
		message := receive(t, client)
		assert.Equal(t, "alert-created", message.Type)

		payload, ok := message.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(7), payload["id"])
		assert.Equal(t, float64(models.StateActive), payload["estado"])
	}

	_, lastAlertID := hub.GetStats()
	assert.Equal(t, int64(7), lastAlertID)
}

func TestHubBroadcastsAlertResolved(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub, 4)
	hub.Register <- client
	waitForClients(t, hub, 1)

	hub.BroadcastAlertResolved(9, models.StateResolved, "false alarm")

	message := receive(t, client)
	assert.Equal(t, "alert-resolved", message.Type)

	payload, ok := message.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(9), payload["id"])
	assert.Equal(t, float64(models.StateResolved), payload["estado"])
	assert.Equal(t, "false alarm", payload["feedback"])
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	slow := newTestClient(hub, 1)
	hub.Register <- slow
	waitForClients(t, hub, 1)

	// First event fills the buffer, second finds it full and evicts.
	hub.BroadcastAlertResolved(1, models.StateResolved, "a")
	hub.BroadcastAlertResolved(2, models.StateResolved, "b")
	waitForClients(t, hub, 0)
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub, 4)
	hub.Register <- client
	waitForClients(t, hub, 1)

	hub.Unregister <- client
	waitForClients(t, hub, 0)

	// Unregistering closes the send channel.
	select {
	case _, ok := <-client.send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed")
	}
}

func TestHubConcurrentRegisterAndBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			client := newTestClient(hub, 1)
			hub.Register <- client
			hub.Unregister <- client
		}
	}()

	for i := 0; i < 50; i++ {
		hub.BroadcastAlertResolved(int64(i), models.StateResolved, "ok")
	}

	<-done
	waitForClients(t, hub, 0)
}

func TestLateSubscriberMissesPriorEvents(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	early := newTestClient(hub, 4)
	hub.Register <- early
	waitForClients(t, hub, 1)

	hub.BroadcastAlertResolved(5, models.StateResolved, "done")
	receive(t, early)

	late := newTestClient(hub, 4)
	hub.Register <- late
	waitForClients(t, hub, 2)

	select {
	case <-late.send:
		t.Fatal("late subscriber received an event broadcast before it joined")
	case <-time.After(100 * time.Millisecond):
	}
}
