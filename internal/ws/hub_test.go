package ws

import (
	"context"
	"testing"

	"github.com/hearth-home/hearth/internal/event"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestClient(remote string) *Client {
	return &Client{
		conn:   nil, // Not needed for hub tests
		remote: remote,
		send:   make(chan Message, 256),
		logger: testLogger(),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("10.0.0.1:1234")

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}

	// Verify channel is closed by attempting to receive.
	_, ok := <-client.send
	if ok {
		t.Error("client.send channel is not closed")
	}
}

func TestUnregisterNotRegistered(t *testing.T) {
	hub := NewHub(testLogger())
	client := newTestClient("10.0.0.1:1234")

	// Unregister without registering first should not panic.
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Unregister() panicked: %v", r)
		}
	}()

	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(testLogger())
	first := newTestClient("10.0.0.1:1234")
	second := newTestClient("10.0.0.2:1234")
	hub.Register(first)
	hub.Register(second)

	hub.Broadcast(Message{Type: "device.state_changed"})

	for _, c := range []*Client{first, second} {
		select {
		case msg := <-c.send:
			if msg.Type != "device.state_changed" {
				t.Errorf("message type = %q", msg.Type)
			}
		default:
			t.Errorf("client %s did not receive the broadcast", c.remote)
		}
	}
}

func TestBroadcast_FullBufferDropsMessage(t *testing.T) {
	hub := NewHub(testLogger())
	client := &Client{
		remote: "10.0.0.1:1234",
		send:   make(chan Message, 1),
		logger: testLogger(),
	}
	hub.Register(client)

	hub.Broadcast(Message{Type: "first"})
	hub.Broadcast(Message{Type: "second"}) // dropped, buffer full

	msg := <-client.send
	if msg.Type != "first" {
		t.Errorf("message type = %q, want %q", msg.Type, "first")
	}
	select {
	case msg := <-client.send:
		t.Errorf("unexpected second message %q", msg.Type)
	default:
	}
}

func TestHandler_ForwardsBusNotifications(t *testing.T) {
	bus := event.NewBus(testLogger())
	h := NewHandler(bus, testLogger())

	client := newTestClient("10.0.0.1:1234")
	h.hub.Register(client)

	bus.Publish(context.Background(), event.Notification{
		Topic:   event.TopicDeviceStateChanged,
		Payload: map[string]string{"deviceId": "x"},
	})

	select {
	case msg := <-client.send:
		if msg.Type != event.TopicDeviceStateChanged {
			t.Errorf("message type = %q", msg.Type)
		}
		if msg.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	default:
		t.Fatal("notification not forwarded to the client")
	}
}
