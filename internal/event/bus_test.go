package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []Notification
	bus.Subscribe(TopicDeviceStateChanged, func(_ context.Context, n Notification) {
		got = append(got, n)
	})

	bus.Publish(context.Background(), Notification{
		Topic:   TopicDeviceStateChanged,
		Payload: "payload",
	})
	bus.Publish(context.Background(), Notification{
		Topic:   TopicDeviceRemoved, // different topic, must not be delivered
		Payload: "other",
	})

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if got[0].Payload != "payload" {
		t.Errorf("payload = %v", got[0].Payload)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	calls := 0
	unsub := bus.Subscribe(TopicHubLoaded, func(context.Context, Notification) { calls++ })

	bus.Publish(context.Background(), Notification{Topic: TopicHubLoaded})
	unsub()
	bus.Publish(context.Background(), Notification{Topic: TopicHubLoaded})

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestSubscribeAll_receivesEveryTopic(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var topics []string
	unsub := bus.SubscribeAll(func(_ context.Context, n Notification) {
		topics = append(topics, n.Topic)
	})
	defer unsub()

	bus.Publish(context.Background(), Notification{Topic: TopicDeviceEvent})
	bus.Publish(context.Background(), Notification{Topic: TopicActionFinished})

	if len(topics) != 2 || topics[0] != TopicDeviceEvent || topics[1] != TopicActionFinished {
		t.Errorf("topics = %v", topics)
	}
}

func TestPublish_recoversPanickingHandler(t *testing.T) {
	bus := NewBus(zap.NewNop())

	bus.Subscribe(TopicPairingFinished, func(context.Context, Notification) {
		panic("boom")
	})
	called := false
	bus.Subscribe(TopicPairingFinished, func(context.Context, Notification) {
		called = true
	})

	bus.Publish(context.Background(), Notification{Topic: TopicPairingFinished})

	if !called {
		t.Error("panic in one handler stopped delivery to the next")
	}
}

func TestPublishAsync(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var (
		mu   sync.Mutex
		seen int
	)
	done := make(chan struct{}, 1)
	bus.SubscribeAll(func(context.Context, Notification) {
		mu.Lock()
		seen++
		mu.Unlock()
		done <- struct{}{}
	})

	bus.PublishAsync(context.Background(), Notification{Topic: TopicDeviceDiscovered})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handler never ran")
	}
	mu.Lock()
	defer mu.Unlock()
	if seen != 1 {
		t.Errorf("handler called %d times, want 1", seen)
	}
}
