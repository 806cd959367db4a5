// Package event provides the in-memory notification bus connecting the hub
// core to its transports.
package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topics published by the hub core.
const (
	TopicHubLoaded           = "hub.loaded"
	TopicDeviceDiscovered    = "device.discovered"
	TopicDeviceSetupFinished = "device.setup_finished"
	TopicDeviceStateChanged  = "device.state_changed"
	TopicDeviceEvent         = "device.event"
	TopicDeviceRemoved       = "device.removed"
	TopicActionFinished      = "action.finished"
	TopicPairingFinished     = "pairing.finished"
)

// Notification is one bus message. Payload carries a topic-specific struct
// defined by the publisher.
type Notification struct {
	Topic     string
	Payload   any
	Timestamp time.Time
}

// Handler processes a notification. Handlers must not block for long; slow
// consumers should hand off to their own goroutine.
type Handler func(ctx context.Context, n Notification)

// Bus is an in-memory notification bus. Publish is synchronous (handlers run
// in the caller's goroutine); PublishAsync dispatches handlers in separate
// goroutines.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]handlerEntry // topic -> handlers
	allSubs  []handlerEntry            // handlers subscribed to all topics
	nextID   uint64
	logger   *zap.Logger
}

type handlerEntry struct {
	id      uint64
	handler Handler
}

// NewBus creates a new in-memory notification bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]handlerEntry),
		logger:   logger,
	}
}

// Publish dispatches a notification synchronously to all matching handlers.
func (b *Bus) Publish(ctx context.Context, n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	b.mu.RLock()
	topicHandlers := make([]handlerEntry, len(b.handlers[n.Topic]))
	copy(topicHandlers, b.handlers[n.Topic])
	allHandlers := make([]handlerEntry, len(b.allSubs))
	copy(allHandlers, b.allSubs)
	b.mu.RUnlock()

	for _, h := range topicHandlers {
		b.safeCall(ctx, h.handler, n)
	}
	for _, h := range allHandlers {
		b.safeCall(ctx, h.handler, n)
	}
}

// PublishAsync dispatches a notification asynchronously to all matching handlers.
func (b *Bus) PublishAsync(ctx context.Context, n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	b.mu.RLock()
	topicHandlers := make([]handlerEntry, len(b.handlers[n.Topic]))
	copy(topicHandlers, b.handlers[n.Topic])
	allHandlers := make([]handlerEntry, len(b.allSubs))
	copy(allHandlers, b.allSubs)
	b.mu.RUnlock()

	for _, h := range topicHandlers {
		go b.safeCall(ctx, h.handler, n)
	}
	for _, h := range allHandlers {
		go b.safeCall(ctx, h.handler, n)
	}
}

// Subscribe registers a handler for a specific topic. Returns an unsubscribe function.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[topic] = append(b.handlers[topic], handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[topic]
		for i, e := range entries {
			if e.id == id {
				b.handlers[topic] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a handler for all topics. Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.allSubs = append(b.allSubs, handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.allSubs {
			if e.id == id {
				b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) safeCall(ctx context.Context, handler Handler, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notification handler panicked",
				zap.String("topic", n.Topic),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, n)
}
