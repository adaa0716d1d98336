package server

import (
	"context"
	"sync"
	"time"
)

const (
	// EventApplicationChanged is emitted after any successful mutation of a
	// user's applications or notes.
	EventApplicationChanged = "application-change"
	eventHeartbeat          = "heartbeat"
	eventSourceBackend      = "careerhub-backend"

	heartbeatInterval = 25 * time.Second
)

// ChangeMessage describes one application-change event for a single user.
type ChangeMessage struct {
	UserID         string
	EventType      string
	ApplicationIDs []string
	Timestamp      time.Time
}

// ChangeDispatcher fans application-change events out to per-user SSE
// subscribers. Delivery is best effort: a subscriber with a full buffer
// misses the event rather than blocking the publisher.
type ChangeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*changeSubscriber
	nextID      int64
	bufferSize  int
}

type changeSubscriber struct {
	id     int64
	stream chan ChangeMessage
}

// NewChangeDispatcher constructs an empty dispatcher.
func NewChangeDispatcher() *ChangeDispatcher {
	return &ChangeDispatcher{
		subscribers: make(map[string]map[int64]*changeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for the user. The stream is cleaned up when
// the context is cancelled or the returned cleanup function is called.
func (d *ChangeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan ChangeMessage, func()) {
	if userID == "" {
		ch := make(chan ChangeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &changeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan ChangeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(userID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every subscriber of the message's user.
func (d *ChangeDispatcher) Publish(message ChangeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*changeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *ChangeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *ChangeDispatcher) registerSubscriber(userID string, subscriber *changeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*changeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *ChangeDispatcher) unregisterSubscriber(userID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}
