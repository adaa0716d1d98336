package server

import (
	"context"
	"testing"
	"time"
)

func TestChangeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewChangeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	message := ChangeMessage{
		UserID:         "user-1",
		EventType:      EventApplicationChanged,
		ApplicationIDs: []string{"app-a", "app-b"},
		Timestamp:      time.Now().UTC(),
	}
	dispatcher.Publish(message)

	select {
	case received := <-stream:
		if received.EventType != EventApplicationChanged {
			t.Fatalf("expected event type %s, got %s", EventApplicationChanged, received.EventType)
		}
		if len(received.ApplicationIDs) != 2 {
			t.Fatalf("expected 2 application ids, got %d", len(received.ApplicationIDs))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected change message within deadline")
	}
}

func TestChangeDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewChangeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "user-3")
	defer otherCleanup()

	dispatcher.Publish(ChangeMessage{
		UserID:         "user-3",
		EventType:      EventApplicationChanged,
		ApplicationIDs: []string{"app-c"},
		Timestamp:      time.Now().UTC(),
	})

	select {
	case <-userStream:
		t.Fatal("did not expect change message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.UserID != "user-3" {
			t.Fatalf("expected user-3, received %s", msg.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected change message for subscribed user")
	}
}

func TestChangeDispatcherUnsubscribeOnContextCancel(t *testing.T) {
	dispatcher := NewChangeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	stream, cleanup := dispatcher.Subscribe(ctx, "user-4")
	defer cleanup()

	cancel()

	deadline := time.After(time.Second)
	for {
		dispatcher.mu.RLock()
		_, registered := dispatcher.subscribers["user-4"]
		dispatcher.mu.RUnlock()
		if !registered {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected subscriber removal after context cancellation")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// publishing after removal must not panic or deliver.
	dispatcher.Publish(ChangeMessage{
		UserID:         "user-4",
		EventType:      EventApplicationChanged,
		ApplicationIDs: []string{"app-d"},
		Timestamp:      time.Now().UTC(),
	})
	select {
	case _, open := <-stream:
		if open {
			t.Fatal("did not expect delivery after unsubscribe")
		}
	default:
	}
}

func TestChangeDispatcherIgnoresEmptyMessages(t *testing.T) {
	dispatcher := NewChangeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-5")
	defer cleanup()

	dispatcher.Publish(ChangeMessage{UserID: "", EventType: EventApplicationChanged})
	dispatcher.Publish(ChangeMessage{UserID: "user-5", EventType: ""})

	select {
	case <-stream:
		t.Fatal("did not expect delivery for incomplete messages")
	case <-time.After(100 * time.Millisecond):
	}
}
