package events

import (
	"sync"
	"time"
)

// Name enumerates the events the sync engine surfaces to its host
// application (the UI layer, out of scope for this engine).
type Name string

const (
	Connected              Name = "connected"
	Disconnected           Name = "disconnected"
	ReconnectFailed        Name = "reconnect-failed"
	Message                Name = "message"
	SyncStart              Name = "sync-start"
	SyncComplete           Name = "sync-complete"
	SyncError              Name = "sync-error"
	SyncCountChange        Name = "sync-count-change"
	SyncRemoteUpdate       Name = "sync-remote-update"
	Upload                 Name = "upload"
	UploadSuccess          Name = "upload-success"
	UploadRetry            Name = "upload-retry"
	UploadPermanentFailure Name = "upload-permanent-failure"
	QueueChange            Name = "queue-change"
	EncryptionRequired     Name = "encryption-required"
	AuthRequired           Name = "auth-required"
	ConflictAdded          Name = "conflict-added"
	ConflictResolved       Name = "conflict-resolved"
	TokenRefreshed         Name = "token-refreshed"
	TokenCleared           Name = "token-cleared"
)

// Event is one item the Bus distributes to its subscribers.
type Event struct {
	Name      Name
	Timestamp time.Time
	Payload   any
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// Bus is an in-memory, non-blocking pub/sub event broker: every engine
// component that produces a lifecycle signal publishes here, and the
// host application subscribes to drive its UI without holding a
// reference to any specific component.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan Event
	stopCh      chan struct{}
}

// NewBus creates a Bus. Call Start before publishing.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the bus's distribution loop.
func (b *Bus) Start() {
	go b.run()
}

// Stop halts distribution. Subscriber channels stay open; Unsubscribe
// is what closes one.
func (b *Bus) Stop() {
	close(b.stopCh)
}

// Subscribe returns a channel that receives every published event.
func (b *Bus) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes a subscription.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues event for distribution, stamping its timestamp if unset.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// Emit is the convenience form used by components that only have a name
// and a payload; it satisfies tokens.Emitter.
func (b *Bus) Emit(name string, payload any) {
	b.Publish(Event{Name: Name(name), Payload: payload})
}

func (b *Bus) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full; drop rather than block the bus.
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
