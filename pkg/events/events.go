package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/pcsd/pkg/log"
)

// EventType represents the type of event
type EventType string

const (
	EventTokenIssued       EventType = "token.issued"
	EventAuthFailed        EventType = "auth.failed"
	EventUserCreated       EventType = "user.created"
	EventPeerAuthenticated EventType = "peer.authenticated"
	EventPeerRemoved       EventType = "peer.removed"
	EventClusterAdded      EventType = "cluster.added"
	EventClusterRemoved    EventType = "cluster.removed"
	EventCommandSucceeded  EventType = "command.succeeded"
	EventCommandFailed     EventType = "command.failed"
	EventCommandForwarded  EventType = "command.forwarded"
)

// Event is one audit record
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. It is safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues an event for all subscribers. Events are dropped when the
// queue is full or the broker is stopped; publishing never blocks a request.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.stopCh:
		return
	default:
	}

	select {
	case b.eventCh <- event:
	default:
		logger := log.WithComponent("events")
		logger.Warn().Str("type", string(event.Type)).Msg("event queue full, dropping event")
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// LogEvents writes every event published on b to the audit log until the
// returned stop function is called
func LogEvents(b *Broker) (stop func()) {
	sub := b.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for event := range sub {
			Audit(event)
		}
	}()

	return func() {
		b.Unsubscribe(sub)
		<-done
	}
}

// Audit writes one event to the audit log synchronously. Short-lived
// commands use it in place of a broker.
func Audit(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logger := log.WithComponent("audit")
	entry := logger.Info().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Time("at", event.Timestamp)
	for k, v := range event.Metadata {
		entry = entry.Str(k, v)
	}
	entry.Msg(event.Message)
}
