package events

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventJobAdmitted        EventType = "job_admitted"
	EventJobCompleted       EventType = "job_completed"
	EventQuotaApplied       EventType = "quota_applied"
	EventViolationDetected  EventType = "violation_detected"
	EventBottleneckActive   EventType = "bottleneck_active"
	EventBottleneckResolved EventType = "bottleneck_resolved"
	EventPlanGenerated      EventType = "plan_generated"
	EventPlanExecuted       EventType = "plan_executed"
	EventActionFailed       EventType = "action_failed"
	EventComponentUnhealthy EventType = "component_unhealthy"
)

// CurrentVersion is the payload schema version stamped onto every Event.
// Consumers check V before decoding Data so the schema can evolve without
// breaking older subscribers.
const CurrentVersion = 1

// Event represents a control-plane event.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	V         int
	Data      map[string]any
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
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

// Publish publishes an event to all subscribers. Timestamp and V are
// stamped here if unset so callers only need to set Type and Data.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.V == 0 {
		event.V = CurrentVersion
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
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
