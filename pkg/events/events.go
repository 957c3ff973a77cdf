package events

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventDeploymentCreated  EventType = "deployment.created"
	EventDeploymentRunning  EventType = "deployment.running"
	EventDeploymentComplete EventType = "deployment.completed"
	EventDeploymentFailed   EventType = "deployment.failed"
	EventJobStarted         EventType = "job.started"
	EventJobSucceeded       EventType = "job.succeeded"
	EventJobFailed          EventType = "job.failed"
	EventCertificateIssued  EventType = "certificate.issued"
	EventCertificateRenewed EventType = "certificate.renewed"
	EventCertificateFailed  EventType = "certificate.failed"
	EventMonitorCreated     EventType = "monitor.created"
	EventMonitorStatusFlip  EventType = "monitor.status_flip"
)

// Event represents a single occurrence broadcast through the Broker
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

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
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

// MonitorCreatedPayload carries the identifiers needed to check a newly
// created monitor without waiting for the health scheduler's next tick.
type MonitorCreatedPayload struct {
	MonitorID     string
	EnvironmentID string
}

// PublishMonitorCreated emits an EventMonitorCreated event carrying
// monitorID/environmentID in its Metadata, consumed by the health
// scheduler's JobReceiver subscription.
func (b *Broker) PublishMonitorCreated(monitorID, environmentID string) {
	b.Publish(&Event{
		Type: EventMonitorCreated,
		Metadata: map[string]string{
			"monitor_id":     monitorID,
			"environment_id": environmentID,
		},
	})
}

// JobReceiver is the narrow read side of a Broker subscription the health
// scheduler consumes to react to MonitorCreated events in realtime instead
// of waiting for its periodic tick.
type JobReceiver interface {
	// Next blocks until an event arrives or ctx is done.
	Next(ctx context.Context) (*Event, error)
}

// subscriberReceiver adapts a Subscriber channel to the JobReceiver
// interface.
type subscriberReceiver struct {
	broker *Broker
	sub    Subscriber
}

// NewJobReceiver subscribes to broker and returns a JobReceiver. Callers
// must call Close when done to release the subscription.
func NewJobReceiver(broker *Broker) *subscriberReceiver {
	return &subscriberReceiver{broker: broker, sub: broker.Subscribe()}
}

// Next implements JobReceiver.
func (r *subscriberReceiver) Next(ctx context.Context) (*Event, error) {
	select {
	case ev, ok := <-r.sub:
		if !ok {
			return nil, fmt.Errorf("events: subscription closed")
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases the underlying subscription.
func (r *subscriberReceiver) Close() {
	r.broker.Unsubscribe(r.sub)
}
