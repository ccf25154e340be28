// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (pipeline, quota manager,
// recovery orchestrator, MQTT link, health monitor) to subscribers
// (WebSocket handler, future metrics collector). The bus is nil-safe:
// calling Publish on a nil *Bus is a no-op, so components do not need
// guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourcePipeline identifies events from the event processing pipeline.
	SourcePipeline = "pipeline"
	// SourceAgent identifies events from a diary sub-agent.
	SourceAgent = "agent"
	// SourceQuota identifies events from the daily quota manager.
	SourceQuota = "quota"
	// SourceRecovery identifies events from the recovery orchestrator.
	SourceRecovery = "recovery"
	// SourceMQTT identifies events from the device MQTT link.
	SourceMQTT = "mqtt"
	// SourceHealth identifies events from the health monitor.
	SourceHealth = "health"
)

// Kind constants describe the type of event within a source.
const (
	// KindEventReceived signals a life event entered the pipeline.
	// Data: event_id, event_name, event_type, user_id.
	KindEventReceived = "event_received"
	// KindEventSkipped signals an event was dropped before generation.
	// Data: event_id, event_name, reason (quota_exhausted,
	// duplicate_type, unknown_event, invalid_event).
	KindEventSkipped = "event_skipped"
	// KindEventRouted signals an event was matched to a sub-agent.
	// Data: event_id, event_name, agent.
	KindEventRouted = "event_routed"
	// KindEntryCreated signals a diary entry was written.
	// Data: event_id, entry_id, agent, provider, fallback.
	KindEntryCreated = "entry_created"
	// KindFallbackUsed signals generation fell back to a template.
	// Data: event_id, agent, reason.
	KindFallbackUsed = "fallback_used"
	// KindContextDegraded signals context assembly used the minimal
	// snapshot. Data: event_id, reason.
	KindContextDegraded = "context_degraded"

	// KindQuotaReset signals a new diary day began.
	// Data: date, total.
	KindQuotaReset = "quota_reset"
	// KindQuotaExhausted signals the day's quota was used up.
	// Data: date, total.
	KindQuotaExhausted = "quota_exhausted"

	// KindBreakerState signals a circuit breaker transition.
	// Data: component, from, to.
	KindBreakerState = "breaker_state"
	// KindRecoveryAlert signals the orchestrator raised an alert.
	// Data: alert_id, severity, component, category, manual.
	KindRecoveryAlert = "recovery_alert"

	// KindDeviceMessage signals an MQTT payload arrived from the device.
	// Data: topic, event_name, event_id.
	KindDeviceMessage = "device_message"

	// KindComponentStatus signals a monitored component changed state.
	// Data: component, status.
	KindComponentStatus = "component_status"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop the event rather than block.
		}
	}
}

// Emit is a convenience wrapper that stamps the current time.
// Safe on a nil receiver.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
