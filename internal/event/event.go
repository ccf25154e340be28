// Package event defines the life event model and the event taxonomy
// that routing and eligibility checks consult. An event is immutable
// input: created by a trigger source (MQTT payload, API call, CLI),
// consumed once by the pipeline, never mutated.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is one discrete life event observed for the toy.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"` // category key, e.g. "weather"
	EventName string         `json:"event_name"` // specific trigger, e.g. "favorite_weather"
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"user_id"`
	Context   map[string]any `json:"context_data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// New builds an event stamped with a fresh UUIDv7 and the current
// time. UUIDv7 keeps event IDs roughly time-sortable in logs.
func New(eventType, eventName, userID string, contextData map[string]any) *Event {
	return &Event{
		EventID:   uuid.Must(uuid.NewV7()).String(),
		EventType: eventType,
		EventName: eventName,
		Timestamp: time.Now(),
		UserID:    userID,
		Context:   contextData,
	}
}

// Validate checks the fields every pipeline stage relies on.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("nil event")
	}
	if e.EventID == "" {
		return fmt.Errorf("event missing event_id")
	}
	if e.EventName == "" {
		return fmt.Errorf("event %s missing event_name", e.EventID)
	}
	if e.EventType == "" {
		return fmt.Errorf("event %s (%s) missing event_type", e.EventID, e.EventName)
	}
	if e.UserID == "" {
		return fmt.Errorf("event %s (%s) missing user_id", e.EventID, e.EventName)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event %s (%s) missing timestamp", e.EventID, e.EventName)
	}
	return nil
}

// ContextString returns a string field from context data, with ok
// reporting presence. Non-string values are formatted.
func (e *Event) ContextString(key string) (string, bool) {
	if e.Context == nil {
		return "", false
	}
	v, ok := e.Context[key]
	if !ok {
		return "", false
	}
	if s, isStr := v.(string); isStr {
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}

// ContextFloat returns a numeric field from context data. JSON
// decoding produces float64; ints from Go callers are widened.
func (e *Event) ContextFloat(key string) (float64, bool) {
	if e.Context == nil {
		return 0, false
	}
	switch v := e.Context[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
