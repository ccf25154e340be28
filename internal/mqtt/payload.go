package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/huangdanqi/pawprint/internal/event"
)

// devicePayload is the JSON body the device pushes to an events topic.
// The event name comes from the topic suffix; the body carries the
// user and any context data for the prompt builder.
type devicePayload struct {
	UserID  string         `json:"user_id"`
	Context map[string]any `json:"context,omitempty"`
}

// ParseEventTopic extracts the event name from a subscribed topic.
// Topics look like <prefix>/<device>/events/<event_name>; anything
// deeper or shallower is rejected.
func ParseEventTopic(topic, base string) (string, error) {
	suffix, ok := strings.CutPrefix(topic, base+"/events/")
	if !ok {
		return "", fmt.Errorf("topic %q outside %s/events/", topic, base)
	}
	if suffix == "" || strings.Contains(suffix, "/") {
		return "", fmt.Errorf("topic %q carries no event name", topic)
	}
	return suffix, nil
}

// ParseEventPayload turns a device payload into a pipeline event. The
// taxonomy resolves the event name to its category; unknown names and
// bodies without a user are rejected so the pipeline never sees them.
func ParseEventPayload(tax *event.Taxonomy, name, defaultUser string, payload []byte) (*event.Event, error) {
	eventType, ok := tax.TypeFor(name)
	if !ok {
		return nil, fmt.Errorf("unknown event name %q", name)
	}

	var body devicePayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("decode payload for %s: %w", name, err)
		}
	}

	userID := body.UserID
	if userID == "" {
		userID = defaultUser
	}
	if userID == "" {
		return nil, fmt.Errorf("payload for %s names no user and no owner is configured", name)
	}

	return event.New(eventType, name, userID, body.Context), nil
}
