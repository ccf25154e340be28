// Package eventctx assembles the context snapshot a sub-agent feeds
// into prompt building: who the owner is, what just happened, and the
// emotional and social state around it. Readers may fail (database
// gone, tables empty); the pipeline then degrades to Minimal rather
// than dropping the event.
package eventctx

import (
	"context"
	"time"

	"github.com/huangdanqi/pawprint/internal/event"
)

// Data is one assembled context snapshot. Sections are free-form maps
// so readers of different richness can fill what they know; prompt
// builders tolerate missing keys.
type Data struct {
	UserProfile   map[string]any `json:"user_profile"`
	EventDetails  map[string]any `json:"event_details"`
	Environmental map[string]any `json:"environmental"`
	Social        map[string]any `json:"social"`
	Emotional     map[string]any `json:"emotional"`
	Temporal      map[string]any `json:"temporal"`

	// Degraded marks a snapshot built without a context source. Set by
	// Minimal; agents report it so the entry's thinner grounding is
	// visible in logs.
	Degraded bool `json:"degraded,omitempty"`
}

// Reader assembles context for an event. Implementations must be safe
// for concurrent use; the pipeline calls them from multiple workers.
type Reader interface {
	ReadEventContext(ctx context.Context, ev *event.Event) (*Data, error)
	UserPreferences(ctx context.Context, userID string) (map[string]any, error)
}

// Minimal builds the degraded snapshot used when every reader fails:
// just the event's own payload plus temporal fields. Generation can
// always proceed on it.
func Minimal(ev *event.Event) *Data {
	d := &Data{
		UserProfile:   map[string]any{"user_id": ev.UserID},
		EventDetails:  eventDetails(ev),
		Environmental: map[string]any{},
		Social:        map[string]any{},
		Emotional:     map[string]any{},
		Temporal:      temporal(ev.Timestamp),
		Degraded:      true,
	}
	return d
}

// eventDetails copies the event identity and payload into one map.
func eventDetails(ev *event.Event) map[string]any {
	details := map[string]any{
		"event_name": ev.EventName,
		"event_type": ev.EventType,
	}
	for k, v := range ev.Context {
		details[k] = v
	}
	return details
}

// temporal returns the local-time fields every snapshot carries.
func temporal(t time.Time) map[string]any {
	local := t.Local()
	return map[string]any{
		"date":        local.Format("2006-01-02"),
		"time":        local.Format("15:04"),
		"weekday":     local.Weekday().String(),
		"part_of_day": partOfDay(local.Hour()),
		"season":      season(local.Month()),
	}
}

func partOfDay(hour int) string {
	switch {
	case hour < 6:
		return "night"
	case hour < 12:
		return "morning"
	case hour < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// season uses northern-hemisphere meteorological seasons.
func season(m time.Month) string {
	switch m {
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	case time.September, time.October, time.November:
		return "autumn"
	default:
		return "winter"
	}
}
