package eventctx

import (
	"context"

	"github.com/huangdanqi/pawprint/internal/config"
	"github.com/huangdanqi/pawprint/internal/event"
)

// SyntheticReader assembles context from config alone: the owner
// profile plus whatever the event payload carries. It never fails, so
// it also serves as the base layer under richer readers.
type SyntheticReader struct {
	owner config.OwnerConfig
}

// NewSyntheticReader builds a reader over the configured owner profile.
func NewSyntheticReader(owner config.OwnerConfig) *SyntheticReader {
	return &SyntheticReader{owner: owner}
}

// ReadEventContext assembles a snapshot from the owner profile and the
// event payload.
func (r *SyntheticReader) ReadEventContext(_ context.Context, ev *event.Event) (*Data, error) {
	d := &Data{
		UserProfile:   r.profile(ev.UserID),
		EventDetails:  eventDetails(ev),
		Environmental: map[string]any{},
		Social:        map[string]any{},
		Emotional:     map[string]any{},
		Temporal:      temporal(ev.Timestamp),
	}
	if r.owner.City != "" {
		d.Environmental["city"] = r.owner.City
	}
	enrichByCategory(d, ev)
	return d, nil
}

// UserPreferences returns the configured taste profile.
func (r *SyntheticReader) UserPreferences(_ context.Context, userID string) (map[string]any, error) {
	prefs := map[string]any{}
	if len(r.owner.FavoriteWeathers) > 0 {
		prefs["favorite_weathers"] = r.owner.FavoriteWeathers
	}
	if len(r.owner.DislikedWeathers) > 0 {
		prefs["disliked_weathers"] = r.owner.DislikedWeathers
	}
	if len(r.owner.FavoriteSeasons) > 0 {
		prefs["favorite_seasons"] = r.owner.FavoriteSeasons
	}
	if len(r.owner.DislikedSeasons) > 0 {
		prefs["disliked_seasons"] = r.owner.DislikedSeasons
	}
	return prefs, nil
}

func (r *SyntheticReader) profile(userID string) map[string]any {
	p := map[string]any{"user_id": userID}
	if r.owner.Name != "" {
		p["owner_name"] = r.owner.Name
	}
	if r.owner.City != "" {
		p["city"] = r.owner.City
	}
	return p
}

// enrichByCategory moves well-known payload fields into the section
// the prompt builders read them from.
func enrichByCategory(d *Data, ev *event.Event) {
	switch ev.EventType {
	case "weather":
		if w, ok := ev.ContextString("weather"); ok {
			d.Environmental["weather"] = w
		}
		if s, ok := ev.ContextString("season"); ok {
			d.Environmental["season"] = s
		}
	case "holiday":
		for _, key := range []string{"holiday_name", "days_to_holiday", "anticipation_level", "emotional_intensity"} {
			if v, ok := ev.Context[key]; ok {
				d.EventDetails[key] = v
			}
		}
	case "friend":
		if name, ok := ev.ContextString("friend_name"); ok {
			d.Social["friend_name"] = name
		}
	case "interaction":
		if kind, ok := ev.ContextString("interaction_type"); ok {
			d.EventDetails["interaction_type"] = kind
		}
		if n, ok := ev.ContextFloat("count"); ok {
			d.EventDetails["count"] = n
		}
	case "neglect":
		if days, ok := ev.ContextFloat("neglect_days"); ok {
			d.EventDetails["neglect_days"] = days
		}
	case "sensor":
		for _, key := range []string{"sensor", "magnitude", "duration_ms"} {
			if v, ok := ev.Context[key]; ok {
				d.EventDetails[key] = v
			}
		}
	}
}
