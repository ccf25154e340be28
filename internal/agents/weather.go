package agents

import (
	"context"

	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/eventctx"
	"github.com/huangdanqi/pawprint/internal/prompts"
)

// WeatherAgent writes entries about weather and season events.
type WeatherAgent struct {
	core
}

var weatherFallbacks = map[string]fallbackEntry{
	"favorite_weather": {
		Title:   "Sky!",
		Content: "My favorite weather is here today!",
		Tags:    []diary.EmotionTag{diary.EmotionHappyJoyful},
	},
	"dislike_weather": {
		Title:   "Ugh",
		Content: "I do not like this weather at all.",
		Tags:    []diary.EmotionTag{diary.EmotionSadUpset},
	},
	"favorite_season": {
		Title:   "Season",
		Content: "My favorite season has come back!",
		Tags:    []diary.EmotionTag{diary.EmotionExcitedThrilled},
	},
	"dislike_season": {
		Title:   "Hmph",
		Content: "Not my season. I will nap it away.",
		Tags:    []diary.EmotionTag{diary.EmotionSadUpset},
	},
}

// NewWeatherAgent builds the weather agent.
func NewWeatherAgent(deps Deps) *WeatherAgent {
	return &WeatherAgent{
		core: newCore("weather_agent", mapKeys(weatherFallbacks), deps),
	}
}

// ProcessEvent implements Agent.
func (a *WeatherAgent) ProcessEvent(ctx context.Context, ev *event.Event) (*diary.Entry, error) {
	return a.run(ctx, ev, plan{
		prompts: func(d *eventctx.Data) (string, string) {
			return prompts.WeatherPrompt(ev.EventName, d)
		},
		fallback: weatherFallbacks[ev.EventName],
	})
}

// mapKeys collects the supported event names from a fallback table.
func mapKeys(m map[string]fallbackEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
