package prompts

import (
	"fmt"

	"github.com/huangdanqi/pawprint/internal/eventctx"
)

// weatherUserTemplate builds the user turn for weather and season
// events. Format verbs: (1) feeling line, (2) rendered context.
const weatherUserTemplate = `Today's weather moment: %s

What you know right now:
%s

Write your diary entry about it.`

// weatherFeelings maps event names to the stance the entry should
// take. Unknown names fall back to a neutral line.
var weatherFeelings = map[string]string{
	"favorite_weather": "the weather outside is one of your favorites",
	"dislike_weather":  "the weather outside is one you dislike",
	"favorite_season":  "your favorite season has arrived",
	"dislike_season":   "a season you dislike has arrived",
}

// WeatherPrompt returns the system and user prompts for a weather
// category event.
func WeatherPrompt(eventName string, d *eventctx.Data) (system, user string) {
	feeling, ok := weatherFeelings[eventName]
	if !ok {
		feeling = "you noticed the weather outside"
	}
	system = systemPrompt("You love watching the sky and notice every change in the weather.")
	user = fmt.Sprintf(weatherUserTemplate, feeling,
		renderContext(d, d.Environmental, d.UserProfile, d.Temporal))
	return system, user
}
