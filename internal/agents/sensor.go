package agents

import (
	"context"

	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/eventctx"
	"github.com/huangdanqi/pawprint/internal/prompts"
)

// SensorAgent writes entries for physical sensor events. Sensor
// responses use the description-only JSON shape; the title and tags
// come from the sensation table.
type SensorAgent struct {
	core
}

var sensorFallbacks = map[string]fallbackEntry{
	"sensor_shake": {
		Title:   "Whoa!",
		Content: "Everything shook side to side!",
		Tags:    []diary.EmotionTag{diary.EmotionSurprised},
	},
	"sensor_double_tap": {
		Title:   "Taps",
		Content: "Two little taps on my shell.",
		Tags:    []diary.EmotionTag{diary.EmotionCurious},
	},
	"sensor_freefall": {
		Title:   "Eek!",
		Content: "I fell! My tummy did a flip!",
		Tags:    []diary.EmotionTag{diary.EmotionSurprised, diary.EmotionAnxious},
	},
	"sensor_tilt": {
		Title:   "Tilt",
		Content: "The whole world tipped over.",
		Tags:    []diary.EmotionTag{diary.EmotionCurious},
	},
}

// NewSensorAgent builds the sensor agent.
func NewSensorAgent(deps Deps) *SensorAgent {
	return &SensorAgent{
		core: newCore("sensor_agent", mapKeys(sensorFallbacks), deps),
	}
}

// ProcessEvent implements Agent.
func (a *SensorAgent) ProcessEvent(ctx context.Context, ev *event.Event) (*diary.Entry, error) {
	return a.run(ctx, ev, plan{
		prompts: func(d *eventctx.Data) (string, string) {
			return prompts.SensorPrompt(ev.EventName, d)
		},
		fallback:        sensorFallbacks[ev.EventName],
		descriptionOnly: true,
	})
}
