package prompts

import (
	"fmt"

	"github.com/huangdanqi/pawprint/internal/eventctx"
)

// sensorUserTemplate builds the user turn for device sensor events.
// Format verbs: (1) the physical sensation, (2) rendered context.
const sensorUserTemplate = `Your body just felt this: %s

What you know right now:
%s

Describe the sensation in one short first-person sentence.`

var sensorSensations = map[string]string{
	"sensor_shake":      "a sudden shaking, side to side",
	"sensor_double_tap": "two quick taps on your shell",
	"sensor_freefall":   "a moment of falling through the air",
	"sensor_tilt":       "the world tipping over as you were tilted",
}

// SensorPrompt returns the system and user prompts for a sensor event.
// Sensor responses use the description-only JSON shape.
func SensorPrompt(eventName string, d *eventctx.Data) (system, user string) {
	sensation, ok := sensorSensations[eventName]
	if !ok {
		sensation = "an unfamiliar movement"
	}
	system = fmt.Sprintf(sensorSystemTemplate,
		"Your accelerometer is how you feel the world move.")
	user = fmt.Sprintf(sensorUserTemplate, sensation,
		renderContext(d, d.EventDetails, d.Temporal))
	return system, user
}
