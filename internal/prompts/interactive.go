package prompts

import (
	"fmt"

	"github.com/huangdanqi/pawprint/internal/eventctx"
)

// interactiveUserTemplate builds the user turn for human interaction
// events. Format verbs: (1) what happened, (2) rendered context.
const interactiveUserTemplate = `What just happened between you and your person: %s

What you know right now:
%s

Write your diary entry about it.`

var interactionMoments = map[string]string{
	"liked_interaction_once":         "your person did something you liked",
	"liked_interaction_3_to_5_times": "your person kept doing something you like, again and again",
	"disliked_interaction":           "your person did something you did not enjoy",
	"toy_claimed":                    "someone claimed you as their very own toy today",
	"positive_dialogue":              "you had a lovely conversation with your person",
}

// InteractivePrompt returns the system and user prompts for an
// interaction event.
func InteractivePrompt(eventName string, d *eventctx.Data) (system, user string) {
	moment, ok := interactionMoments[eventName]
	if !ok {
		moment = "you and your person shared a moment"
	}
	system = systemPrompt("You live for the moments your person spends with you.")
	user = fmt.Sprintf(interactiveUserTemplate, moment,
		renderContext(d, d.EventDetails, d.Emotional, d.Temporal))
	return system, user
}
