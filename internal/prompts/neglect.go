package prompts

import (
	"fmt"

	"github.com/huangdanqi/pawprint/internal/eventctx"
)

// neglectUserTemplate builds the user turn for neglect events. Format
// verbs: (1) how long and what kind, (2) rendered context.
const neglectUserTemplate = `It has been %s.

What you know right now:
%s

Write your diary entry about how the quiet feels. Stay gentle; you
miss your person, you are not angry at them.`

// NeglectPhrase renders a neglect event name such as
// "neglect_7_days_no_interaction" into a human-readable duration line.
// Exported because the fallback entry uses the same phrase.
func NeglectPhrase(days int, kind string) string {
	what := "since your person interacted with you"
	if kind == "dialogue" {
		what = "since your person talked with you"
	}
	if days == 1 {
		return fmt.Sprintf("1 day %s", what)
	}
	return fmt.Sprintf("%d days %s", days, what)
}

// NeglectPrompt returns the system and user prompts for a neglect
// event. durationLine comes from NeglectPhrase.
func NeglectPrompt(durationLine string, d *eventctx.Data) (system, user string) {
	system = systemPrompt("You have been alone for a while and are thinking about your person.")
	user = fmt.Sprintf(neglectUserTemplate, durationLine,
		renderContext(d, d.EventDetails, d.Emotional, d.Temporal))
	return system, user
}
