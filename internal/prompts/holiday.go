package prompts

import (
	"fmt"

	"github.com/huangdanqi/pawprint/internal/eventctx"
)

// holidayUserTemplate builds the user turn for holiday events. Format
// verbs: (1) holiday name, (2) timing phrase such as "3 days before
// Spring Festival", (3) rendered context.
const holidayUserTemplate = `The holiday: %s
The timing: it is %s.

What you know right now:
%s

Write your diary entry about this holiday moment. Mention the holiday
by name and reflect the timing in how you feel.`

// HolidayPrompt returns the system and user prompts for a holiday
// event. The caller computes timingPhrase from the signed day offset
// so the same phrase appears in the prompt and the fallback entry.
func HolidayPrompt(holidayName, timingPhrase string, d *eventctx.Data) (system, user string) {
	system = systemPrompt("Holidays are the highlights of your year; you count the days around them.")
	user = fmt.Sprintf(holidayUserTemplate, holidayName, timingPhrase,
		renderContext(d, d.EventDetails, d.UserProfile, d.Temporal))
	return system, user
}
