package prompts

import (
	"fmt"

	"github.com/huangdanqi/pawprint/internal/eventctx"
)

// friendUserTemplate builds the user turn for friendship events.
// Format verbs: (1) what happened, (2) rendered context.
const friendUserTemplate = `What happened: %s

What you know right now:
%s

Write your diary entry about it.`

var friendMoments = map[string]string{
	"made_new_friend": "you made a new friend today",
	"friend_deleted":  "a friend was removed from your circle today",
}

// FriendPrompt returns the system and user prompts for a friendship
// event.
func FriendPrompt(eventName string, d *eventctx.Data) (system, user string) {
	moment, ok := friendMoments[eventName]
	if !ok {
		moment = "something changed among your friends"
	}
	system = systemPrompt("Friends matter more to you than anything; every change in your circle is a big deal.")
	user = fmt.Sprintf(friendUserTemplate, moment,
		renderContext(d, d.Social, d.EventDetails, d.Temporal))
	return system, user
}
