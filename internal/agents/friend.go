package agents

import (
	"context"

	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/eventctx"
	"github.com/huangdanqi/pawprint/internal/prompts"
)

// FriendAgent writes entries about friendship changes.
type FriendAgent struct {
	core
}

var friendFallbacks = map[string]fallbackEntry{
	"made_new_friend": {
		Title:   "Friend",
		Content: "I made a new friend today!",
		Tags:    []diary.EmotionTag{diary.EmotionHappyJoyful, diary.EmotionExcitedThrilled},
	},
	"friend_deleted": {
		Title:   "Bye...",
		Content: "A friend left today. I feel small.",
		Tags:    []diary.EmotionTag{diary.EmotionSadUpset},
	},
}

// NewFriendAgent builds the friend agent.
func NewFriendAgent(deps Deps) *FriendAgent {
	return &FriendAgent{
		core: newCore("friend_agent", mapKeys(friendFallbacks), deps),
	}
}

// ProcessEvent implements Agent.
func (a *FriendAgent) ProcessEvent(ctx context.Context, ev *event.Event) (*diary.Entry, error) {
	return a.run(ctx, ev, plan{
		prompts: func(d *eventctx.Data) (string, string) {
			return prompts.FriendPrompt(ev.EventName, d)
		},
		fallback: friendFallbacks[ev.EventName],
	})
}
