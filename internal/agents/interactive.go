package agents

import (
	"context"

	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/eventctx"
	"github.com/huangdanqi/pawprint/internal/prompts"
)

// InteractiveAgent writes entries about direct human interaction,
// including the claimed events (toy_claimed, positive_dialogue) that
// bypass the daily quota.
type InteractiveAgent struct {
	core
}

var interactiveFallbacks = map[string]fallbackEntry{
	"liked_interaction_once": {
		Title:   "Nice!",
		Content: "That felt really nice just now.",
		Tags:    []diary.EmotionTag{diary.EmotionHappyJoyful},
	},
	"liked_interaction_3_to_5_times": {
		Title:   "Again!",
		Content: "Again and again! I loved every one.",
		Tags:    []diary.EmotionTag{diary.EmotionExcitedThrilled},
	},
	"disliked_interaction": {
		Title:   "Hm.",
		Content: "I did not really like that just now.",
		Tags:    []diary.EmotionTag{diary.EmotionSadUpset},
	},
	"toy_claimed": {
		Title:   "Home!",
		Content: "Someone chose me. I am theirs now!",
		Tags:    []diary.EmotionTag{diary.EmotionHappyJoyful, diary.EmotionExcitedThrilled},
	},
	"positive_dialogue": {
		Title:   "Chat",
		Content: "We talked and talked. So cozy.",
		Tags:    []diary.EmotionTag{diary.EmotionHappyJoyful, diary.EmotionCalm},
	},
}

// NewInteractiveAgent builds the interactive agent.
func NewInteractiveAgent(deps Deps) *InteractiveAgent {
	return &InteractiveAgent{
		core: newCore("interactive_agent", mapKeys(interactiveFallbacks), deps),
	}
}

// ProcessEvent implements Agent.
func (a *InteractiveAgent) ProcessEvent(ctx context.Context, ev *event.Event) (*diary.Entry, error) {
	return a.run(ctx, ev, plan{
		prompts: func(d *eventctx.Data) (string, string) {
			return prompts.InteractivePrompt(ev.EventName, d)
		},
		fallback: interactiveFallbacks[ev.EventName],
	})
}
