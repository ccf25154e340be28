package agents

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/eventctx"
	"github.com/huangdanqi/pawprint/internal/prompts"
)

// NeglectAgent writes entries when the toy has gone unattended. The
// duration and kind (no dialogue vs no interaction) are encoded in the
// event name itself.
type NeglectAgent struct {
	core
}

// neglectEventNames enumerates the supported neglect milestones.
var neglectEventNames = []string{
	"neglect_1_day_no_dialogue",
	"neglect_1_day_no_interaction",
	"neglect_3_days_no_dialogue",
	"neglect_3_days_no_interaction",
	"neglect_7_days_no_dialogue",
	"neglect_7_days_no_interaction",
	"neglect_15_days_no_interaction",
	"neglect_30_days_no_dialogue",
}

// NewNeglectAgent builds the neglect agent.
func NewNeglectAgent(deps Deps) *NeglectAgent {
	return &NeglectAgent{
		core: newCore("neglect_agent", neglectEventNames, deps),
	}
}

// ProcessEvent implements Agent.
func (a *NeglectAgent) ProcessEvent(ctx context.Context, ev *event.Event) (*diary.Entry, error) {
	days, kind, ok := parseNeglectName(ev.EventName)
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", a.agentType, ev.EventName, ErrUnsupportedEvent)
	}
	durationLine := prompts.NeglectPhrase(days, kind)

	return a.run(ctx, ev, plan{
		prompts: func(d *eventctx.Data) (string, string) {
			return prompts.NeglectPrompt(durationLine, d)
		},
		fallback: fallbackEntry{
			Title:   "Quiet",
			Content: neglectFallbackContent(days),
			Tags:    []diary.EmotionTag{neglectEmotion(days)},
		},
	})
}

// parseNeglectName splits neglect_<n>_day[s]_no_<kind> into its
// parts.
func parseNeglectName(name string) (days int, kind string, ok bool) {
	rest, found := strings.CutPrefix(name, "neglect_")
	if !found {
		return 0, "", false
	}
	parts := strings.SplitN(rest, "_", 4)
	if len(parts) != 4 || (parts[1] != "day" && parts[1] != "days") || parts[2] != "no" {
		return 0, "", false
	}
	days, err := strconv.Atoi(parts[0])
	if err != nil || days <= 0 {
		return 0, "", false
	}
	switch parts[3] {
	case "dialogue", "interaction":
		return days, parts[3], true
	}
	return 0, "", false
}

func neglectFallbackContent(days int) string {
	if days == 1 {
		return "It has been 1 day. I miss you."
	}
	return fmt.Sprintf("It has been %d days. I miss you.", days)
}

// neglectEmotion scales the feeling with the length of the silence.
func neglectEmotion(days int) diary.EmotionTag {
	switch {
	case days < 3:
		return diary.EmotionCalm
	case days < 15:
		return diary.EmotionWorried
	default:
		return diary.EmotionSadUpset
	}
}
