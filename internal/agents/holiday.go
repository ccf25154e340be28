package agents

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/huangdanqi/pawprint/internal/config"
	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/eventctx"
	"github.com/huangdanqi/pawprint/internal/prompts"
)

// HolidayAgent writes entries around holidays. It owns the timing
// calculation (signed day offset to the holiday) and the emotion
// lookup; the model writes the words, this agent decides the feeling.
type HolidayAgent struct {
	core
	holidays []config.HolidayConfig
}

var holidayEventNames = []string{
	"approaching_holiday",
	"during_holiday",
	"holiday_ends",
}

// NewHolidayAgent builds the holiday agent over the configured
// holiday table.
func NewHolidayAgent(deps Deps, holidays []config.HolidayConfig) *HolidayAgent {
	return &HolidayAgent{
		core:     newCore("holiday_agent", holidayEventNames, deps),
		holidays: holidays,
	}
}

// ProcessEvent implements Agent.
func (a *HolidayAgent) ProcessEvent(ctx context.Context, ev *event.Event) (*diary.Entry, error) {
	name, offset := a.resolveHoliday(ev)
	phrase := timingPhrase(name, offset)

	anticipation, _ := ev.ContextFloat("anticipation_level")
	intensity, _ := ev.ContextFloat("emotional_intensity")
	tag := holidayEmotion(ev.EventName, anticipation, intensity)

	return a.run(ctx, ev, plan{
		prompts: func(d *eventctx.Data) (string, string) {
			return prompts.HolidayPrompt(name, phrase, d)
		},
		fallback: fallbackEntry{
			Title:   diary.TruncateRunes(name, diary.TitleMaxRunes),
			Content: diary.TruncateRunes(phrase+"!", diary.ContentMaxRunes),
		},
		forceTags: []diary.EmotionTag{tag},
	})
}

// resolveHoliday determines which holiday the event is about and the
// signed day offset to it. The event payload wins; the config table
// backs events that carry neither name nor offset.
func (a *HolidayAgent) resolveHoliday(ev *event.Event) (name string, offset int) {
	name, _ = ev.ContextString("holiday_name")
	if v, ok := ev.ContextFloat("days_to_holiday"); ok {
		if name == "" {
			name = "the holiday"
		}
		return name, int(v)
	}

	found := false
	for _, h := range a.holidays {
		if name != "" && h.Name != name {
			continue
		}
		off := nearestOffset(ev.Timestamp, h.Month, h.Day)
		if !found || abs(off) < abs(offset) {
			name, offset, found = h.Name, off, true
		}
	}
	if !found {
		if name == "" {
			name = "the holiday"
		}
		return name, 0
	}
	return name, offset
}

// timingPhrase renders a signed day offset as the human-readable
// timing line used in both the prompt and the fallback entry.
// Positive offsets are days until the holiday.
func timingPhrase(holidayName string, offset int) string {
	switch {
	case offset > 1:
		return fmt.Sprintf("%d days before %s", offset, holidayName)
	case offset == 1:
		return fmt.Sprintf("1 day before %s", holidayName)
	case offset == 0:
		return fmt.Sprintf("the day of %s", holidayName)
	case offset == -1:
		return fmt.Sprintf("1 day after %s", holidayName)
	default:
		return fmt.Sprintf("%d days after %s", -offset, holidayName)
	}
}

// holidayEmotion is the fixed lookup from event name and measured
// levels to the entry's emotion tag.
func holidayEmotion(eventName string, anticipation, intensity float64) diary.EmotionTag {
	switch eventName {
	case "approaching_holiday":
		switch {
		case anticipation < 1.5:
			return diary.EmotionCurious
		case anticipation < 2.5:
			return diary.EmotionHappyJoyful
		default:
			return diary.EmotionExcitedThrilled
		}
	case "during_holiday":
		if intensity >= 2.0 {
			return diary.EmotionExcitedThrilled
		}
		return diary.EmotionHappyJoyful
	case "holiday_ends":
		if intensity >= 1.5 {
			return diary.EmotionSadUpset
		}
		return diary.EmotionCalm
	}
	return diary.EmotionCalm
}

// nearestOffset returns the signed day count from at to the closest
// occurrence of a month/day holiday (last year, this year, or next).
func nearestOffset(at time.Time, month, day int) int {
	best, bestAbs := 0, math.MaxInt
	for _, year := range []int{at.Year() - 1, at.Year(), at.Year() + 1} {
		h := time.Date(year, time.Month(month), day, 0, 0, 0, 0, at.Location())
		off := daysBetween(at, h)
		if abs(off) < bestAbs {
			best, bestAbs = off, abs(off)
		}
	}
	return best
}

// daysBetween counts calendar days from one date to another, signed.
// Rounding absorbs DST-shortened days.
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	return int(math.Round(t.Sub(f).Hours() / 24))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
