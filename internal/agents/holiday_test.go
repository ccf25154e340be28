package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/huangdanqi/pawprint/internal/config"
	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
)

func testHolidays() []config.HolidayConfig {
	return []config.HolidayConfig{
		{Name: "Spring Festival", Month: 2, Day: 17},
		{Name: "National Day", Month: 10, Day: 1},
	}
}

func TestTimingPhrase(t *testing.T) {
	cases := []struct {
		offset int
		want   string
	}{
		{3, "3 days before Spring Festival"},
		{1, "1 day before Spring Festival"},
		{0, "the day of Spring Festival"},
		{-1, "1 day after Spring Festival"},
		{-2, "2 days after Spring Festival"},
	}
	for _, tc := range cases {
		if got := timingPhrase("Spring Festival", tc.offset); got != tc.want {
			t.Errorf("timingPhrase(%d) = %q, want %q", tc.offset, got, tc.want)
		}
	}
}

func TestHolidayEmotion(t *testing.T) {
	cases := []struct {
		name         string
		anticipation float64
		intensity    float64
		want         diary.EmotionTag
	}{
		{"approaching_holiday", 1.0, 0, diary.EmotionCurious},
		{"approaching_holiday", 2.0, 0, diary.EmotionHappyJoyful},
		{"approaching_holiday", 2.8, 0, diary.EmotionExcitedThrilled},
		{"during_holiday", 0, 2.5, diary.EmotionExcitedThrilled},
		{"during_holiday", 0, 1.0, diary.EmotionHappyJoyful},
		{"holiday_ends", 0, 2.0, diary.EmotionSadUpset},
		{"holiday_ends", 0, 1.0, diary.EmotionCalm},
	}
	for _, tc := range cases {
		got := holidayEmotion(tc.name, tc.anticipation, tc.intensity)
		if got != tc.want {
			t.Errorf("holidayEmotion(%s, %.1f, %.1f) = %s, want %s",
				tc.name, tc.anticipation, tc.intensity, got, tc.want)
		}
	}
}

func TestHolidayAgent_OffsetFromConfigTable(t *testing.T) {
	gw := &stubGateway{err: errors.New("down")}
	a := NewHolidayAgent(testDeps(t, gw), testHolidays())

	ev := event.New("holiday", "approaching_holiday", "user-1", map[string]any{
		"holiday_name": "Spring Festival",
	})
	ev.Timestamp = time.Date(2026, 2, 14, 10, 0, 0, 0, time.Local)

	entry, err := a.ProcessEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	// Feb 14 is 3 days before Feb 17; the fallback embeds the phrase.
	if entry.Content != "3 days before Spring Festival!" {
		t.Errorf("content = %q", entry.Content)
	}
	if entry.Title != "Spring" {
		t.Errorf("title = %q, want holiday name clamped to the cap", entry.Title)
	}
	// No anticipation level in context reads as 0: curious.
	if len(entry.EmotionTags) != 1 || entry.EmotionTags[0] != diary.EmotionCurious {
		t.Errorf("tags = %v", entry.EmotionTags)
	}
}

func TestHolidayAgent_OffsetFromContext(t *testing.T) {
	gw := &stubGateway{err: errors.New("down")}
	a := NewHolidayAgent(testDeps(t, gw), testHolidays())

	ev := event.New("holiday", "holiday_ends", "user-1", map[string]any{
		"holiday_name":        "National Day",
		"days_to_holiday":     -2,
		"emotional_intensity": 2.0,
	})

	entry, err := a.ProcessEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if entry.Content != "2 days after National Day!" {
		t.Errorf("content = %q", entry.Content)
	}
	if len(entry.EmotionTags) != 1 || entry.EmotionTags[0] != diary.EmotionSadUpset {
		t.Errorf("tags = %v, want sad_upset at intensity 2.0", entry.EmotionTags)
	}
}

func TestHolidayAgent_DayOfHoliday(t *testing.T) {
	gw := &stubGateway{err: errors.New("down")}
	a := NewHolidayAgent(testDeps(t, gw), testHolidays())

	ev := event.New("holiday", "during_holiday", "user-1", map[string]any{
		"holiday_name":        "National Day",
		"emotional_intensity": 2.5,
	})
	ev.Timestamp = time.Date(2026, 10, 1, 9, 0, 0, 0, time.Local)

	entry, err := a.ProcessEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if entry.Content != "the day of National Day!" {
		t.Errorf("content = %q", entry.Content)
	}
	if len(entry.EmotionTags) != 1 || entry.EmotionTags[0] != diary.EmotionExcitedThrilled {
		t.Errorf("tags = %v", entry.EmotionTags)
	}
}

func TestHolidayAgent_ForcesLookupTagsOverModelTags(t *testing.T) {
	gw := &stubGateway{
		text:     `{"title": "Yay", "content": "Holiday soon!", "emotion_tags": ["angry"]}`,
		provider: "ollama",
	}
	a := NewHolidayAgent(testDeps(t, gw), testHolidays())

	ev := event.New("holiday", "approaching_holiday", "user-1", map[string]any{
		"holiday_name":       "Spring Festival",
		"days_to_holiday":    2,
		"anticipation_level": 2.8,
	})
	entry, err := a.ProcessEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(entry.EmotionTags) != 1 || entry.EmotionTags[0] != diary.EmotionExcitedThrilled {
		t.Errorf("tags = %v, want the lookup to override the model", entry.EmotionTags)
	}
	if entry.Content != "Holiday soon!" {
		t.Errorf("content = %q, model content should be kept", entry.Content)
	}
}

func TestNearestOffset_YearBoundary(t *testing.T) {
	// Dec 30 against a Jan 1 holiday: the next year's occurrence is
	// the closest, 2 days ahead.
	at := time.Date(2026, 12, 30, 12, 0, 0, 0, time.Local)
	if got := nearestOffset(at, 1, 1); got != 2 {
		t.Errorf("nearestOffset = %d, want 2", got)
	}
}
