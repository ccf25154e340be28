package diary

import (
	"strings"
	"testing"
	"time"
)

func validEntry() *Entry {
	return &Entry{
		EntryID:     NewEntryID(time.Now()),
		UserID:      "user-1",
		Timestamp:   time.Now(),
		EventType:   "weather",
		EventName:   "favorite_weather",
		Title:       "晴天",
		Content:     "今天是晴天，我很开心！",
		EmotionTags: []EmotionTag{EmotionHappyJoyful},
		AgentType:   "weather_agent",
		Provider:    "ollama",
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short ascii", "hello", 6, "hello"},
		{"exact ascii", "abcdef", 6, "abcdef"},
		{"long ascii", "abcdefgh", 6, "abcdef"},
		{"cjk under cap", "晴天日记", 6, "晴天日记"},
		{"cjk over cap", "今天天气真的很好", 6, "今天天气真的"},
		{"emoji counts as one", "🌞🌞🌞🌞🌞🌞🌞", 6, "🌞🌞🌞🌞🌞🌞"},
		{"mixed", "好天气sunny", 6, "好天气sun"},
		{"zero max", "anything", 0, ""},
		{"empty", "", 6, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateRunes(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestClamp_TruncatesOverlongText(t *testing.T) {
	e := validEntry()
	e.Title = "一二三四五六七八九"
	e.Content = strings.Repeat("很长的内容", 20)

	e.Clamp()

	if n := RuneLen(e.Title); n > TitleMaxRunes {
		t.Errorf("title = %d runes after Clamp, want <= %d", n, TitleMaxRunes)
	}
	if n := RuneLen(e.Content); n > ContentMaxRunes {
		t.Errorf("content = %d runes after Clamp, want <= %d", n, ContentMaxRunes)
	}
	// Truncation must not split a rune; the result must stay valid UTF-8
	// prefixes of the original.
	if !strings.HasPrefix("一二三四五六七八九", e.Title) {
		t.Errorf("title %q is not a prefix of the original", e.Title)
	}
}

func TestClamp_SubstitutesNeutralTag(t *testing.T) {
	e := validEntry()
	e.EmotionTags = nil
	e.Clamp()
	if len(e.EmotionTags) != 1 || e.EmotionTags[0] != EmotionCalm {
		t.Errorf("tags = %v, want [%s]", e.EmotionTags, EmotionCalm)
	}
}

func TestClamp_DropsInvalidAndDuplicateTags(t *testing.T) {
	e := validEntry()
	e.EmotionTags = []EmotionTag{EmotionHappyJoyful, "euphoric", EmotionHappyJoyful, EmotionCurious}
	e.Clamp()

	want := []EmotionTag{EmotionHappyJoyful, EmotionCurious}
	if len(e.EmotionTags) != len(want) {
		t.Fatalf("tags = %v, want %v", e.EmotionTags, want)
	}
	for i, tag := range want {
		if e.EmotionTags[i] != tag {
			t.Errorf("tags[%d] = %s, want %s", i, e.EmotionTags[i], tag)
		}
	}
}

func TestValidate_AcceptsClampedEntry(t *testing.T) {
	e := validEntry()
	e.Clamp()
	if err := e.Validate(); err != nil {
		t.Errorf("Validate() on clamped entry: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Entry)
		want   string
	}{
		{"missing entry id", func(e *Entry) { e.EntryID = "" }, "entry_id"},
		{"missing user", func(e *Entry) { e.UserID = "" }, "user_id"},
		{"zero timestamp", func(e *Entry) { e.Timestamp = time.Time{} }, "timestamp"},
		{"missing event name", func(e *Entry) { e.EventName = "" }, "event identity"},
		{"missing agent", func(e *Entry) { e.AgentType = "" }, "agent_type"},
		{"overlong title", func(e *Entry) { e.Title = "一二三四五六七" }, "title"},
		{"overlong content", func(e *Entry) { e.Content = strings.Repeat("字", 36) }, "content"},
		{"no tags", func(e *Entry) { e.EmotionTags = nil }, "emotion"},
		{"unknown tag", func(e *Entry) { e.EmotionTags = []EmotionTag{"blissful"} }, "unknown emotion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEntry()
			tt.mutate(e)
			err := e.Validate()
			if err == nil {
				t.Fatal("Validate() accepted invalid entry")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestNewEntryID_TimeOrdered(t *testing.T) {
	early := NewEntryID(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	late := NewEntryID(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	if !(early < late) {
		t.Errorf("IDs not time-ordered: %s !< %s", early, late)
	}
}

func TestNewEntryID_UniqueWithinSameInstant(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for range 100 {
		id := NewEntryID(now)
		if seen[id] {
			t.Fatalf("duplicate ID %s", id)
		}
		seen[id] = true
	}
}
