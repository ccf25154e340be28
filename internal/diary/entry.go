// Package diary defines the diary entry model, the closed emotion
// vocabulary, and SQLite persistence. Entries are created once by a
// sub-agent, clamped to the length caps, and persisted exactly once;
// nothing mutates an entry after it is stored.
package diary

import (
	crand "crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Length caps for diary text, counted in runes, not bytes. The diary
// is written for a toy whose screen fits six title glyphs and a
// 35-glyph body; CJK text and emoji count as one each.
const (
	TitleMaxRunes   = 6
	ContentMaxRunes = 35
)

// Entry is one diary entry.
type Entry struct {
	EntryID     string       `json:"entry_id"`
	UserID      string       `json:"user_id"`
	Timestamp   time.Time    `json:"timestamp"`
	EventType   string       `json:"event_type"`
	EventName   string       `json:"event_name"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	EmotionTags []EmotionTag `json:"emotion_tags"`
	AgentType   string       `json:"agent_type"`
	Provider    string       `json:"llm_provider"`
}

// ULIDs sort by creation time, which keeps diary listings in
// chronological order without a secondary sort key. The monotonic
// entropy source is not goroutine-safe, hence the mutex.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewEntryID returns a ULID for an entry created at now.
func NewEntryID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now.UTC()), entropy).String()
}

// TruncateRunes cuts s to at most max runes. Safe for multibyte text;
// never splits a rune.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return len([]rune(s))
}

// Clamp enforces the output invariants in place: title and content are
// hard-truncated to their caps and the emotion list is normalized to
// valid, non-empty tags. Clamp never fails; that is the point.
func (e *Entry) Clamp() {
	e.Title = TruncateRunes(e.Title, TitleMaxRunes)
	e.Content = TruncateRunes(e.Content, ContentMaxRunes)

	var valid []EmotionTag
	seen := make(map[EmotionTag]bool)
	for _, t := range e.EmotionTags {
		if !t.Valid() || seen[t] {
			continue
		}
		seen[t] = true
		valid = append(valid, t)
	}
	if len(valid) == 0 {
		valid = append(valid, EmotionCalm)
	}
	e.EmotionTags = valid
}

// Validate checks the invariants that must hold before persistence.
// A clamped entry from a well-formed event always passes; a failure
// here means the caller built the entry wrong.
func (e *Entry) Validate() error {
	if e.EntryID == "" {
		return fmt.Errorf("entry missing entry_id")
	}
	if e.UserID == "" {
		return fmt.Errorf("entry %s missing user_id", e.EntryID)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("entry %s missing timestamp", e.EntryID)
	}
	if e.EventType == "" || e.EventName == "" {
		return fmt.Errorf("entry %s missing event identity (type=%q name=%q)",
			e.EntryID, e.EventType, e.EventName)
	}
	if e.AgentType == "" {
		return fmt.Errorf("entry %s missing agent_type", e.EntryID)
	}
	if n := RuneLen(e.Title); n > TitleMaxRunes {
		return fmt.Errorf("entry %s title is %d runes (max %d)", e.EntryID, n, TitleMaxRunes)
	}
	if n := RuneLen(e.Content); n > ContentMaxRunes {
		return fmt.Errorf("entry %s content is %d runes (max %d)", e.EntryID, n, ContentMaxRunes)
	}
	if len(e.EmotionTags) == 0 {
		return fmt.Errorf("entry %s has no emotion tags", e.EntryID)
	}
	for _, t := range e.EmotionTags {
		if !t.Valid() {
			return fmt.Errorf("entry %s has unknown emotion tag %q", e.EntryID, t)
		}
	}
	return nil
}
