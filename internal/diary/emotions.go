package diary

import "strings"

// EmotionTag is one entry in the closed emotion vocabulary. Diary
// entries only ever carry tags from this set; strings arriving from
// an LLM or a device payload must be mapped in via ParseEmotionTag
// or dropped.
type EmotionTag string

const (
	EmotionHappyJoyful     EmotionTag = "happy_joyful"
	EmotionSadUpset        EmotionTag = "sad_upset"
	EmotionExcitedThrilled EmotionTag = "excited_thrilled"
	EmotionCalm            EmotionTag = "calm"
	EmotionAnxious         EmotionTag = "anxious"
	EmotionCurious         EmotionTag = "curious"
	EmotionAshamed         EmotionTag = "ashamed"
	EmotionSurprised       EmotionTag = "surprised"
	EmotionAngry           EmotionTag = "angry"
	EmotionWorried         EmotionTag = "worried"
)

// AllEmotionTags returns the full vocabulary in a stable order.
func AllEmotionTags() []EmotionTag {
	return []EmotionTag{
		EmotionHappyJoyful,
		EmotionSadUpset,
		EmotionExcitedThrilled,
		EmotionCalm,
		EmotionAnxious,
		EmotionCurious,
		EmotionAshamed,
		EmotionSurprised,
		EmotionAngry,
		EmotionWorried,
	}
}

// Valid reports whether t is in the vocabulary.
func (t EmotionTag) Valid() bool {
	switch t {
	case EmotionHappyJoyful, EmotionSadUpset, EmotionExcitedThrilled,
		EmotionCalm, EmotionAnxious, EmotionCurious, EmotionAshamed,
		EmotionSurprised, EmotionAngry, EmotionWorried:
		return true
	}
	return false
}

// Valence maps a tag to a coarse mood direction: +1 positive,
// -1 negative, 0 neutral. Used by the daily digest mood line.
func (t EmotionTag) Valence() int {
	switch t {
	case EmotionHappyJoyful, EmotionExcitedThrilled, EmotionCurious, EmotionSurprised:
		return 1
	case EmotionSadUpset, EmotionAnxious, EmotionAshamed, EmotionAngry, EmotionWorried:
		return -1
	}
	return 0
}

// synonyms maps common loose spellings (LLM output is not reliable
// about exact tag names) onto canonical tags.
var synonyms = map[string]EmotionTag{
	"happy":       EmotionHappyJoyful,
	"joyful":      EmotionHappyJoyful,
	"joy":         EmotionHappyJoyful,
	"sad":         EmotionSadUpset,
	"upset":       EmotionSadUpset,
	"excited":     EmotionExcitedThrilled,
	"thrilled":    EmotionExcitedThrilled,
	"peaceful":    EmotionCalm,
	"relaxed":     EmotionCalm,
	"nervous":     EmotionAnxious,
	"anxiety":     EmotionAnxious,
	"embarrassed": EmotionAshamed,
	"shy":         EmotionAshamed,
	"surprise":    EmotionSurprised,
	"shocked":     EmotionSurprised,
	"mad":         EmotionAngry,
	"worry":       EmotionWorried,
	"concerned":   EmotionWorried,
}

// ParseEmotionTag normalizes s (trim, lowercase, spaces and hyphens to
// underscores) and maps it into the vocabulary. Returns false when the
// string matches nothing; callers drop such tags.
func ParseEmotionTag(s string) (EmotionTag, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "_")
	norm = strings.ReplaceAll(norm, "-", "_")
	if norm == "" {
		return "", false
	}

	if t := EmotionTag(norm); t.Valid() {
		return t, true
	}
	if t, ok := synonyms[norm]; ok {
		return t, true
	}
	return "", false
}

// MapEmotionTags converts raw tag strings into vocabulary tags,
// dropping anything unrecognized and deduplicating while preserving
// order. An empty result substitutes the neutral tag so every diary
// entry carries at least one emotion.
func MapEmotionTags(raw []string) []EmotionTag {
	var out []EmotionTag
	seen := make(map[EmotionTag]bool)
	for _, s := range raw {
		t, ok := ParseEmotionTag(s)
		if !ok || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		out = append(out, EmotionCalm)
	}
	return out
}
