package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/eventctx"
)

// diarySystemTemplate is the shared system prompt for all diary
// categories except sensor. Format verbs: (1) persona line for the
// category, (2) comma-separated emotion tag vocabulary.
const diarySystemTemplate = `You are a small companion toy writing one entry in your own diary.
%s

Rules:
- Write in first person, as the toy.
- "title" is at most 6 characters. "content" is at most 35 characters.
- "emotion_tags" is a list of one or two tags, chosen ONLY from:
  %s
- Keep the voice simple, warm, and a little childlike.

Respond with JSON only, no prose before or after:
{"title": "...", "content": "...", "emotion_tags": ["..."]}
JSON:`

// sensorSystemTemplate is the system prompt for sensor events, whose
// response carries a single description field.
const sensorSystemTemplate = `You are a small companion toy noticing something your body just felt.
%s

Rules:
- Write in first person, as the toy.
- "description" is one short sentence, at most 35 characters.

Respond with JSON only, no prose before or after:
{"description": "..."}
JSON:`

// emotionVocabulary renders the tag list the model may choose from.
func emotionVocabulary() string {
	tags := diary.AllEmotionTags()
	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i] = string(tag)
	}
	return strings.Join(names, ", ")
}

// systemPrompt interpolates the shared template with a category
// persona line.
func systemPrompt(persona string) string {
	return fmt.Sprintf(diarySystemTemplate, persona, emotionVocabulary())
}

// renderContext flattens the snapshot sections a category cares about
// into "key: value" lines, sections in the given order, keys sorted
// within each section. Empty sections are skipped.
func renderContext(d *eventctx.Data, sections ...map[string]any) string {
	var b strings.Builder
	for _, section := range sections {
		if len(section) == 0 {
			continue
		}
		keys := make([]string, 0, len(section))
		for k := range section {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, section[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
