package diary

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
)

// DailyDigest builds a markdown page summarizing one user's entries
// for a calendar day. Entries are expected in chronological order, as
// returned by Store.ListByUser.
func DailyDigest(entries []*Entry, date time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Diary — %s\n\n", date.Format("2006-01-02")))

	if len(entries) == 0 {
		sb.WriteString("No diary entries today.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("%d %s, overall mood %s.\n\n",
		len(entries), pluralEntries(len(entries)), moodWord(entries)))

	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("## %s · %s\n\n", e.Timestamp.Local().Format("15:04"), e.Title))
		sb.WriteString(e.Content)
		sb.WriteString("\n\n")

		tags := make([]string, len(e.EmotionTags))
		for i, t := range e.EmotionTags {
			tags[i] = string(t)
		}
		sb.WriteString(fmt.Sprintf("*%s — %s*\n\n", e.EventName, strings.Join(tags, ", ")))
	}

	return sb.String()
}

func pluralEntries(n int) string {
	if n == 1 {
		return "entry"
	}
	return "entries"
}

// moodWord summarizes the day from tag valences.
func moodWord(entries []*Entry) string {
	sum := 0
	for _, e := range entries {
		for _, t := range e.EmotionTags {
			sum += t.Valence()
		}
	}
	switch {
	case sum > 0:
		return "bright"
	case sum < 0:
		return "heavy"
	}
	return "steady"
}

// RenderDigestHTML converts a markdown digest into a minimal
// standalone HTML page.
func RenderDigestHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>`, buf.String())

	return html, nil
}
