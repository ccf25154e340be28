package diary

import "testing"

func TestParseEmotionTag(t *testing.T) {
	tests := []struct {
		in   string
		want EmotionTag
		ok   bool
	}{
		{"happy_joyful", EmotionHappyJoyful, true},
		{"HAPPY_JOYFUL", EmotionHappyJoyful, true},
		{"happy joyful", EmotionHappyJoyful, true},
		{"happy-joyful", EmotionHappyJoyful, true},
		{"  calm  ", EmotionCalm, true},
		{"happy", EmotionHappyJoyful, true},
		{"excited", EmotionExcitedThrilled, true},
		{"nervous", EmotionAnxious, true},
		{"embarrassed", EmotionAshamed, true},
		{"concerned", EmotionWorried, true},
		{"euphoric", "", false},
		{"", "", false},
		{"快乐", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseEmotionTag(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseEmotionTag(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMapEmotionTags_DropsUnknownsAndDedupes(t *testing.T) {
	got := MapEmotionTags([]string{"happy", "bogus", "HAPPY_JOYFUL", "curious"})
	want := []EmotionTag{EmotionHappyJoyful, EmotionCurious}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMapEmotionTags_EmptyDefaultsToCalm(t *testing.T) {
	for _, in := range [][]string{nil, {}, {"bogus", "nonsense"}} {
		got := MapEmotionTags(in)
		if len(got) != 1 || got[0] != EmotionCalm {
			t.Errorf("MapEmotionTags(%v) = %v, want [%s]", in, got, EmotionCalm)
		}
	}
}

func TestAllEmotionTags_AllValid(t *testing.T) {
	all := AllEmotionTags()
	if len(all) != 10 {
		t.Fatalf("vocabulary size = %d, want 10", len(all))
	}
	for _, tag := range all {
		if !tag.Valid() {
			t.Errorf("tag %q reported invalid", tag)
		}
	}
}

func TestValence_CoversWholeVocabulary(t *testing.T) {
	// Every tag must map to a defined direction; the switch falling
	// through to 0 is only correct for calm and surprised-free neutrals.
	positives := map[EmotionTag]bool{
		EmotionHappyJoyful: true, EmotionExcitedThrilled: true,
		EmotionCurious: true, EmotionSurprised: true,
	}
	for _, tag := range AllEmotionTags() {
		v := tag.Valence()
		switch {
		case positives[tag] && v != 1:
			t.Errorf("%s valence = %d, want 1", tag, v)
		case tag == EmotionCalm && v != 0:
			t.Errorf("%s valence = %d, want 0", tag, v)
		case !positives[tag] && tag != EmotionCalm && v != -1:
			t.Errorf("%s valence = %d, want -1", tag, v)
		}
	}
}
