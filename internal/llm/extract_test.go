package llm

import (
	"strings"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantTitle string
	}{
		{
			name:      "clean object",
			raw:       `{"title":"晴天","content":"今天很开心","emotion_tags":["happy_joyful"]}`,
			wantOK:    true,
			wantTitle: "晴天",
		},
		{
			name:      "reasoning preamble",
			raw:       "Let me think about the diary entry.\nThe weather is sunny, so:\n{\"title\":\"晴天\",\"content\":\"阳光真好\"}",
			wantOK:    true,
			wantTitle: "晴天",
		},
		{
			name:      "code fence",
			raw:       "```json\n{\"title\":\"下雨\",\"content\":\"有点难过\"}\n```",
			wantOK:    true,
			wantTitle: "下雨",
		},
		{
			name:      "fence plus trailing commentary",
			raw:       "Here you go:\n```json\n{\"title\":\"节日\",\"content\":\"好期待\"}\n```\nHope that works!",
			wantOK:    true,
			wantTitle: "节日",
		},
		{
			name:      "skips non-diary object",
			raw:       `{"reasoning":"thinking"} then {"title":"摇晃","content":"头好晕"}`,
			wantOK:    true,
			wantTitle: "摇晃",
		},
		{
			name:      "unclosed brace in preamble",
			raw:       "My plan { reason about the day, then answer:\n{\"title\":\"惊喜\",\"content\":\"有新朋友\"}",
			wantOK:    true,
			wantTitle: "惊喜",
		},
		{
			name:      "description variant",
			raw:       `{"description":"被摇了一下，晕乎乎的"}`,
			wantOK:    true,
			wantTitle: "",
		},
		{
			name:   "braces inside string values",
			raw:    `{"title":"ok","content":"has a } brace"}`,
			wantOK: true,
		},
		{"no json at all", "just prose, no structure", false, ""},
		{"unbalanced braces", `{"title":"晴天","content":"broken`, false, ""},
		{"array only", `["title","content"]`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, ok := ExtractJSONObject(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ExtractJSONObject ok = %v, want %v (obj=%v)", ok, tt.wantOK, obj)
			}
			if !ok || tt.wantTitle == "" {
				return
			}
			if got, _ := obj["title"].(string); got != tt.wantTitle {
				t.Errorf("title = %q, want %q", got, tt.wantTitle)
			}
		})
	}
}

func TestExtractReadableRun(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		max  int
		want string
	}{
		{
			name: "longest han run from broken json",
			raw:  `{"title":"晴","content":"今天天气特别好我出去玩了`,
			max:  35,
			want: "今天天气特别好我出去玩了",
		},
		{
			name: "picks longer of two runs",
			raw:  "短的\n这一段明显更长一些所以应该被选中",
			max:  35,
			want: "这一段明显更长一些所以应该被选中",
		},
		{
			name: "truncates to cap",
			raw:  strings.Repeat("字", 50),
			max:  35,
			want: strings.Repeat("字", 35),
		},
		{
			name: "mixed latin and punctuation",
			raw:  "sunny day, feeling great!",
			max:  35,
			want: "sunny day, feeling great!",
		},
		{"nothing usable", "{}[]\"\\\n", 35, ""},
		{"empty", "", 35, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractReadableRun(tt.raw, tt.max)
			if got != tt.want {
				t.Errorf("ExtractReadableRun(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExtractReadableRun_NeverExceedsCap(t *testing.T) {
	inputs := []string{
		strings.Repeat("很长的中文内容", 30),
		strings.Repeat("latin text with spaces ", 30),
		"emoji 🌞🌧️⛄ run " + strings.Repeat("x", 100),
	}
	for _, in := range inputs {
		got := ExtractReadableRun(in, 35)
		if n := len([]rune(got)); n > 35 {
			t.Errorf("result %d runes, want <= 35 (input %q...)", n, in[:20])
		}
	}
}
