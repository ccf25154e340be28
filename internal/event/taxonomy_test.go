package event

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_CoversTriggerFamilies(t *testing.T) {
	tax := Default()

	for _, name := range []string{
		"favorite_weather", "approaching_holiday", "during_holiday", "holiday_ends",
		"made_new_friend", "toy_claimed", "positive_dialogue",
		"neglect_7_days_no_dialogue", "sensor_shake",
	} {
		if !tax.Known(name) {
			t.Errorf("default taxonomy missing %q", name)
		}
	}

	if tax.Known("totally_unknown") {
		t.Error("default taxonomy claims to know totally_unknown")
	}
}

func TestDefault_ClaimedSet(t *testing.T) {
	tax := Default()

	claimed := tax.ClaimedEvents()
	want := []string{"positive_dialogue", "toy_claimed"}
	if len(claimed) != len(want) {
		t.Fatalf("claimed = %v, want %v", claimed, want)
	}
	for i := range want {
		if claimed[i] != want[i] {
			t.Errorf("claimed[%d] = %s, want %s", i, claimed[i], want[i])
		}
	}

	if !tax.IsClaimed("toy_claimed") {
		t.Error("toy_claimed not claimed")
	}
	if tax.IsClaimed("favorite_weather") {
		t.Error("favorite_weather wrongly claimed")
	}
	if tax.IsClaimed("no_such_event") {
		t.Error("unknown event wrongly claimed")
	}
}

func TestLookups(t *testing.T) {
	tax := Default()

	if typ, ok := tax.TypeFor("during_holiday"); !ok || typ != "holiday" {
		t.Errorf("TypeFor(during_holiday) = (%q, %v), want (holiday, true)", typ, ok)
	}
	if agent, ok := tax.AgentFor("weather"); !ok || agent != "weather_agent" {
		t.Errorf("AgentFor(weather) = (%q, %v), want (weather_agent, true)", agent, ok)
	}
	if _, ok := tax.AgentFor("astrology"); ok {
		t.Error("AgentFor(astrology) reported success")
	}
	if c, ok := tax.CategoryFor("sensor_freefall"); !ok || c.Agent != "sensor_agent" {
		t.Errorf("CategoryFor(sensor_freefall) wrong: %+v, %v", c, ok)
	}
}

func TestFromCategories_Rejections(t *testing.T) {
	base := func() []Category {
		return []Category{{
			Name:  "weather",
			Agent: "weather_agent",
			Events: []EventDef{
				{Name: "favorite_weather", Probability: 0.3},
			},
		}}
	}

	tests := []struct {
		name   string
		mutate func([]Category) []Category
		want   string
	}{
		{"empty table", func([]Category) []Category { return nil }, "no categories"},
		{"nameless category", func(c []Category) []Category { c[0].Name = ""; return c }, "no name"},
		{"agentless category", func(c []Category) []Category { c[0].Agent = ""; return c }, "agent"},
		{"no events", func(c []Category) []Category { c[0].Events = nil; return c }, "no events"},
		{"nameless event", func(c []Category) []Category { c[0].Events[0].Name = ""; return c }, "no name"},
		{"probability too high", func(c []Category) []Category { c[0].Events[0].Probability = 1.5; return c }, "probability"},
		{"probability negative", func(c []Category) []Category { c[0].Events[0].Probability = -0.1; return c }, "probability"},
		{"duplicate category", func(c []Category) []Category { return append(c, base()...) }, "duplicate category"},
		{"duplicate event across categories", func(c []Category) []Category {
			return append(c, Category{
				Name:  "weather2",
				Agent: "weather_agent",
				Events: []EventDef{
					{Name: "favorite_weather", Probability: 0.3},
				},
			})
		}, "defined in both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromCategories(tt.mutate(base()))
			if err == nil {
				t.Fatal("FromCategories accepted invalid table")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.yaml")
	body := `categories:
  - name: weather
    agent: weather_agent
    events:
      - name: favorite_weather
        probability: 0.3
        description: nice weather
  - name: interaction
    agent: interactive_agent
    events:
      - name: toy_claimed
        probability: 1.0
        claimed: true
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}

	tax, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !tax.Known("favorite_weather") || !tax.IsClaimed("toy_claimed") {
		t.Errorf("loaded taxonomy incomplete: %+v", tax)
	}
	if tax.EventCount() != 2 {
		t.Errorf("EventCount = %d, want 2", tax.EventCount())
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.yaml")
	if err := os.WriteFile(path, []byte("categories:\n  - name: weather\n"), 0600); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile accepted category without agent/events")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/events.yaml"); err == nil {
		t.Error("LoadFile accepted missing file")
	}
}

func TestCategories_Sorted(t *testing.T) {
	cats := Default().Categories()
	for i := 1; i < len(cats); i++ {
		if cats[i-1].Name >= cats[i].Name {
			t.Errorf("categories not sorted: %s >= %s", cats[i-1].Name, cats[i].Name)
		}
	}
}
