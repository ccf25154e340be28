package event

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// EventDef describes one supported event within a category. The
// probability and description fields belong to the upstream trigger
// source; the pipeline itself only consults existence and the claimed
// flag, but malformed values are still rejected at load time.
type EventDef struct {
	Name        string  `yaml:"name"`
	Probability float64 `yaml:"probability"`
	Description string  `yaml:"description"`
	// Claimed events always generate a diary entry, bypassing the
	// daily quota and the one-per-type rule.
	Claimed bool `yaml:"claimed,omitempty"`
}

// Category groups events of one type and names the agent that
// handles them.
type Category struct {
	Name   string     `yaml:"name"`  // event_type key, e.g. "weather"
	Agent  string     `yaml:"agent"` // handling agent type, e.g. "weather_agent"
	Events []EventDef `yaml:"events"`
}

// Taxonomy is the validated category table. Built once at startup;
// read-only afterwards, so it is safe for concurrent use.
type Taxonomy struct {
	categories map[string]*Category // by category name
	byEvent    map[string]*Category // event name -> owning category
	defs       map[string]*EventDef // event name -> definition
}

type taxonomyFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadFile reads a taxonomy from a YAML file. Malformed tables are a
// startup error, never a dispatch-time surprise.
func LoadFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var f taxonomyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	t, err := FromCategories(f.Categories)
	if err != nil {
		return nil, fmt.Errorf("taxonomy %s: %w", path, err)
	}
	return t, nil
}

// FromCategories validates and indexes a category table.
func FromCategories(cats []Category) (*Taxonomy, error) {
	if len(cats) == 0 {
		return nil, fmt.Errorf("no categories defined")
	}

	t := &Taxonomy{
		categories: make(map[string]*Category),
		byEvent:    make(map[string]*Category),
		defs:       make(map[string]*EventDef),
	}

	for i := range cats {
		c := &cats[i]
		if c.Name == "" {
			return nil, fmt.Errorf("category %d has no name", i)
		}
		if c.Agent == "" {
			return nil, fmt.Errorf("category %q names no agent", c.Name)
		}
		if _, dup := t.categories[c.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.Name)
		}
		if len(c.Events) == 0 {
			return nil, fmt.Errorf("category %q defines no events", c.Name)
		}
		t.categories[c.Name] = c

		for j := range c.Events {
			def := &c.Events[j]
			if def.Name == "" {
				return nil, fmt.Errorf("category %q event %d has no name", c.Name, j)
			}
			if def.Probability < 0 || def.Probability > 1 {
				return nil, fmt.Errorf("event %q probability %v outside [0,1]", def.Name, def.Probability)
			}
			if prev, dup := t.byEvent[def.Name]; dup {
				return nil, fmt.Errorf("event %q defined in both %q and %q", def.Name, prev.Name, c.Name)
			}
			t.byEvent[def.Name] = c
			t.defs[def.Name] = def
		}
	}

	return t, nil
}

// Default returns the built-in taxonomy covering the trigger families
// the toy currently observes.
func Default() *Taxonomy {
	t, err := FromCategories(defaultCategories())
	if err != nil {
		// The built-in table is part of the program; failing to build
		// it is a bug, not a runtime condition.
		panic(fmt.Sprintf("built-in taxonomy invalid: %v", err))
	}
	return t
}

func defaultCategories() []Category {
	return []Category{
		{
			Name:  "weather",
			Agent: "weather_agent",
			Events: []EventDef{
				{Name: "favorite_weather", Probability: 0.3, Description: "today's weather matches a favorite"},
				{Name: "dislike_weather", Probability: 0.3, Description: "today's weather matches a disliked kind"},
				{Name: "favorite_season", Probability: 0.2, Description: "a favorite season has begun"},
				{Name: "dislike_season", Probability: 0.2, Description: "a disliked season has begun"},
			},
		},
		{
			Name:  "holiday",
			Agent: "holiday_agent",
			Events: []EventDef{
				{Name: "approaching_holiday", Probability: 0.7, Description: "a holiday is 1-3 days away"},
				{Name: "during_holiday", Probability: 0.9, Description: "today is the holiday"},
				{Name: "holiday_ends", Probability: 0.5, Description: "the holiday ended 1-3 days ago"},
			},
		},
		{
			Name:  "friend",
			Agent: "friend_agent",
			Events: []EventDef{
				{Name: "made_new_friend", Probability: 0.8, Description: "a new friend was added"},
				{Name: "friend_deleted", Probability: 0.6, Description: "a friend was removed"},
			},
		},
		{
			Name:  "interaction",
			Agent: "interactive_agent",
			Events: []EventDef{
				{Name: "liked_interaction_once", Probability: 0.4, Description: "a single pleasant touch"},
				{Name: "liked_interaction_3_to_5_times", Probability: 0.6, Description: "several pleasant touches in a row"},
				{Name: "disliked_interaction", Probability: 0.4, Description: "a rough or unwanted touch"},
				{Name: "toy_claimed", Probability: 1.0, Description: "the toy was adopted by its owner", Claimed: true},
				{Name: "positive_dialogue", Probability: 1.0, Description: "the owner said something affirming", Claimed: true},
			},
		},
		{
			Name:  "neglect",
			Agent: "neglect_agent",
			Events: []EventDef{
				{Name: "neglect_1_day_no_dialogue", Probability: 0.5, Description: "one day without conversation"},
				{Name: "neglect_1_day_no_interaction", Probability: 0.5, Description: "one day without touch"},
				{Name: "neglect_3_days_no_dialogue", Probability: 0.6, Description: "three days without conversation"},
				{Name: "neglect_3_days_no_interaction", Probability: 0.6, Description: "three days without touch"},
				{Name: "neglect_7_days_no_dialogue", Probability: 0.8, Description: "a week without conversation"},
				{Name: "neglect_7_days_no_interaction", Probability: 0.8, Description: "a week without touch"},
				{Name: "neglect_15_days_no_interaction", Probability: 0.9, Description: "two weeks without touch"},
				{Name: "neglect_30_days_no_dialogue", Probability: 1.0, Description: "a month without conversation"},
			},
		},
		{
			Name:  "sensor",
			Agent: "sensor_agent",
			Events: []EventDef{
				{Name: "sensor_shake", Probability: 0.3, Description: "the toy was shaken"},
				{Name: "sensor_double_tap", Probability: 0.3, Description: "the toy was tapped twice"},
				{Name: "sensor_freefall", Probability: 0.7, Description: "the toy fell"},
				{Name: "sensor_tilt", Probability: 0.2, Description: "the toy was tipped over"},
			},
		},
	}
}

// Known reports whether eventName exists anywhere in the table.
func (t *Taxonomy) Known(eventName string) bool {
	_, ok := t.defs[eventName]
	return ok
}

// IsClaimed reports whether eventName bypasses quota and uniqueness.
// Unknown names are not claimed.
func (t *Taxonomy) IsClaimed(eventName string) bool {
	def, ok := t.defs[eventName]
	return ok && def.Claimed
}

// CategoryFor returns the category owning eventName.
func (t *Taxonomy) CategoryFor(eventName string) (*Category, bool) {
	c, ok := t.byEvent[eventName]
	return c, ok
}

// TypeFor returns the event_type key for eventName.
func (t *Taxonomy) TypeFor(eventName string) (string, bool) {
	c, ok := t.byEvent[eventName]
	if !ok {
		return "", false
	}
	return c.Name, true
}

// AgentFor returns the agent type registered for an event_type key.
func (t *Taxonomy) AgentFor(eventType string) (string, bool) {
	c, ok := t.categories[eventType]
	if !ok {
		return "", false
	}
	return c.Agent, true
}

// Categories returns all categories sorted by name.
func (t *Taxonomy) Categories() []*Category {
	out := make([]*Category, 0, len(t.categories))
	for _, c := range t.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ClaimedEvents returns the names of all claimed events, sorted.
func (t *Taxonomy) ClaimedEvents() []string {
	var out []string
	for name, def := range t.defs {
		if def.Claimed {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// EventCount returns the number of distinct event names.
func (t *Taxonomy) EventCount() int {
	return len(t.defs)
}
