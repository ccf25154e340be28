package prompts

import (
	"strings"
	"testing"

	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/eventctx"
)

func testData(t *testing.T, eventType, eventName string, payload map[string]any) *eventctx.Data {
	t.Helper()
	return eventctx.Minimal(event.New(eventType, eventName, "user-1", payload))
}

func TestWeatherPrompt_DemandsStrictJSON(t *testing.T) {
	system, user := WeatherPrompt("favorite_weather", testData(t, "weather", "favorite_weather", map[string]any{
		"weather": "sunny",
	}))

	if !strings.Contains(system, `{"title": "...", "content": "...", "emotion_tags": ["..."]}`) {
		t.Error("system prompt missing the response shape")
	}
	if !strings.Contains(system, "happy_joyful") || !strings.Contains(system, "worried") {
		t.Error("system prompt missing the emotion vocabulary")
	}
	if !strings.Contains(user, "one of your favorites") {
		t.Errorf("user prompt missing the stance line:\n%s", user)
	}
	if !strings.Contains(user, "weather: sunny") {
		t.Errorf("user prompt missing context fields:\n%s", user)
	}
}

func TestHolidayPrompt_EmbedsNameAndTiming(t *testing.T) {
	_, user := HolidayPrompt("Spring Festival", "3 days before Spring Festival",
		testData(t, "holiday", "approaching_holiday", nil))

	if !strings.Contains(user, "The holiday: Spring Festival") {
		t.Errorf("holiday name missing:\n%s", user)
	}
	if !strings.Contains(user, "it is 3 days before Spring Festival") {
		t.Errorf("timing phrase missing:\n%s", user)
	}
}

func TestSensorPrompt_DescriptionShape(t *testing.T) {
	system, user := SensorPrompt("sensor_freefall", testData(t, "sensor", "sensor_freefall", nil))

	if !strings.Contains(system, `{"description": "..."}`) {
		t.Error("sensor system prompt missing the description shape")
	}
	if strings.Contains(system, "emotion_tags") {
		t.Error("sensor system prompt should not mention emotion tags")
	}
	if !strings.Contains(user, "falling through the air") {
		t.Errorf("sensation line missing:\n%s", user)
	}
}

func TestNeglectPhrase(t *testing.T) {
	cases := []struct {
		days int
		kind string
		want string
	}{
		{1, "dialogue", "1 day since your person talked with you"},
		{7, "interaction", "7 days since your person interacted with you"},
		{30, "dialogue", "30 days since your person talked with you"},
	}
	for _, tc := range cases {
		if got := NeglectPhrase(tc.days, tc.kind); got != tc.want {
			t.Errorf("NeglectPhrase(%d, %q) = %q, want %q", tc.days, tc.kind, got, tc.want)
		}
	}
}

func TestFriendPrompt_UnknownNameFallsBack(t *testing.T) {
	_, user := FriendPrompt("friend_visited", testData(t, "friend", "friend_visited", nil))
	if !strings.Contains(user, "something changed among your friends") {
		t.Errorf("fallback stance missing:\n%s", user)
	}
}

func TestInteractivePrompt_PerNameMoments(t *testing.T) {
	for name, want := range map[string]string{
		"toy_claimed":       "claimed you",
		"positive_dialogue": "lovely conversation",
	} {
		_, user := InteractivePrompt(name, testData(t, "interaction", name, nil))
		if !strings.Contains(user, want) {
			t.Errorf("%s: user prompt missing %q:\n%s", name, want, user)
		}
	}
}
