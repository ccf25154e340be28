package quota

import (
	"testing"

	"github.com/huangdanqi/pawprint/internal/event"
)

func testChecker(t *testing.T, total int) (*Checker, *Manager) {
	t.Helper()
	m := testManager(t, total)
	return NewChecker(event.Default(), m, nil), m
}

func TestEvaluate_EligibleReservesSlot(t *testing.T) {
	c, m := testChecker(t, 2)

	ev := event.New("weather", "favorite_weather", "user-1", nil)
	d, err := c.Evaluate(ev)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Eligible || d.Claimed {
		t.Fatalf("decision = %+v, want eligible non-claimed", d)
	}

	// The reservation is held until the caller commits or releases.
	if snap := m.Snapshot(); len(snap.Pending) != 1 {
		t.Errorf("pending = %v, want one reservation", snap.Pending)
	}
}

func TestEvaluate_ClaimedBypassesExhaustedQuota(t *testing.T) {
	c, m := testChecker(t, 1)

	// Exhaust the quota.
	m.Reserve("favorite_weather")
	m.Commit("favorite_weather")

	d, err := c.Evaluate(event.New("interaction", "toy_claimed", "user-1", nil))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Eligible || !d.Claimed {
		t.Errorf("decision = %+v, want eligible claimed", d)
	}

	// Claimed events never touch quota state.
	snap := m.Snapshot()
	if snap.Count != 1 || len(snap.Pending) != 0 {
		t.Errorf("quota state %+v mutated by claimed event", snap)
	}
}

func TestEvaluate_ClaimedRepeatsSameDay(t *testing.T) {
	c, _ := testChecker(t, 1)

	for i := 0; i < 3; i++ {
		d, err := c.Evaluate(event.New("interaction", "positive_dialogue", "user-1", nil))
		if err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
		if !d.Eligible {
			t.Fatalf("claimed event ineligible on repeat %d", i)
		}
	}
}

func TestEvaluate_QuotaExhausted(t *testing.T) {
	c, m := testChecker(t, 1)
	m.Reserve("favorite_weather")
	m.Commit("favorite_weather")

	d, err := c.Evaluate(event.New("sensor", "sensor_shake", "user-1", nil))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Eligible {
		t.Fatal("eligible despite exhausted quota")
	}
	if d.Reason != "quota_exhausted" {
		t.Errorf("reason = %q, want quota_exhausted", d.Reason)
	}
}

func TestEvaluate_DuplicateType(t *testing.T) {
	c, m := testChecker(t, 5)
	m.Reserve("sensor_shake")
	m.Commit("sensor_shake")

	d, err := c.Evaluate(event.New("sensor", "sensor_shake", "user-1", nil))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Eligible {
		t.Fatal("eligible despite duplicate type")
	}
	if d.Reason != "duplicate_type" {
		t.Errorf("reason = %q, want duplicate_type", d.Reason)
	}
}

func TestEvaluate_UnknownNameIsError(t *testing.T) {
	c, m := testChecker(t, 5)

	_, err := c.Evaluate(event.New("weather", "totally_unknown", "user-1", nil))
	if err == nil {
		t.Fatal("unknown event name accepted")
	}

	// Evaluation failure must not leak a reservation.
	if snap := m.Snapshot(); len(snap.Pending) != 0 {
		t.Errorf("pending = %v after failed evaluation, want empty", snap.Pending)
	}
}
