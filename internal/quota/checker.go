package quota

import (
	"fmt"
	"log/slog"

	"github.com/huangdanqi/pawprint/internal/event"
)

// Decision is the eligibility verdict for one event.
type Decision struct {
	// Eligible reports whether the event may generate a diary entry.
	Eligible bool
	// Claimed marks events that bypass quota entirely; the pipeline
	// must not Commit or Release for them.
	Claimed bool
	// Reason explains an ineligible verdict (quota_exhausted,
	// duplicate_type, already_pending).
	Reason string
}

// Checker decides whether an event is eligible to generate a diary
// entry today. Decision order: claimed events always pass; otherwise
// the quota manager's atomic reservation settles headroom and
// per-type uniqueness in one step.
type Checker struct {
	tax    *event.Taxonomy
	quota  *Manager
	logger *slog.Logger
}

// NewChecker builds a checker over the taxonomy and quota manager.
func NewChecker(tax *event.Taxonomy, quota *Manager, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		tax:    tax,
		quota:  quota,
		logger: logger.With("component", "condition_checker"),
	}
}

// Evaluate returns the verdict for ev. An event name missing from the
// taxonomy is a condition-evaluation error: the caller alerts and
// skips, it must not panic or consume quota. When the verdict is
// eligible and not claimed, a reservation is held: the caller owns the
// matching Commit (after the entry is stored) or Release (on any
// failure).
func (c *Checker) Evaluate(ev *event.Event) (Decision, error) {
	if !c.tax.Known(ev.EventName) {
		return Decision{}, fmt.Errorf("event name %q not in taxonomy", ev.EventName)
	}

	if c.tax.IsClaimed(ev.EventName) {
		c.logger.Debug("claimed event bypasses quota",
			"event_id", ev.EventID, "event_name", ev.EventName)
		return Decision{Eligible: true, Claimed: true}, nil
	}

	res := c.quota.Reserve(ev.EventName)
	if res != Reserved {
		c.logger.Debug("event ineligible",
			"event_id", ev.EventID, "event_name", ev.EventName, "reason", res.String())
		return Decision{Reason: res.String()}, nil
	}

	return Decision{Eligible: true}, nil
}
