// Package agents holds the six diary sub-agents. Each agent owns one
// event category: it assembles context, prompts the LLM gateway
// through the recovery orchestrator, and always produces a valid
// clamped entry, falling back to deterministic templates when
// generation fails outright.
package agents

import (
	"context"
	"errors"

	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
)

// ErrUnsupportedEvent is returned when an event name is outside the
// agent's set. The router treats this as a routing bug, not a
// generation failure.
var ErrUnsupportedEvent = errors.New("event not supported by this agent")

// Agent is one category sub-agent. Implementations are safe for
// concurrent use; the pipeline calls ProcessEvent from its workers.
type Agent interface {
	// Type returns the agent type key, e.g. "weather_agent".
	Type() string
	// Supports reports whether this agent handles eventName.
	Supports(eventName string) bool
	// ProcessEvent generates the diary entry for ev. The entry is
	// clamped and validated; an error means the agent could not produce
	// any entry at all (unsupported name or an internal bug), never a
	// mere LLM outage.
	ProcessEvent(ctx context.Context, ev *event.Event) (*diary.Entry, error)
}
