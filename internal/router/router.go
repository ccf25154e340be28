// Package router matches events to the sub-agent that owns their
// category. The routing table is built once at startup from the
// taxonomy; a category naming an agent that was never constructed is
// a configuration error rejected before the pipeline starts.
package router

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/huangdanqi/pawprint/internal/agents"
	"github.com/huangdanqi/pawprint/internal/event"
)

// Stats tracks routing outcomes per agent type.
type Stats struct {
	TotalEvents int64            `json:"total_events"`
	Routed      map[string]int64 `json:"routed"`
	Failed      map[string]int64 `json:"failed"`
}

// Router holds the static event_type to agent table.
type Router struct {
	logger *slog.Logger
	byType map[string]agents.Agent

	mu     sync.RWMutex
	routed map[string]int64
	failed map[string]int64
	total  int64
}

// failedUnknown is the Stats key for events whose type has no agent.
const failedUnknown = "unknown"

// New builds the routing table from the taxonomy. Every category must
// be covered by exactly one of the available agents.
func New(tax *event.Taxonomy, available []agents.Agent, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}

	byAgentType := make(map[string]agents.Agent, len(available))
	for _, a := range available {
		byAgentType[a.Type()] = a
	}

	byType := make(map[string]agents.Agent)
	for _, cat := range tax.Categories() {
		a, ok := byAgentType[cat.Agent]
		if !ok {
			return nil, fmt.Errorf("category %q names agent %q but no such agent is registered",
				cat.Name, cat.Agent)
		}
		byType[cat.Name] = a
	}

	return &Router{
		logger: logger.With("component", "router"),
		byType: byType,
		routed: make(map[string]int64),
		failed: make(map[string]int64),
	}, nil
}

// Route returns the agent for ev. A miss is reported, counted, and
// returned as an error; the pipeline skips the event rather than
// retrying a mapping that cannot change at runtime.
func (r *Router) Route(ev *event.Event) (agents.Agent, error) {
	r.mu.Lock()
	r.total++
	r.mu.Unlock()

	a, ok := r.byType[ev.EventType]
	if !ok {
		r.count(r.failed, failedUnknown)
		r.logger.Warn("no agent for event type",
			"event_id", ev.EventID, "event_type", ev.EventType)
		return nil, fmt.Errorf("no agent for event type %q", ev.EventType)
	}

	if !a.Supports(ev.EventName) {
		r.count(r.failed, a.Type())
		r.logger.Warn("agent does not support event name",
			"event_id", ev.EventID, "agent", a.Type(), "event_name", ev.EventName)
		return nil, fmt.Errorf("agent %s does not support event %q", a.Type(), ev.EventName)
	}

	r.count(r.routed, a.Type())
	r.logger.Debug("event routed",
		"event_id", ev.EventID, "event_name", ev.EventName, "agent", a.Type())
	return a, nil
}

func (r *Router) count(m map[string]int64, key string) {
	r.mu.Lock()
	m[key]++
	r.mu.Unlock()
}

// Stats returns a copy of the routing counters.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		TotalEvents: r.total,
		Routed:      make(map[string]int64, len(r.routed)),
		Failed:      make(map[string]int64, len(r.failed)),
	}
	for k, v := range r.routed {
		s.Routed[k] = v
	}
	for k, v := range r.failed {
		s.Failed[k] = v
	}
	return s
}

// AgentTypes returns the distinct agent types in the table.
func (r *Router) AgentTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range r.byType {
		if seen[a.Type()] {
			continue
		}
		seen[a.Type()] = true
		out = append(out, a.Type())
	}
	return out
}
