package recovery

import (
	"sync"
	"time"

	"github.com/huangdanqi/pawprint/internal/events"
)

// ComponentStatus is the coarse health of one registered component.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
)

// componentRecord is the registry row for one component.
type componentRecord struct {
	Status    ComponentStatus `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
	Reason    string          `json:"reason,omitempty"`
}

// StatusRegistry tracks component health for the orchestrator and the
// health monitor. Unregistered components read as healthy: absence of
// evidence is not a failure.
type StatusRegistry struct {
	bus *events.Bus

	mu         sync.RWMutex
	components map[string]componentRecord
}

// NewStatusRegistry builds a registry publishing transitions to bus
// (nil bus is fine).
func NewStatusRegistry(bus *events.Bus) *StatusRegistry {
	return &StatusRegistry{
		bus:        bus,
		components: make(map[string]componentRecord),
	}
}

// Set records a component's status. No-op when the status is
// unchanged, so repeated degradations do not spam the bus.
func (r *StatusRegistry) Set(component string, status ComponentStatus, reason string) {
	r.mu.Lock()
	prev, known := r.components[component]
	if known && prev.Status == status {
		r.mu.Unlock()
		return
	}
	r.components[component] = componentRecord{
		Status:    status,
		UpdatedAt: time.Now(),
		Reason:    reason,
	}
	r.mu.Unlock()

	r.bus.Emit(events.SourceRecovery, events.KindComponentStatus, map[string]any{
		"component": component,
		"status":    string(status),
		"reason":    reason,
	})
}

// Get returns the component's status, defaulting to healthy.
func (r *StatusRegistry) Get(component string) ComponentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.components[component]; ok {
		return rec.Status
	}
	return StatusHealthy
}

// Snapshot returns a copy of the full registry.
func (r *StatusRegistry) Snapshot() map[string]ComponentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ComponentStatus, len(r.components))
	for name, rec := range r.components {
		out[name] = rec.Status
	}
	return out
}

// AnyUnhealthy reports whether any component is unhealthy. The health
// endpoint turns this into a 503.
func (r *StatusRegistry) AnyUnhealthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.components {
		if rec.Status == StatusUnhealthy {
			return true
		}
	}
	return false
}
