package recovery

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huangdanqi/pawprint/internal/events"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alert is one operator-facing incident record.
type Alert struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Component string    `json:"component"`
	Category  Category  `json:"category"`
	Message   string    `json:"message"`
	// RequiresManualIntervention marks alerts that automated recovery
	// gave up on; someone has to look.
	RequiresManualIntervention bool `json:"requires_manual_intervention"`
}

// alertLogCap bounds the in-memory alert history.
const alertLogCap = 200

// AlertLog keeps the most recent alerts in memory and publishes each
// one to the bus. Alerts are operational breadcrumbs, not durable
// records; the log resets with the process.
type AlertLog struct {
	bus *events.Bus

	mu     sync.RWMutex
	alerts []Alert
}

// NewAlertLog builds an alert log publishing to bus (nil bus is fine).
func NewAlertLog(bus *events.Bus) *AlertLog {
	return &AlertLog{bus: bus}
}

// Raise records an alert and returns it.
func (l *AlertLog) Raise(severity Severity, component string, category Category, message string, manual bool) Alert {
	a := Alert{
		ID:                         uuid.Must(uuid.NewV7()).String(),
		Timestamp:                  time.Now(),
		Severity:                   severity,
		Component:                  component,
		Category:                   category,
		Message:                    message,
		RequiresManualIntervention: manual,
	}

	l.mu.Lock()
	l.alerts = append(l.alerts, a)
	if len(l.alerts) > alertLogCap {
		l.alerts = l.alerts[len(l.alerts)-alertLogCap:]
	}
	l.mu.Unlock()

	l.bus.Emit(events.SourceRecovery, events.KindRecoveryAlert, map[string]any{
		"alert_id":  a.ID,
		"severity":  string(a.Severity),
		"component": a.Component,
		"category":  string(a.Category),
		"manual":    a.RequiresManualIntervention,
	})
	return a
}

// Recent returns up to limit alerts, newest first. limit <= 0 returns
// everything retained.
func (l *AlertLog) Recent(limit int) []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.alerts)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		out[i] = l.alerts[n-1-i]
	}
	return out
}

// Count returns the number of retained alerts.
func (l *AlertLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alerts)
}
