// Package quota owns the daily diary quota: how many quota-consuming
// entries may be written today, and which event names have already
// written one. All mutation goes through a single mutex-owned Manager
// using a reserve/commit/release discipline, so two concurrent events
// of the same name can never both pass the uniqueness check, and a
// failed generation never consumes quota.
package quota

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/huangdanqi/pawprint/internal/events"
)

// DayFormat is the calendar-day key used throughout the package.
const DayFormat = "2006-01-02"

// ReserveResult explains a reservation outcome.
type ReserveResult int

const (
	// Reserved means the event may generate; the caller must Commit
	// after the entry is stored or Release on failure.
	Reserved ReserveResult = iota
	// ExhaustedQuota means today's quota is used up.
	ExhaustedQuota
	// DuplicateType means this event name already wrote an entry today.
	DuplicateType
	// AlreadyPending means a concurrent reservation for this name is
	// in flight.
	AlreadyPending
)

func (r ReserveResult) String() string {
	switch r {
	case Reserved:
		return "reserved"
	case ExhaustedQuota:
		return "quota_exhausted"
	case DuplicateType:
		return "duplicate_type"
	case AlreadyPending:
		return "already_pending"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the day state for logs and the API.
type Snapshot struct {
	Date    string   `json:"date"`
	Total   int      `json:"total"`
	Count   int      `json:"count"`
	Used    []string `json:"used_event_types"`
	Pending []string `json:"pending,omitempty"`
}

// Manager owns the mutable day state. Safe for concurrent use.
type Manager struct {
	minDaily int
	maxDaily int
	store    *Store // optional persistence; nil keeps state in memory
	bus      *events.Bus
	logger   *slog.Logger

	// intn is replaceable in tests to pin the randomized total.
	intn func(n int) int

	mu      sync.Mutex
	date    string
	total   int
	count   int
	used    map[string]bool
	pending map[string]bool
}

// NewManager builds a manager for today. When store is non-nil and
// holds state for today (mid-day restart), that state is restored;
// otherwise a fresh total is rolled in [minDaily, maxDaily].
func NewManager(minDaily, maxDaily int, store *Store, bus *events.Bus, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if minDaily < 0 || maxDaily < minDaily {
		return nil, fmt.Errorf("quota bounds min=%d max=%d (need 0 <= min <= max)", minDaily, maxDaily)
	}

	m := &Manager{
		minDaily: minDaily,
		maxDaily: maxDaily,
		store:    store,
		bus:      bus,
		logger:   logger.With("component", "quota"),
		intn:     rand.IntN,
		used:     make(map[string]bool),
		pending:  make(map[string]bool),
	}

	today := time.Now().Format(DayFormat)
	if store != nil {
		day, err := store.Load(today)
		if err != nil {
			return nil, fmt.Errorf("load quota day: %w", err)
		}
		if day != nil {
			m.date = day.Date
			m.total = day.Total
			m.count = day.Count
			for _, name := range day.Used {
				m.used[name] = true
			}
			m.logger.Info("quota state restored",
				"date", m.date, "total", m.total, "count", m.count)
			return m, nil
		}
	}

	m.resetLocked(today)
	return m, nil
}

// rollTotal draws the day's total in [minDaily, maxDaily].
func (m *Manager) rollTotal() int {
	if m.maxDaily == m.minDaily {
		return m.minDaily
	}
	return m.minDaily + m.intn(m.maxDaily-m.minDaily+1)
}

// Reserve atomically checks headroom and per-type uniqueness and, on
// success, marks eventName pending. Claimed events never call Reserve;
// the checker passes them through without touching quota state.
func (m *Manager) Reserve(eventName string) ReserveResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.used[eventName] {
		return DuplicateType
	}
	if m.pending[eventName] {
		return AlreadyPending
	}
	if m.count+len(m.pending) >= m.total {
		return ExhaustedQuota
	}

	m.pending[eventName] = true
	return Reserved
}

// Commit moves a reservation to used and consumes one quota slot. Call
// only after the diary entry is durably stored. Committing a name that
// was never reserved is a caller bug and is logged, not honored.
func (m *Manager) Commit(eventName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.pending[eventName] {
		m.logger.Warn("commit without reservation ignored", "event_name", eventName)
		return
	}
	delete(m.pending, eventName)
	m.used[eventName] = true
	m.count++

	m.persistLocked()

	if m.count >= m.total {
		m.bus.Emit(events.SourceQuota, events.KindQuotaExhausted, map[string]any{
			"date":  m.date,
			"total": m.total,
		})
	}
}

// Release drops a reservation without consuming quota. Safe to call
// for names that are not pending (no-op), so failure paths can release
// unconditionally.
func (m *Manager) Release(eventName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, eventName)
}

// ResetForDay starts a new diary day. Idempotent: invoking it again
// for the current date is a no-op, so a coarse scheduler may call it
// on every tick. Returns true when a reset actually happened.
func (m *Manager) ResetForDay(date time.Time) bool {
	day := date.Format(DayFormat)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.date == day {
		return false
	}
	m.resetLocked(day)
	return true
}

func (m *Manager) resetLocked(day string) {
	m.date = day
	m.total = m.rollTotal()
	m.count = 0
	m.used = make(map[string]bool)
	m.pending = make(map[string]bool)

	m.persistLocked()

	m.logger.Info("daily quota reset", "date", day, "total", m.total)
	m.bus.Emit(events.SourceQuota, events.KindQuotaReset, map[string]any{
		"date":  day,
		"total": m.total,
	})
}

// persistLocked writes the committed state through the store. Pending
// reservations are in-flight only and deliberately not persisted; a
// restart drops them along with the work they guarded.
func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}
	used := make([]string, 0, len(m.used))
	for name := range m.used {
		used = append(used, name)
	}
	sort.Strings(used)

	if err := m.store.Save(DayState{
		Date:  m.date,
		Total: m.total,
		Count: m.count,
		Used:  used,
	}); err != nil {
		// State stays correct in memory; persistence catches up on the
		// next commit or reset.
		m.logger.Error("persist quota state failed", "date", m.date, "error", err)
	}
}

// Snapshot returns a copy of the current day state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Date:  m.date,
		Total: m.total,
		Count: m.count,
	}
	for name := range m.used {
		s.Used = append(s.Used, name)
	}
	sort.Strings(s.Used)
	for name := range m.pending {
		s.Pending = append(s.Pending, name)
	}
	sort.Strings(s.Pending)
	return s
}
