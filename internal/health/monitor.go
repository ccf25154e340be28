// Package health watches the daemon's external dependencies (LLM
// provider, diary store, MQTT broker) with timed probes and feeds the
// transitions into the recovery status registry that /healthz reads.
//
// Each probe runs in two phases: a startup window of exponential
// backoff (a freshly booted device often comes up before its network
// does), then steady periodic polling with transition reporting.
package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huangdanqi/pawprint/internal/recovery"
)

// ProbeFunc checks one dependency. nil means reachable.
type ProbeFunc func(ctx context.Context) error

// Backoff controls startup retry timing and steady-state polling.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int
	PollInterval time.Duration
	ProbeTimeout time.Duration
}

// DefaultBackoff returns the production schedule: 2s, 4s, 8s, ...
// capped at 60s for 10 startup attempts, then 60s polling.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   10,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

// unhealthyAfter is the consecutive-failure count at which a critical
// probe escalates from degraded to unhealthy.
const unhealthyAfter = 3

// ProbeConfig configures one watched dependency.
type ProbeConfig struct {
	Name    string
	Probe   ProbeFunc
	Backoff Backoff
	// Critical dependencies go UNHEALTHY after repeated failures and
	// take /healthz to 503. Non-critical ones stay DEGRADED.
	Critical bool
}

// ProbeStatus is one dependency's health, shaped for /healthz.
type ProbeStatus struct {
	Name             string    `json:"name"`
	Ready            bool      `json:"ready"`
	LastCheck        time.Time `json:"last_check"`
	LastError        string    `json:"last_error,omitempty"`
	ConsecutiveFails int       `json:"consecutive_fails,omitempty"`
}

// watcher runs one probe loop.
type watcher struct {
	cfg      ProbeConfig
	monitor  *Monitor
	ready    atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}

	mu        sync.Mutex
	lastErr   error
	lastCheck time.Time
	fails     int
}

// Monitor owns the probe watchers and reports transitions to the
// status registry.
type Monitor struct {
	statuses *recovery.StatusRegistry
	logger   *slog.Logger

	mu       sync.RWMutex
	watchers map[string]*watcher
}

// NewMonitor builds a monitor over the given registry.
func NewMonitor(statuses *recovery.StatusRegistry, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		statuses: statuses,
		logger:   logger.With("component", "health"),
		watchers: make(map[string]*watcher),
	}
}

// Watch registers and starts a probe. Panics on an empty name or nil
// probe; both are programming errors. Zero backoff fields take
// defaults.
func (m *Monitor) Watch(ctx context.Context, cfg ProbeConfig) {
	if cfg.Name == "" {
		panic("health: ProbeConfig.Name must not be empty")
	}
	if cfg.Probe == nil {
		panic("health: ProbeConfig.Probe must not be nil")
	}
	cfg.Backoff = withDefaults(cfg.Backoff)

	watchCtx, cancel := context.WithCancel(ctx)
	w := &watcher{
		cfg:     cfg,
		monitor: m,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.run(watchCtx)

	m.mu.Lock()
	m.watchers[cfg.Name] = w
	m.mu.Unlock()
}

func withDefaults(b Backoff) Backoff {
	d := DefaultBackoff()
	if b.InitialDelay <= 0 {
		b.InitialDelay = d.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = d.MaxDelay
	}
	if b.Multiplier <= 0 {
		b.Multiplier = d.Multiplier
	}
	if b.MaxRetries <= 0 {
		b.MaxRetries = d.MaxRetries
	}
	if b.PollInterval <= 0 {
		b.PollInterval = d.PollInterval
	}
	if b.ProbeTimeout <= 0 {
		b.ProbeTimeout = d.ProbeTimeout
	}
	return b
}

// Status returns every probe's current state.
func (m *Monitor) Status() map[string]ProbeStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ProbeStatus, len(m.watchers))
	for name, w := range m.watchers {
		out[name] = w.status()
	}
	return out
}

// Stop cancels all watchers and waits for their goroutines.
func (m *Monitor) Stop() {
	m.mu.RLock()
	watchers := make([]*watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.RUnlock()

	for _, w := range watchers {
		w.cancel()
		<-w.done
	}
}

func (w *watcher) status() ProbeStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := ProbeStatus{
		Name:             w.cfg.Name,
		Ready:            w.ready.Load(),
		LastCheck:        w.lastCheck,
		ConsecutiveFails: w.fails,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// run is the probe loop: startup backoff, then periodic polling.
func (w *watcher) run(ctx context.Context) {
	defer close(w.done)

	logger := w.monitor.logger
	cfg := w.cfg.Backoff

	delay := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		err := w.probe(ctx)
		w.record(err)

		if err == nil {
			w.markReady(attempt)
			break
		}
		if attempt == cfg.MaxRetries {
			logger.Info("startup probes exhausted, entering background polling",
				"probe", w.cfg.Name, "attempts", attempt, "error", err)
			w.markDown(err)
			break
		}

		logger.Debug("startup probe failed, retrying",
			"probe", w.cfg.Name, "attempt", attempt, "next_delay", delay.String(), "error", err)
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.probe(ctx)
			w.record(err)

			switch {
			case err != nil && w.ready.Load():
				logger.Info("dependency became unreachable",
					"probe", w.cfg.Name, "error", err)
				w.markDown(err)
			case err != nil:
				w.markDown(err)
			case !w.ready.Load():
				logger.Info("dependency recovered", "probe", w.cfg.Name)
				w.markReady(0)
			}
		}
	}
}

func (w *watcher) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.Backoff.ProbeTimeout)
	defer cancel()
	return w.cfg.Probe(probeCtx)
}

func (w *watcher) record(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.lastCheck = time.Now()
	if err != nil {
		w.fails++
	} else {
		w.fails = 0
	}
	w.mu.Unlock()
}

func (w *watcher) markReady(attempt int) {
	w.ready.Store(true)
	if attempt > 1 {
		w.monitor.logger.Info("dependency reachable",
			"probe", w.cfg.Name, "after_attempts", attempt)
	}
	w.monitor.statuses.Set(w.cfg.Name, recovery.StatusHealthy, "")
}

// markDown reports a failing probe: degraded first, unhealthy once a
// critical dependency keeps failing.
func (w *watcher) markDown(err error) {
	w.ready.Store(false)

	w.mu.Lock()
	fails := w.fails
	w.mu.Unlock()

	status := recovery.StatusDegraded
	if w.cfg.Critical && fails >= unhealthyAfter {
		status = recovery.StatusUnhealthy
	}
	w.monitor.statuses.Set(w.cfg.Name, status, err.Error())
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false when
// cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
