package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/huangdanqi/pawprint/internal/events"
)

// Strategy is one recovery tactic. Plans list strategies in the order
// they are tried.
type Strategy string

const (
	StrategyRetryWithBackoff    Strategy = "retry_with_backoff"
	StrategyFailoverToBackup    Strategy = "failover_to_backup"
	StrategyGracefulDegradation Strategy = "graceful_degradation"
	StrategyCircuitBreaker      Strategy = "circuit_breaker"
	StrategyQueueForLater       Strategy = "queue_for_later"
	StrategyUseCachedResponse   Strategy = "use_cached_response"
	StrategyAlertAndContinue    Strategy = "alert_and_continue"
	StrategyEmergencyShutdown   Strategy = "emergency_shutdown"
)

// Operation is a protected call. The orchestrator may invoke it
// several times (retries), so it must be idempotent from the caller's
// point of view.
type Operation func(ctx context.Context) (any, error)

// Config tunes the orchestrator.
type Config struct {
	Breaker             BreakerConfig
	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	EscalationThreshold int
	EscalationWindow    time.Duration
	CacheSize           int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Breaker:             DefaultBreakerConfig(),
		RetryMaxAttempts:    3,
		RetryBaseDelay:      500 * time.Millisecond,
		RetryMaxDelay:       60 * time.Second,
		EscalationThreshold: 5,
		EscalationWindow:    time.Hour,
		CacheSize:           64,
	}
}

// DeferredCall is a queued retry marker left by QUEUE_FOR_LATER. The
// pipeline owner decides when (and whether) to replay these.
type DeferredCall struct {
	Component string    `json:"component"`
	Category  Category  `json:"category"`
	Key       string    `json:"key"`
	QueuedAt  time.Time `json:"queued_at"`
}

// deferredCap bounds the deferred queue; beyond it, the oldest marker
// is dropped.
const deferredCap = 64

// Orchestrator runs protected calls through a per-component circuit
// breaker and, on failure, walks the error category's recovery plan
// until a strategy resolves the call or the plan is exhausted.
type Orchestrator struct {
	cfg      Config
	statuses *StatusRegistry
	alerts   *AlertLog
	cache    *responseCache
	logger   *slog.Logger

	// now is replaceable in tests for the escalation window.
	now func() time.Time

	mu        sync.Mutex
	breakers  map[string]*Breaker
	fallbacks map[string]Operation
	backups   map[string]Operation
	deferred  []DeferredCall
	attempts  map[string][]time.Time // (category|component) -> recovery round times
}

// New builds an orchestrator. bus may be nil; statuses and alerts are
// created internally when nil so callers can start small.
func New(cfg Config, statuses *StatusRegistry, alerts *AlertLog, bus *events.Bus, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if statuses == nil {
		statuses = NewStatusRegistry(bus)
	}
	if alerts == nil {
		alerts = NewAlertLog(bus)
	}
	if cfg.RetryMaxAttempts < 1 {
		cfg.RetryMaxAttempts = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 60 * time.Second
	}
	if cfg.EscalationThreshold < 1 {
		cfg.EscalationThreshold = 5
	}
	if cfg.EscalationWindow <= 0 {
		cfg.EscalationWindow = time.Hour
	}
	return &Orchestrator{
		cfg:       cfg,
		statuses:  statuses,
		alerts:    alerts,
		cache:     newResponseCache(cfg.CacheSize),
		logger:    logger.With("component", "recovery"),
		now:       time.Now,
		breakers:  make(map[string]*Breaker),
		fallbacks: make(map[string]Operation),
		backups:   make(map[string]Operation),
		attempts:  make(map[string][]time.Time),
	}
}

// Statuses exposes the component status registry.
func (o *Orchestrator) Statuses() *StatusRegistry { return o.statuses }

// Alerts exposes the alert log.
func (o *Orchestrator) Alerts() *AlertLog { return o.alerts }

// RegisterFallback installs the function GRACEFUL_DEGRADATION invokes
// for a component.
func (o *Orchestrator) RegisterFallback(component string, fn Operation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks[component] = fn
}

// RegisterBackup installs the function FAILOVER_TO_BACKUP invokes for
// a component.
func (o *Orchestrator) RegisterBackup(component string, fn Operation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backups[component] = fn
}

// Deferred returns a copy of the queued-for-later markers.
func (o *Orchestrator) Deferred() []DeferredCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]DeferredCall, len(o.deferred))
	copy(out, o.deferred)
	return out
}

// planFor returns the ordered strategy list for a category. Every
// plan terminates with a strategy that cannot loop (alert or
// shutdown), so recovery always halts.
func planFor(category Category) []Strategy {
	switch category {
	case CategoryLLMAPIFailure:
		return []Strategy{
			StrategyRetryWithBackoff,
			StrategyFailoverToBackup,
			StrategyGracefulDegradation,
			StrategyCircuitBreaker,
			StrategyUseCachedResponse,
			StrategyAlertAndContinue,
		}
	case CategoryNetwork:
		return []Strategy{
			StrategyRetryWithBackoff,
			StrategyCircuitBreaker,
			StrategyQueueForLater,
			StrategyUseCachedResponse,
			StrategyAlertAndContinue,
		}
	case CategoryDatabase:
		return []Strategy{
			StrategyRetryWithBackoff,
			StrategyUseCachedResponse,
			StrategyAlertAndContinue,
		}
	case CategorySubAgentFailure:
		return []Strategy{
			StrategyRetryWithBackoff,
			StrategyGracefulDegradation,
			StrategyAlertAndContinue,
		}
	case CategoryDataValidation:
		return []Strategy{
			StrategyGracefulDegradation,
			StrategyAlertAndContinue,
		}
	case CategoryConditionEvaluation:
		return []Strategy{
			StrategyAlertAndContinue,
		}
	case CategoryConfiguration:
		return []Strategy{
			StrategyAlertAndContinue,
			StrategyEmergencyShutdown,
		}
	default:
		return []Strategy{
			StrategyRetryWithBackoff,
			StrategyAlertAndContinue,
		}
	}
}

// breaker returns (creating on first use) the breaker for component.
func (o *Orchestrator) breaker(component string) *Breaker {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.breakers[component]; ok {
		return b
	}
	b := NewBreaker(component, o.cfg.Breaker, o.onBreakerState)
	o.breakers[component] = b
	return b
}

func (o *Orchestrator) onBreakerState(name string, from, to BreakerState) {
	o.logger.Warn("breaker transition",
		"breaker", name, "from", from.String(), "to", to.String())
	o.statuses.bus.Emit(events.SourceRecovery, events.KindBreakerState, map[string]any{
		"component": name,
		"from":      from.String(),
		"to":        to.String(),
	})
	if to == BreakerOpen {
		o.statuses.Set(name, StatusDegraded, "circuit breaker open")
	}
}

// Execute runs op through component's breaker. On success the result
// is cached under cacheKey and returned. On failure the category's
// recovery plan runs; a resolving strategy's value is returned with a
// nil error, otherwise the original failure comes back and the caller
// proceeds to its own fallback.
func (o *Orchestrator) Execute(ctx context.Context, component string, category Category, cacheKey string, op Operation) (any, error) {
	br := o.breaker(component)

	out, err := br.Call(ctx, op)
	if err == nil {
		o.cache.Put(component, cacheKey, out)
		o.statuses.Set(component, StatusHealthy, "")
		return out, nil
	}

	return o.recover(ctx, br, component, category, cacheKey, op, err)
}

func (o *Orchestrator) recover(ctx context.Context, br *Breaker, component string, category Category, cacheKey string, op Operation, cause error) (any, error) {
	if o.escalate(component, category) {
		a := o.alerts.Raise(SeverityCritical, component, category,
			fmt.Sprintf("recovery threshold exceeded (%d rounds in %s): %v",
				o.cfg.EscalationThreshold, o.cfg.EscalationWindow, cause),
			true)
		o.logger.Error("recovery escalated, strategies skipped",
			"component", component, "category", string(category), "alert_id", a.ID)
		return nil, fmt.Errorf("%s recovery escalated: %w", component, cause)
	}

	plan := planFor(category)
	o.logger.Warn("recovery plan started",
		"component", component,
		"category", string(category),
		"strategies", len(plan),
		"cause", cause,
	)

	for _, strategy := range plan {
		switch strategy {
		case StrategyRetryWithBackoff:
			if out, ok := o.retryWithBackoff(ctx, br, component, op); ok {
				o.cache.Put(component, cacheKey, out)
				o.statuses.Set(component, StatusHealthy, "")
				return out, nil
			}

		case StrategyFailoverToBackup:
			o.mu.Lock()
			backup := o.backups[component]
			o.mu.Unlock()
			if backup == nil {
				continue
			}
			if out, err := backup(ctx); err == nil {
				o.logger.Info("failed over to backup", "component", component)
				o.cache.Put(component, cacheKey, out)
				return out, nil
			} else {
				cause = err
			}

		case StrategyGracefulDegradation:
			o.statuses.Set(component, StatusDegraded, cause.Error())
			o.mu.Lock()
			fallback := o.fallbacks[component]
			o.mu.Unlock()
			if fallback == nil {
				continue
			}
			if out, err := fallback(ctx); err == nil {
				o.logger.Info("degraded response served", "component", component)
				return out, nil
			}

		case StrategyCircuitBreaker:
			// Informational: when the breaker is open, further live
			// attempts in this plan are pointless. Later strategies
			// (queue, cache, alert) still run.
			if br.State() == BreakerOpen {
				o.logger.Debug("breaker open, skipping live retries", "component", component)
			}

		case StrategyQueueForLater:
			o.queueDeferred(component, category, cacheKey)

		case StrategyUseCachedResponse:
			if out, age, ok := o.cache.Get(component, cacheKey); ok {
				o.logger.Info("cached response served",
					"component", component, "age", age.Truncate(time.Second).String())
				return out, nil
			}

		case StrategyAlertAndContinue:
			// Terminal: alert and hand the failure back so the caller
			// proceeds with its own fallback path.
			a := o.alerts.Raise(SeverityError, component, category, cause.Error(), false)
			o.logger.Warn("recovery exhausted, alerting and continuing",
				"component", component, "alert_id", a.ID)
			return nil, fmt.Errorf("%s unrecovered (%s): %w", component, category, cause)

		case StrategyEmergencyShutdown:
			o.statuses.Set(component, StatusUnhealthy, cause.Error())
			o.alerts.Raise(SeverityCritical, component, category,
				"component marked unhealthy: "+cause.Error(), true)
			return nil, fmt.Errorf("%s marked unhealthy (%s): %w", component, category, cause)
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("recovery cancelled: %w", err)
		}
	}

	return nil, fmt.Errorf("%s unrecovered (%s): %w", component, category, cause)
}

// retryWithBackoff re-runs op through the breaker with exponential
// delays. Stops early when the breaker opens; hammering an open
// breaker only burns the backoff budget.
func (o *Orchestrator) retryWithBackoff(ctx context.Context, br *Breaker, component string, op Operation) (any, bool) {
	delay := o.cfg.RetryBaseDelay
	for attempt := 1; attempt <= o.cfg.RetryMaxAttempts; attempt++ {
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, false
		}

		out, err := br.Call(ctx, op)
		if err == nil {
			o.logger.Info("retry succeeded", "component", component, "attempt", attempt)
			return out, true
		}
		if errors.Is(err, ErrBreakerOpen) {
			return nil, false
		}

		o.logger.Debug("retry failed",
			"component", component, "attempt", attempt, "error", err)

		delay *= 2
		if delay > o.cfg.RetryMaxDelay {
			delay = o.cfg.RetryMaxDelay
		}
	}
	return nil, false
}

// escalate records one recovery round for (category, component) and
// reports whether the rolling-window threshold is now exceeded.
func (o *Orchestrator) escalate(component string, category Category) bool {
	key := string(category) + "|" + component
	now := o.now()
	cutoff := now.Add(-o.cfg.EscalationWindow)

	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.attempts[key][:0]
	for _, t := range o.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	o.attempts[key] = kept

	return len(kept) > o.cfg.EscalationThreshold
}

func (o *Orchestrator) queueDeferred(component string, category Category, key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deferred = append(o.deferred, DeferredCall{
		Component: component,
		Category:  category,
		Key:       key,
		QueuedAt:  o.now(),
	})
	if len(o.deferred) > deferredCap {
		o.deferred = o.deferred[len(o.deferred)-deferredCap:]
	}
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
