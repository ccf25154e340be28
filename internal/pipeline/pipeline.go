// Package pipeline is the controller that takes a life event from
// intake to a stored diary entry: validate, check eligibility, route,
// generate, persist, commit quota. Events arrive on a bounded queue
// consumed by a fixed worker pool; a failing event never takes a
// worker down with it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/events"
	"github.com/huangdanqi/pawprint/internal/quota"
	"github.com/huangdanqi/pawprint/internal/recovery"
	"github.com/huangdanqi/pawprint/internal/router"
)

// ErrStopped is returned by Submit after shutdown began.
var ErrStopped = errors.New("pipeline stopped")

// Config tunes the worker pool and the daily reset poll.
type Config struct {
	Workers       int
	QueueSize     int
	ShutdownGrace time.Duration
	ResetPoll     time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		QueueSize:     256,
		ShutdownGrace: 10 * time.Second,
		ResetPoll:     30 * time.Second,
	}
}

// Deps are the pipeline's collaborators. Recovery and Bus may be nil.
type Deps struct {
	Store    *diary.Store
	Checker  *quota.Checker
	Quota    *quota.Manager
	Router   *router.Router
	Taxonomy *event.Taxonomy
	Recovery *recovery.Orchestrator
	Bus      *events.Bus
	Logger   *slog.Logger
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Processed  int64 `json:"processed"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
	QueueDepth int   `json:"queue_depth"`
	QueueCap   int   `json:"queue_cap"`
}

// Pipeline owns the event queue, the worker pool, and the daily reset
// loop.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	queue   chan *event.Event
	stopped chan struct{}
	once    sync.Once
	group   *errgroup.Group
	cancel  context.CancelFunc

	mu        sync.Mutex
	processed int64
	skipped   int64
	failed    int64
	dropped   int64
}

// New builds a pipeline. Call Start before Submit.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger.With("component", "pipeline"),
		queue:   make(chan *event.Event, cfg.QueueSize),
		stopped: make(chan struct{}),
	}
}

// Start launches the workers and the daily reset loop. Cancelling ctx
// closes intake and begins the drain, but processing runs on a
// detached context so in-flight LLM calls finish or time out on their
// own; Stop force-cancels only after the grace period.
func (p *Pipeline) Start(ctx context.Context) {
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	g, gctx := errgroup.WithContext(procCtx)
	p.group = g

	for i := 0; i < p.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			p.runWorker(gctx, worker)
			return nil
		})
	}
	if p.cfg.ResetPoll > 0 && p.deps.Quota != nil {
		g.Go(func() error {
			p.runResetLoop(gctx)
			return nil
		})
	}

	// The caller's context is only a stop signal.
	go func() {
		select {
		case <-ctx.Done():
			p.closeIntake()
		case <-p.stopped:
		}
	}()

	p.logger.Info("pipeline started",
		"workers", p.cfg.Workers, "queue_cap", p.cfg.QueueSize)
}

// Submit queues an event for asynchronous processing. A full queue
// rejects immediately; intake back-pressure belongs to the caller,
// not a blocked MQTT handler.
func (p *Pipeline) Submit(ev *event.Event) error {
	select {
	case <-p.stopped:
		return ErrStopped
	default:
	}

	select {
	case p.queue <- ev:
		return nil
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		return fmt.Errorf("event queue full (cap %d)", p.cfg.QueueSize)
	}
}

// ProcessManualEvent runs one event synchronously, resolving its
// category from the taxonomy. Returns (entry, nil) when an entry was
// written, (nil, nil) when the event was ineligible or its name is
// unknown, and (nil, err) on failure.
func (p *Pipeline) ProcessManualEvent(ctx context.Context, name, userID string, contextData map[string]any) (*diary.Entry, error) {
	eventType, ok := p.deps.Taxonomy.TypeFor(name)
	if !ok {
		p.countSkipped()
		if p.deps.Recovery != nil {
			p.deps.Recovery.Alerts().Raise(recovery.SeverityError, "condition_checker",
				recovery.CategoryConditionEvaluation,
				fmt.Sprintf("event name %q not in taxonomy", name), false)
		}
		p.logger.Debug("event skipped", "event_name", name, "reason", "unknown_event")
		p.deps.Bus.Emit(events.SourcePipeline, events.KindEventSkipped, map[string]any{
			"event_name": name,
			"reason":     "unknown_event",
		})
		return nil, nil
	}
	return p.ProcessEvent(ctx, event.New(eventType, name, userID, contextData))
}

// ProcessEvent runs the full chain for one event. Quota is committed
// only after the entry is stored; every failure before that releases
// the reservation. Ineligible, unknown, and unroutable events return
// (nil, nil); errors are reserved for generation and storage failures.
func (p *Pipeline) ProcessEvent(ctx context.Context, ev *event.Event) (*diary.Entry, error) {
	if err := ev.Validate(); err != nil {
		p.countFailed()
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	p.deps.Bus.Emit(events.SourcePipeline, events.KindEventReceived, map[string]any{
		"event_id":   ev.EventID,
		"event_name": ev.EventName,
		"user_id":    ev.UserID,
	})

	// A condition-evaluation error (unknown event name) surfaces as
	// ineligible plus an alert, never as a caller-visible error.
	decision, err := p.deps.Checker.Evaluate(ev)
	if err != nil {
		p.countSkipped()
		if p.deps.Recovery != nil {
			p.deps.Recovery.Alerts().Raise(recovery.SeverityError, "condition_checker",
				recovery.CategoryConditionEvaluation, err.Error(), false)
		}
		p.skip(ev, "condition_error")
		return nil, nil
	}
	if !decision.Eligible {
		p.countSkipped()
		p.skip(ev, decision.Reason)
		return nil, nil
	}

	// Claimed events never reserved; everything else holds a
	// reservation that must be committed or released below.
	reserved := !decision.Claimed

	// An unroutable event is skipped, not failed; the router keeps its
	// own failure counters.
	a, err := p.deps.Router.Route(ev)
	if err != nil {
		p.release(reserved, ev)
		p.countSkipped()
		p.skip(ev, "routing_failed")
		return nil, nil
	}
	p.deps.Bus.Emit(events.SourcePipeline, events.KindEventRouted, map[string]any{
		"event_id": ev.EventID,
		"agent":    a.Type(),
	})

	entry, err := a.ProcessEvent(ctx, ev)
	if err != nil {
		p.release(reserved, ev)
		p.countFailed()
		return nil, fmt.Errorf("agent %s: %w", a.Type(), err)
	}

	if err := p.insert(ctx, entry); err != nil {
		p.release(reserved, ev)
		p.countFailed()
		return nil, fmt.Errorf("store entry: %w", err)
	}

	if reserved {
		p.deps.Quota.Commit(ev.EventName)
	}

	p.mu.Lock()
	p.processed++
	p.mu.Unlock()

	p.deps.Bus.Emit(events.SourcePipeline, events.KindEntryCreated, map[string]any{
		"event_id":   ev.EventID,
		"event_name": ev.EventName,
		"entry_id":   entry.EntryID,
		"user_id":    entry.UserID,
		"provider":   entry.Provider,
	})
	return entry, nil
}

// insert stores the entry, through the recovery orchestrator's
// database plan when one is wired.
func (p *Pipeline) insert(ctx context.Context, entry *diary.Entry) error {
	if p.deps.Recovery == nil {
		return p.deps.Store.Insert(entry)
	}
	_, err := p.deps.Recovery.Execute(ctx, "diary_store", recovery.CategoryDatabase,
		entry.EntryID, func(context.Context) (any, error) {
			return nil, p.deps.Store.Insert(entry)
		})
	return err
}

func (p *Pipeline) release(reserved bool, ev *event.Event) {
	if reserved {
		p.deps.Quota.Release(ev.EventName)
	}
}

func (p *Pipeline) skip(ev *event.Event, reason string) {
	p.logger.Debug("event skipped",
		"event_id", ev.EventID, "event_name", ev.EventName, "reason", reason)
	p.deps.Bus.Emit(events.SourcePipeline, events.KindEventSkipped, map[string]any{
		"event_id":   ev.EventID,
		"event_name": ev.EventName,
		"reason":     reason,
	})
}

func (p *Pipeline) countSkipped() {
	p.mu.Lock()
	p.skipped++
	p.mu.Unlock()
}

func (p *Pipeline) countFailed() {
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()
}

// runWorker consumes the queue until shutdown, then drains what is
// already queued.
func (p *Pipeline) runWorker(ctx context.Context, id int) {
	logger := p.logger.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopped:
			for {
				select {
				case ev := <-p.queue:
					p.safeProcess(ctx, logger, ev)
				default:
					return
				}
			}
		case ev := <-p.queue:
			p.safeProcess(ctx, logger, ev)
		}
	}
}

// safeProcess shields the worker loop from a panicking agent. One
// poisoned event must not stop the pool.
func (p *Pipeline) safeProcess(ctx context.Context, logger *slog.Logger, ev *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.countFailed()
			logger.Error("panic while processing event",
				"event_id", ev.EventID, "event_name", ev.EventName, "panic", r)
		}
	}()

	if _, err := p.ProcessEvent(ctx, ev); err != nil {
		logger.Warn("event processing failed",
			"event_id", ev.EventID, "event_name", ev.EventName, "error", err)
	}
}

// runResetLoop polls wall-clock time and resets the quota when the
// date changes. Polling beats a midnight timer across suspend/resume
// and clock adjustments.
func (p *Pipeline) runResetLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ResetPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopped:
			return
		case <-ticker.C:
			p.deps.Quota.ResetForDay(time.Now())
		}
	}
}

// closeIntake stops Submit and tells the workers to drain what is
// already queued.
func (p *Pipeline) closeIntake() {
	p.once.Do(func() {
		close(p.stopped)
		p.logger.Info("pipeline stopping", "queued", len(p.queue))
	})
}

// Stop closes intake and waits for in-flight work up to the grace
// period, then force-cancels whatever is left. Safe to call more than
// once.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.closeIntake()
	if p.group == nil {
		return nil
	}
	defer p.cancel()

	done := make(chan struct{})
	go func() {
		p.group.Wait()
		close(done)
	}()

	grace := p.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("shutdown grace %s elapsed with work in flight", grace)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Processed:  p.processed,
		Skipped:    p.skipped,
		Failed:     p.failed,
		Dropped:    p.dropped,
		QueueDepth: len(p.queue),
		QueueCap:   p.cfg.QueueSize,
	}
}
