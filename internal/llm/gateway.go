package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNoProviders is returned by a gateway configured with an empty
// provider list.
var ErrNoProviders = errors.New("no providers configured")

// retryPause is the flat pause between same-provider attempts. The
// recovery orchestrator owns exponential backoff around the whole
// gateway call; stacking a second exponential schedule here would
// multiply the delays.
const retryPause = 250 * time.Millisecond

// ProviderStats counts one provider's outcomes.
type ProviderStats struct {
	Calls       int       `json:"calls"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty"`
}

// Gateway fans a generation request across an ordered provider list:
// the first provider that returns text wins. Each provider gets a
// bounded number of attempts before failover to the next.
type Gateway struct {
	providers  []Provider
	maxRetries int
	logger     *slog.Logger

	mu    sync.Mutex
	stats map[string]*ProviderStats
}

// NewGateway builds a gateway over providers in failover order.
// maxRetries is the number of additional attempts per provider after
// the first failure; values below zero are treated as zero.
func NewGateway(providers []Provider, maxRetries int, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	g := &Gateway{
		providers:  providers,
		maxRetries: maxRetries,
		logger:     logger.With("component", "llm_gateway"),
		stats:      make(map[string]*ProviderStats),
	}
	for _, p := range providers {
		g.stats[p.Name()] = &ProviderStats{}
	}
	return g
}

// Generate tries each provider in order and returns the first raw
// completion, together with the name of the provider that produced
// it. When every provider is exhausted the last failure is returned
// as a *ProviderError.
func (g *Gateway) Generate(ctx context.Context, req Request) (text, provider string, err error) {
	if len(g.providers) == 0 {
		return "", "", ErrNoProviders
	}

	var lastErr error
	for _, p := range g.providers {
		for attempt := 0; attempt <= g.maxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return "", "", fmt.Errorf("generation cancelled: %w", err)
			}
			if attempt > 0 {
				if err := sleepCtx(ctx, retryPause); err != nil {
					return "", "", fmt.Errorf("generation cancelled: %w", err)
				}
			}

			g.record(p.Name(), func(s *ProviderStats) { s.Calls++ })

			out, err := p.Generate(ctx, req)
			if err == nil {
				g.record(p.Name(), func(s *ProviderStats) { s.LastSuccess = time.Now() })
				return out, p.Name(), nil
			}

			lastErr = err
			g.record(p.Name(), func(s *ProviderStats) {
				s.Failures++
				s.LastError = err.Error()
			})
			g.logger.Warn("provider call failed",
				"provider", p.Name(),
				"attempt", attempt+1,
				"max_attempts", g.maxRetries+1,
				"error", err,
			)
		}
		g.logger.Warn("provider exhausted, failing over", "provider", p.Name())
	}

	var provErr *ProviderError
	if errors.As(lastErr, &provErr) {
		return "", "", provErr
	}
	return "", "", &ProviderError{Provider: "all", Err: lastErr}
}

// Ping probes the primary provider. Secondary providers are checked
// lazily on failover; a dead backup should not mark the gateway down.
func (g *Gateway) Ping(ctx context.Context) error {
	if len(g.providers) == 0 {
		return ErrNoProviders
	}
	return g.providers[0].Ping(ctx)
}

// Primary returns the first provider's name, for logs.
func (g *Gateway) Primary() string {
	if len(g.providers) == 0 {
		return ""
	}
	return g.providers[0].Name()
}

// Stats returns a copy of the per-provider counters.
func (g *Gateway) Stats() map[string]ProviderStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]ProviderStats, len(g.stats))
	for name, s := range g.stats {
		out[name] = *s
	}
	return out
}

func (g *Gateway) record(provider string, f func(*ProviderStats)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.stats[provider]
	if !ok {
		s = &ProviderStats{}
		g.stats[provider] = s
	}
	f(s)
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
