// Package llm provides text-generation providers and the failover
// gateway the diary agents call through. Providers return raw text;
// extracting the structured diary JSON out of that text is the
// caller's problem, helped by the extraction functions in this
// package.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Request is one generation request. Timeout bounds a single provider
// call; the gateway applies it per attempt, not per request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Provider is a single text-generation backend.
type Provider interface {
	// Name identifies the provider in logs and diary entries.
	Name() string
	// Generate returns the raw completion text for req.
	Generate(ctx context.Context, req Request) (string, error)
	// Ping verifies the provider is reachable and usable.
	Ping(ctx context.Context) error
}

// ProviderError reports a failed provider call. The gateway wraps the
// last provider's error in one of these when all providers are
// exhausted.
type ProviderError struct {
	Provider string
	Status   int // HTTP status when applicable, else 0
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
