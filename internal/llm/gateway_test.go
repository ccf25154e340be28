package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider fails a fixed number of times before succeeding.
type fakeProvider struct {
	name      string
	failures  int
	calls     int
	pingErr   error
	permanent bool
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, _ Request) (string, error) {
	f.calls++
	if f.permanent || f.calls <= f.failures {
		return "", &ProviderError{Provider: f.name, Status: 503, Err: errors.New("unavailable")}
	}
	return "a quiet morning", nil
}

func (f *fakeProvider) Ping(context.Context) error { return f.pingErr }

func TestGateway_PrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "ollama"}
	backup := &fakeProvider{name: "anthropic"}
	g := NewGateway([]Provider{primary, backup}, 0, quietLogger())

	text, provider, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if provider != "ollama" || text != "a quiet morning" {
		t.Errorf("got (%q, %q)", text, provider)
	}
	if backup.calls != 0 {
		t.Errorf("backup called %d times", backup.calls)
	}
}

func TestGateway_RetriesThenFailsOver(t *testing.T) {
	primary := &fakeProvider{name: "ollama", permanent: true}
	backup := &fakeProvider{name: "anthropic", failures: 1}
	g := NewGateway([]Provider{primary, backup}, 1, quietLogger())

	text, provider, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", provider)
	}
	if text == "" {
		t.Error("empty completion")
	}
	// maxRetries=1 means two attempts per provider.
	if primary.calls != 2 {
		t.Errorf("primary attempts = %d, want 2", primary.calls)
	}
	if backup.calls != 2 {
		t.Errorf("backup attempts = %d, want 2", backup.calls)
	}

	stats := g.Stats()
	if stats["ollama"].Failures != 2 {
		t.Errorf("ollama failures = %d, want 2", stats["ollama"].Failures)
	}
	if stats["anthropic"].LastSuccess.IsZero() {
		t.Error("anthropic LastSuccess not recorded")
	}
}

func TestGateway_AllExhaustedReturnsProviderError(t *testing.T) {
	g := NewGateway([]Provider{
		&fakeProvider{name: "ollama", permanent: true},
		&fakeProvider{name: "anthropic", permanent: true},
	}, 0, quietLogger())

	_, _, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if provErr.Provider != "anthropic" {
		t.Errorf("last failing provider = %q", provErr.Provider)
	}
}

func TestGateway_NoProviders(t *testing.T) {
	g := NewGateway(nil, 0, quietLogger())
	if _, _, err := g.Generate(context.Background(), Request{}); !errors.Is(err, ErrNoProviders) {
		t.Errorf("Generate error = %v", err)
	}
	if err := g.Ping(context.Background()); !errors.Is(err, ErrNoProviders) {
		t.Errorf("Ping error = %v", err)
	}
}

func TestGateway_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGateway([]Provider{&fakeProvider{name: "ollama"}}, 0, quietLogger())
	if _, _, err := g.Generate(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
