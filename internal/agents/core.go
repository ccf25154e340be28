package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/eventctx"
	"github.com/huangdanqi/pawprint/internal/events"
	"github.com/huangdanqi/pawprint/internal/llm"
	"github.com/huangdanqi/pawprint/internal/recovery"
)

// Processing stages, logged as breadcrumbs so a stuck event can be
// located by its last stage.
const (
	stageReceived         = "RECEIVED"
	stageContextRead      = "CONTEXT_READ"
	stageContentGenerated = "CONTENT_GENERATED"
	stageValidated        = "VALIDATED"
	stageEmitted          = "EMITTED"
	stageFallbackEmitted  = "FALLBACK_EMITTED"
)

// fallbackProvider is the provider label on entries built from
// deterministic templates.
const fallbackProvider = "fallback"

// Generator is the slice of the LLM gateway the agents use.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (text, provider string, err error)
}

// GenOptions carries the per-call generation tuning from config.
type GenOptions struct {
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Deps are the shared dependencies every agent receives. Bus may be
// nil (emits become no-ops); Logger nil falls back to slog.Default.
type Deps struct {
	Reader   eventctx.Reader
	Gateway  Generator
	Recovery *recovery.Orchestrator
	Bus      *events.Bus
	Logger   *slog.Logger
	Options  GenOptions
}

// fallbackEntry is the deterministic template an agent falls back to.
type fallbackEntry struct {
	Title   string
	Content string
	Tags    []diary.EmotionTag
}

// plan is one ProcessEvent's recipe, built per event by the concrete
// agent.
type plan struct {
	prompts func(d *eventctx.Data) (system, user string)
	// fallback is used when generation fails outright, and its title
	// and tags also back a salvaged non-JSON response.
	fallback fallbackEntry
	// descriptionOnly marks the sensor response shape: a single
	// description field instead of title/content/emotion_tags.
	descriptionOnly bool
	// forceTags overrides model-chosen tags when non-nil (the holiday
	// agent computes tags from its lookup table).
	forceTags []diary.EmotionTag
}

// core carries the shared stage machine every agent embeds.
type core struct {
	agentType string
	supported map[string]bool
	deps      Deps
}

func newCore(agentType string, supported []string, deps Deps) core {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("agent", agentType)
	set := make(map[string]bool, len(supported))
	for _, name := range supported {
		set[name] = true
	}
	return core{agentType: agentType, supported: set, deps: deps}
}

func (c *core) Type() string { return c.agentType }

func (c *core) Supports(eventName string) bool { return c.supported[eventName] }

func (c *core) stage(ev *event.Event, stage string) {
	c.deps.Logger.Debug("processing stage",
		"event_id", ev.EventID, "event_name", ev.EventName, "stage", stage)
}

// run executes the shared stage machine. It returns an error only for
// unsupported names or entries the agent built wrong; LLM failures
// resolve to the fallback template.
func (c *core) run(ctx context.Context, ev *event.Event, p plan) (*diary.Entry, error) {
	if !c.Supports(ev.EventName) {
		return nil, fmt.Errorf("%s: %s: %w", c.agentType, ev.EventName, ErrUnsupportedEvent)
	}
	c.stage(ev, stageReceived)

	d := c.readContext(ctx, ev)
	c.stage(ev, stageContextRead)

	entry := &diary.Entry{
		EntryID:   diary.NewEntryID(time.Now()),
		UserID:    ev.UserID,
		Timestamp: ev.Timestamp,
		EventType: ev.EventType,
		EventName: ev.EventName,
		AgentType: c.agentType,
	}

	system, user := p.prompts(d)
	raw, provider, genErr := c.generate(ctx, ev, system, user)
	if genErr != nil {
		c.fillFallback(entry, p)
		c.stage(ev, stageFallbackEmitted)
		c.deps.Bus.Emit(events.SourceAgent, events.KindFallbackUsed, map[string]any{
			"agent":      c.agentType,
			"event_id":   ev.EventID,
			"event_name": ev.EventName,
			"error":      genErr.Error(),
		})
		return c.finish(ev, entry)
	}
	c.stage(ev, stageContentGenerated)

	c.fillFromResponse(entry, raw, provider, p)
	c.stage(ev, stageValidated)
	c.stage(ev, stageEmitted)
	return c.finish(ev, entry)
}

// readContext assembles the snapshot, degrading to Minimal when the
// reader fails. Generation always proceeds.
func (c *core) readContext(ctx context.Context, ev *event.Event) *eventctx.Data {
	if c.deps.Reader != nil {
		d, err := c.deps.Reader.ReadEventContext(ctx, ev)
		if err == nil {
			return d
		}
		c.deps.Logger.Warn("context read failed, using minimal snapshot",
			"event_id", ev.EventID, "error", err)
		c.deps.Bus.Emit(events.SourceAgent, events.KindContextDegraded, map[string]any{
			"agent":    c.agentType,
			"event_id": ev.EventID,
			"error":    err.Error(),
		})
	}
	return eventctx.Minimal(ev)
}

// genResult pairs a raw completion with the provider that produced it;
// it is also what the orchestrator's response cache stores.
type genResult struct {
	text     string
	provider string
}

func (c *core) generate(ctx context.Context, ev *event.Event, system, user string) (raw, provider string, err error) {
	op := func(ctx context.Context) (any, error) {
		text, prov, err := c.deps.Gateway.Generate(ctx, llm.Request{
			System:      system,
			Prompt:      user,
			MaxTokens:   c.deps.Options.MaxTokens,
			Temperature: c.deps.Options.Temperature,
			Timeout:     c.deps.Options.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return genResult{text: text, provider: prov}, nil
	}

	cacheKey := ev.EventName
	var out any
	if c.deps.Recovery != nil {
		out, err = c.deps.Recovery.Execute(ctx, c.agentType, recovery.CategoryLLMAPIFailure, cacheKey, op)
	} else {
		out, err = op(ctx)
	}
	if err != nil {
		return "", "", err
	}
	res, ok := out.(genResult)
	if !ok {
		return "", "", fmt.Errorf("unexpected generation result %T", out)
	}
	return res.text, res.provider, nil
}

// fillFromResponse parses the model output into the entry, salvaging
// readable text when the JSON shape is broken and falling back to the
// template when nothing usable remains.
func (c *core) fillFromResponse(entry *diary.Entry, raw, provider string, p plan) {
	entry.Provider = provider

	var title, content string
	var tags []diary.EmotionTag
	parsed := false

	if obj, ok := llm.ExtractJSONObject(raw); ok {
		if p.descriptionOnly {
			if desc, ok := obj["description"].(string); ok && desc != "" {
				title = p.fallback.Title
				content = desc
				tags = p.fallback.Tags
				parsed = true
			}
		} else {
			t, _ := obj["title"].(string)
			ct, _ := obj["content"].(string)
			if ct != "" {
				title = t
				content = ct
				tags = diary.MapEmotionTags(stringSlice(obj["emotion_tags"]))
				parsed = true
			}
		}
	}

	if !parsed {
		if run := llm.ExtractReadableRun(raw, diary.ContentMaxRunes); run != "" {
			title = p.fallback.Title
			content = run
			tags = p.fallback.Tags
			c.deps.Logger.Debug("salvaged non-JSON response", "agent", c.agentType)
		} else {
			c.fillFallback(entry, p)
			return
		}
	}

	if p.forceTags != nil {
		tags = p.forceTags
	}
	entry.Title = title
	entry.Content = content
	entry.EmotionTags = tags
	entry.Clamp()
}

func (c *core) fillFallback(entry *diary.Entry, p plan) {
	entry.Title = p.fallback.Title
	entry.Content = p.fallback.Content
	entry.EmotionTags = p.fallback.Tags
	if p.forceTags != nil {
		entry.EmotionTags = p.forceTags
	}
	entry.Provider = fallbackProvider
	entry.Clamp()
}

func (c *core) finish(ev *event.Event, entry *diary.Entry) (*diary.Entry, error) {
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%s built invalid entry: %w", c.agentType, err)
	}
	c.deps.Logger.Info("diary entry generated",
		"event_id", ev.EventID,
		"event_name", ev.EventName,
		"entry_id", entry.EntryID,
		"provider", entry.Provider,
	)
	return entry, nil
}

// stringSlice coerces a decoded JSON array into strings, dropping
// non-string members.
func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
