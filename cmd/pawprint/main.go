// Pawprint is the diary daemon for a companion toy.
//
// It watches the toy's life events (weather, holidays, friendships,
// interaction, neglect, motion sensors), decides which deserve a diary
// entry under the daily quota, writes short first-person entries with
// a local or hosted LLM, and serves the diary over a LAN HTTP API with
// an optional MQTT link to the companion app.
//
// Usage:
//
//	pawprint serve                 Start the daemon
//	pawprint event <name> [flags]  Trigger one event and print the entry
//	pawprint version               Print version and build information
//	pawprint -o json version       Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/huangdanqi/pawprint/internal/agents"
	"github.com/huangdanqi/pawprint/internal/api"
	"github.com/huangdanqi/pawprint/internal/buildinfo"
	"github.com/huangdanqi/pawprint/internal/config"
	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/event"
	"github.com/huangdanqi/pawprint/internal/eventctx"
	"github.com/huangdanqi/pawprint/internal/events"
	"github.com/huangdanqi/pawprint/internal/health"
	"github.com/huangdanqi/pawprint/internal/llm"
	"github.com/huangdanqi/pawprint/internal/mqtt"
	"github.com/huangdanqi/pawprint/internal/pipeline"
	"github.com/huangdanqi/pawprint/internal/quota"
	"github.com/huangdanqi/pawprint/internal/recovery"
	"github.com/huangdanqi/pawprint/internal/router"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level
// environment (context, stdio, argv) and delegates immediately to
// [run]. This keeps os.Exit, os.Stdout, and os.Args out of the
// application logic so the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the pawprint command. All OS-level
// dependencies are injected as parameters. Arguments are parsed by
// hand: the flag package relies on package-level globals, which makes
// it impossible to call run() concurrently from tests, and our
// argument surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case command == "":
			if strings.HasPrefix(args[i], "-") {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
			command = args[i]
		default:
			cmdArgs = append(cmdArgs, args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "event":
		return runEvent(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Pawprint - Companion Toy Diary Daemon")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: pawprint [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                       Start the daemon")
	fmt.Fprintln(w, "  event <name> [event flags]  Trigger one event and print the entry")
	fmt.Fprintln(w, "  version                     Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: config.yaml)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Event flags:")
	fmt.Fprintln(w, "  -user <id>        User the entry belongs to (default: configured owner)")
	fmt.Fprintln(w, "  -context k=v      Context data for the prompt (repeatable)")
	return nil
}

// newLogger builds an slog.Logger writing to w in the configured
// format.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadConfig reads the config file, falling back to built-in defaults
// when no file exists and none was requested explicitly.
func loadConfig(path string) (*config.Config, string, error) {
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return config.Default(), "(defaults)", nil
		}
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// daemon holds everything runServe wires together, so runEvent can
// reuse the same construction with the network surfaces disabled.
type daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	store    *diary.Store
	quota    *quota.Manager
	gateway  *llm.Gateway
	recovery *recovery.Orchestrator
	tax      *event.Taxonomy
	router   *router.Router
	pipeline *pipeline.Pipeline
	bus      *events.Bus
}

// buildDaemon wires config through stores, the LLM gateway, recovery,
// context readers, agents, the checker, the router, and the pipeline.
// Network surfaces (health probes, MQTT, HTTP) are layered on by the
// caller; this is the part both serve and the one-shot event share.
func buildDaemon(cfg *config.Config, logger *slog.Logger, bus *events.Bus) (*daemon, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	dbPath := cfg.DataDir + "/pawprint.db"
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}

	store, err := diary.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("diary store: %w", err)
	}

	qstore, err := quota.NewStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("quota store: %w", err)
	}
	mgr, err := quota.NewManager(cfg.Quota.MinDaily, cfg.Quota.MaxDaily, qstore, bus, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("quota manager: %w", err)
	}

	gateway, err := buildGateway(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	orch := recovery.New(recovery.Config{
		Breaker: recovery.BreakerConfig{
			FailureThreshold: cfg.Recovery.BreakerFailureThreshold,
			RecoveryTimeout:  time.Duration(cfg.Recovery.BreakerRecoveryTimeoutSec) * time.Second,
			SuccessThreshold: cfg.Recovery.BreakerSuccessThreshold,
		},
		RetryMaxAttempts:    cfg.Recovery.RetryMaxAttempts,
		RetryBaseDelay:      time.Duration(cfg.Recovery.RetryBaseDelayMS) * time.Millisecond,
		RetryMaxDelay:       time.Duration(cfg.Recovery.RetryMaxDelaySec) * time.Second,
		EscalationThreshold: cfg.Recovery.EscalationThreshold,
		CacheSize:           cfg.Recovery.ResponseCacheSize,
	}, nil, nil, bus, logger)

	// Context assembly: synthetic owner baseline, overlaid with the
	// emotion, friendship, and interaction tables in SQLite.
	var reader eventctx.Reader = eventctx.NewSyntheticReader(cfg.Owner)
	sqlReader, err := eventctx.NewSQLiteReader(db, reader)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("context reader: %w", err)
	}
	reader = sqlReader

	deps := agents.Deps{
		Reader:   reader,
		Gateway:  gateway,
		Recovery: orch,
		Bus:      bus,
		Logger:   logger,
		Options: agents.GenOptions{
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
			Timeout:     time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		},
	}
	all := []agents.Agent{
		agents.NewWeatherAgent(deps),
		agents.NewHolidayAgent(deps, cfg.Holidays),
		agents.NewFriendAgent(deps),
		agents.NewInteractiveAgent(deps),
		agents.NewNeglectAgent(deps),
		agents.NewSensorAgent(deps),
	}

	tax, err := loadTaxonomy(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	rt, err := router.New(tax, all, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("router: %w", err)
	}

	p := pipeline.New(pipeline.Config{
		Workers:       cfg.Pipeline.Workers,
		QueueSize:     cfg.Pipeline.QueueSize,
		ShutdownGrace: time.Duration(cfg.Pipeline.ShutdownGraceSec) * time.Second,
		ResetPoll:     time.Duration(cfg.Quota.ResetPollSec) * time.Second,
	}, pipeline.Deps{
		Store:    store,
		Checker:  quota.NewChecker(tax, mgr, logger),
		Quota:    mgr,
		Router:   rt,
		Taxonomy: tax,
		Recovery: orch,
		Bus:      bus,
		Logger:   logger,
	})

	return &daemon{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store,
		quota:    mgr,
		gateway:  gateway,
		recovery: orch,
		tax:      tax,
		router:   rt,
		pipeline: p,
		bus:      bus,
	}, nil
}

// buildGateway assembles the provider failover chain in configured
// order.
func buildGateway(cfg *config.Config, logger *slog.Logger) (*llm.Gateway, error) {
	var providers []llm.Provider
	for _, name := range cfg.Providers.Order {
		switch name {
		case "ollama":
			providers = append(providers,
				llm.NewOllamaProvider(cfg.Providers.Ollama.URL, cfg.Providers.Ollama.Model, logger))
		case "anthropic":
			providers = append(providers,
				llm.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.Model, logger))
		default:
			return nil, fmt.Errorf("unknown LLM provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	return llm.NewGateway(providers, cfg.Generation.MaxRetries, logger), nil
}

// loadTaxonomy reads the event taxonomy from the configured YAML file,
// or uses the built-in default set.
func loadTaxonomy(cfg *config.Config, logger *slog.Logger) (*event.Taxonomy, error) {
	if cfg.TaxonomyFile == "" {
		return event.Default(), nil
	}
	tax, err := event.LoadFile(cfg.TaxonomyFile)
	if err != nil {
		return nil, err
	}
	logger.Info("taxonomy loaded", "path", cfg.TaxonomyFile)
	return tax, nil
}

func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting pawprint",
		"version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure logging now that the desired level and format are
	// known. The initial text logger covers only the startup banner.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger = newLogger(stdout, level, cfg.LogFormat)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"providers", strings.Join(cfg.Providers.Order, ","),
		"data_dir", cfg.DataDir,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.New()
	d, err := buildDaemon(cfg, logger, bus)
	if err != nil {
		return err
	}
	defer d.db.Close()

	d.pipeline.Start(ctx)

	// --- Health probes ---
	monitor := health.NewMonitor(d.recovery.Statuses(), logger)
	defer monitor.Stop()
	monitor.Watch(ctx, health.ProbeConfig{
		Name:     "diary_store",
		Probe:    d.store.Ping,
		Critical: true,
	})
	monitor.Watch(ctx, health.ProbeConfig{
		Name:  "llm_gateway",
		Probe: d.gateway.Ping,
	})

	// --- MQTT device link ---
	apiAddr := fmt.Sprintf("http://%s:%d", listenHost(cfg.Listen.Address), cfg.Listen.Port)
	var link *mqtt.Link
	var instanceID string
	if cfg.MQTT.Enabled {
		instanceID, err = mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return err
		}
		link = mqtt.NewLink(cfg.MQTT, mqtt.LinkOptions{
			DeviceName:  cfg.Device.Name,
			InstanceID:  instanceID,
			APIAddr:     apiAddr,
			DefaultUser: cfg.Owner.UserID,
		}, d.tax, d.pipeline, bus, logger)
		if err := link.Start(ctx); err != nil {
			return fmt.Errorf("mqtt link: %w", err)
		}
		go link.RunNotifier(ctx, d.store)
		monitor.Watch(ctx, health.ProbeConfig{
			Name:  "mqtt_broker",
			Probe: link.AwaitConnection,
		})
	} else {
		// Pairing still works without a broker; generate the identity
		// on demand for the QR endpoint.
		instanceID, err = mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return err
		}
	}

	// --- HTTP API ---
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, api.Deps{
		Pipeline: d.pipeline,
		Store:    d.store,
		Quota:    d.quota,
		Router:   d.router,
		Recovery: d.recovery,
		Monitor:  monitor,
		Statuses: d.recovery.Statuses(),
		Bus:      bus,
		Pairing: &api.PairingInfo{
			InstanceID: instanceID,
			DeviceName: cfg.Device.Name,
			APIAddr:    apiAddr,
		},
		Logger: logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	// Orderly shutdown: stop intake, drain workers, say goodbye on
	// MQTT, close HTTP last so /healthz answers during the drain.
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := d.pipeline.Stop(shutdownCtx); err != nil {
		logger.Warn("pipeline drain incomplete", "error", err)
	}
	if link != nil {
		if err := link.Stop(shutdownCtx); err != nil {
			logger.Warn("mqtt disconnect failed", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown failed", "error", err)
	}
	logger.Info("goodbye")
	return nil
}

// listenHost renders the address clients should use; an empty bind
// address means all interfaces, so localhost is the best guess.
func listenHost(addr string) string {
	if addr == "" || addr == "0.0.0.0" {
		return "localhost"
	}
	return addr
}

// runEvent handles the "pawprint event <name>" subcommand: one event
// through the full pipeline, synchronously, entry printed as JSON.
func runEvent(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: pawprint event <name> [-user <id>] [-context k=v ...]")
	}
	name := args[0]
	var userID string
	contextData := make(map[string]any)

	for i := 1; i < len(args); i++ {
		switch {
		case args[i] == "-user" && i+1 < len(args):
			userID = args[i+1]
			i++
		case args[i] == "-context" && i+1 < len(args):
			k, v, ok := strings.Cut(args[i+1], "=")
			if !ok {
				return fmt.Errorf("bad -context value %q (want k=v)", args[i+1])
			}
			contextData[k] = v
			i++
		default:
			return fmt.Errorf("unknown event flag: %s", args[i])
		}
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if userID == "" {
		userID = cfg.Owner.UserID
	}
	if userID == "" {
		return fmt.Errorf("no -user given and no owner user_id configured")
	}

	// Quiet logger: stdout carries only the entry JSON.
	logger := newLogger(io.Discard, slog.LevelInfo, "text")
	d, err := buildDaemon(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer d.db.Close()

	if len(contextData) == 0 {
		contextData = nil
	}
	entry, err := d.pipeline.ProcessManualEvent(ctx, name, userID, contextData)
	if err != nil {
		return err
	}
	if entry == nil {
		fmt.Fprintln(stdout, `{"skipped": true}`)
		return nil
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(entry)
}
