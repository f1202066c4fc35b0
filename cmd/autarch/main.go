package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/halcyon-foundry/autarch/internal/bus"
	"github.com/halcyon-foundry/autarch/internal/command"
	"github.com/halcyon-foundry/autarch/internal/config"
	"github.com/halcyon-foundry/autarch/internal/cron"
	"github.com/halcyon-foundry/autarch/internal/goal"
	"github.com/halcyon-foundry/autarch/internal/guardian"
	"github.com/halcyon-foundry/autarch/internal/guardrails"
	"github.com/halcyon-foundry/autarch/internal/intent"
	"github.com/halcyon-foundry/autarch/internal/kernel"
	"github.com/halcyon-foundry/autarch/internal/manifest"
	"github.com/halcyon-foundry/autarch/internal/memory"
	otelPkg "github.com/halcyon-foundry/autarch/internal/otel"
	"github.com/halcyon-foundry/autarch/internal/persistence"
	"github.com/halcyon-foundry/autarch/internal/reflection"
	"github.com/halcyon-foundry/autarch/internal/router"
	"github.com/halcyon-foundry/autarch/internal/task"
	"github.com/halcyon-foundry/autarch/internal/telemetry"
	"github.com/mattn/go-isatty"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

INTERACTIVE MODE (default):
  %s                   Start the interactive REPL

DAEMON MODE:
  %s -daemon           Run headless (no REPL, logs to stdout)

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  AUTARCH_HOME         Data directory (default: ~/.autarch)
  AUTARCH_LOG_LEVEL    Override configured log level
`)
}

func main() {
	loadDotEnv(".env")

	daemon := flag.Bool("daemon", false, "run headless (no REPL, logs to stdout)")
	flag.Usage = printUsage
	flag.Parse()

	interactive := isatty.IsTerminal(os.Stdout.Fd()) && !*daemon

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "config load", err)
	}

	// Quiet logs (file-only) in interactive mode so the REPL stays clean.
	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, interactive || cfg.Quiet)
	if err != nil {
		fatalStartup(nil, "logger init", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "home", cfg.HomeDir)

	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.Otel.Enabled,
		Exporter:    cfg.Otel.Exporter,
		Endpoint:    cfg.Otel.OTLPEndpoint,
		SampleRatio: cfg.Otel.SampleRatio,
	})
	if err != nil {
		fatalStartup(logger, "otel init", err)
	}
	defer otelProvider.Shutdown(context.Background())
	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "metrics init", err)
	}

	events := bus.New()
	k := kernel.New(logger)

	pol, err := guardrails.Load(cfg.PolicyPath)
	if err != nil {
		fatalStartup(logger, "policy load", err)
	}
	guards := guardrails.NewEngine(pol, k, events)
	logger.Info("startup phase", "phase", "policy_loaded")

	stm := memory.NewShortTerm()
	intents := intent.NewClassifier(k, guards)
	tasks := task.NewEngine(task.Config{
		Kernel:       k,
		Guards:       guards,
		Intents:      intents,
		Memory:       stm,
		Events:       events,
		TickInterval: cfg.WorkerTick(),
	})
	goals := goal.NewPlanner(k, guards, tasks)

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		fatalStartup(logger, "store open", err)
	}
	defer store.Close()
	restoreState(ctx, store, stm, goals, logger)
	logger.Info("startup phase", "phase", "state_restored")

	bridge := setupBridge(ctx, cfg, logger)

	reflections := reflection.NewEngine(reflection.Config{
		Kernel:   k,
		Intents:  intents,
		Memory:   stm,
		Tasks:    tasks,
		Guards:   guards,
		Events:   events,
		Interval: cfg.ReflectionInterval(),
	})

	registry := command.NewRegistry()
	builtins := command.BuiltinConfig{
		Kernel:      k,
		Tasks:       tasks,
		Goals:       goals,
		Memory:      stm,
		Intents:     intents,
		Guards:      guards,
		Reflections: reflections,
	}
	if bridge != nil {
		builtins.BridgeStatus = bridge.Status
	}
	if err := command.RegisterBuiltins(registry, builtins); err != nil {
		fatalStartup(logger, "command registry", err)
	}

	executor := command.NewExecutor(command.ExecutorConfig{
		Registry: registry,
		Kernel:   k,
		Memory:   stm,
	})
	guard := guardian.New(k)
	rt := router.New(router.Config{
		Executor: executor,
		Intents:  intents,
		Guardian: guard,
		Events:   events,
		Bridge:   bridge,
	})

	schedules := make([]cron.Schedule, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		schedules = append(schedules, cron.Schedule{
			Name:        s.Name,
			Expr:        s.Expr,
			Description: s.Description,
		})
	}
	cronSched, err := cron.NewScheduler(cron.Config{
		Tasks:     tasks,
		Logger:    logger,
		Schedules: schedules,
	})
	if err != nil {
		fatalStartup(logger, "cron init", err)
	}

	go recordBusMetrics(ctx, events, metrics)

	tasks.Start(ctx)
	defer tasks.Stop()
	reflections.Start(ctx)
	defer reflections.Stop()
	cronSched.Start(ctx)
	defer cronSched.Stop()
	logger.Info("startup phase", "phase", "engines_started", "session_id", k.SessionID())

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go handleReloads(ctx, watcher, guards, bridge, logger)
	}

	if interactive {
		go func() {
			runREPL(ctx, rt, metrics, k.SessionID())
			stop()
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.SaveMemory(saveCtx, stm.Snapshot()); err != nil {
		logger.Error("failed to persist memory snapshot", "error", err)
	}
	if err := store.SaveGoals(saveCtx, goals.List("")); err != nil {
		logger.Error("failed to persist goals", "error", err)
	}
	logger.Info("shutdown complete")
}

// restoreState rehydrates short-term memory and goals from the last run.
func restoreState(ctx context.Context, store *persistence.Store, stm *memory.ShortTerm, goals *goal.Planner, logger *slog.Logger) {
	if snap, ok, err := store.LoadMemory(ctx); err != nil {
		logger.Warn("memory snapshot restore failed", "error", err)
	} else if ok {
		stm.Restore(snap)
	}
	if saved, ok, err := store.LoadGoals(ctx); err != nil {
		logger.Warn("goal restore failed", "error", err)
	} else if ok {
		goals.Restore(saved)
	}
}

// setupBridge loads the operation catalog when configured. Load failures
// leave the bridge online but empty so it can be reloaded from disk later.
func setupBridge(ctx context.Context, cfg config.Config, logger *slog.Logger) *manifest.Catalog {
	if cfg.ManifestPath == "" && cfg.ManifestURL == "" {
		return nil
	}
	bridge, err := manifest.New()
	if err != nil {
		logger.Warn("bridge catalog unavailable", "error", err)
		return nil
	}
	if cfg.ManifestPath != "" {
		if err := bridge.LoadFile(cfg.ManifestPath); err != nil {
			logger.Warn("manifest load failed", "path", cfg.ManifestPath, "error", err)
		}
		return bridge
	}
	if err := bridge.LoadURL(ctx, cfg.ManifestURL); err != nil {
		logger.Warn("manifest fetch failed", "url", cfg.ManifestURL, "error", err)
	}
	return bridge
}

// recordBusMetrics mirrors bus events into OTel counters.
func recordBusMetrics(ctx context.Context, events *bus.Bus, metrics *otelPkg.Metrics) {
	sub := events.Subscribe("")
	defer events.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			switch ev.Topic {
			case bus.TopicTaskCompleted:
				metrics.TasksCompleted.Add(ctx, 1)
			case bus.TopicTaskFailed:
				metrics.TasksFailed.Add(ctx, 1)
			case bus.TopicGuardrailViolation:
				metrics.GuardrailViolations.Add(ctx, 1)
			case bus.TopicReflectionCreated:
				metrics.Reflections.Add(ctx, 1)
			}
		}
	}
}

// handleReloads applies hot-reload events for policy.yaml and manifest.json.
func handleReloads(ctx context.Context, watcher *config.Watcher, guards *guardrails.Engine, bridge *manifest.Catalog, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events():
			if !ok {
				return
			}
			logger.Info("config hot-reload event", "path", ev.Path, "op", ev.Op.String())
			switch filepath.Base(ev.Path) {
			case "policy.yaml":
				pol, err := guardrails.Load(ev.Path)
				if err != nil {
					logger.Error("policy.yaml reload rejected; retaining previous policy", "error", err)
					continue
				}
				if err := guards.Reload(pol); err != nil {
					logger.Error("policy.yaml reload rejected; retaining previous policy", "error", err)
					continue
				}
				logger.Info("policy.yaml hot-reloaded")
			case "manifest.json":
				if bridge == nil {
					continue
				}
				if err := bridge.LoadFile(ev.Path); err != nil {
					logger.Error("manifest.json reload rejected; retaining previous catalog", "error", err)
					continue
				}
				logger.Info("manifest.json hot-reloaded")
			case "config.yaml":
				// Most config fields bind at startup; note the change so
				// operators know a restart is needed.
				logger.Info("config.yaml changed; restart to apply")
			}
		}
	}
}

// runREPL reads input lines and dispatches them through the router.
func runREPL(ctx context.Context, rt *router.Router, metrics *otelPkg.Metrics, sessionID string) {
	fmt.Printf("autarch %s — session %s\n", Version, sessionID)
	fmt.Println(`Type "help" for commands, "exit" to quit.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("autarch> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		start := time.Now()
		entry := rt.Dispatch(ctx, line)
		metrics.CommandDuration.Record(ctx, time.Since(start).Seconds())
		if entry.Decision == guardian.DecisionBlock {
			metrics.InputsBlocked.Add(ctx, 1)
		}
		if entry.Result.Message != "" {
			fmt.Println(entry.Result.Message)
		}
		for _, note := range entry.Notes {
			fmt.Println("  note:", note)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func fatalStartup(logger *slog.Logger, phase string, err error) {
	if logger != nil {
		logger.Error("startup failure", "phase", phase, "error", err)
	} else {
		fmt.Fprintf(os.Stderr, "autarch: %s: %v\n", phase, err)
	}
	os.Exit(1)
}

// loadDotEnv loads KEY=VALUE pairs from a local .env file without
// overriding variables already set in the environment.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
