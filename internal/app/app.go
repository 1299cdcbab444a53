// Package app wires configuration, stores and collaborators together for
// the vibe and build-worker binaries.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/vibe-builder/internal/config"
	"github.com/hochfrequenz/vibe-builder/internal/janitor"
	"github.com/hochfrequenz/vibe-builder/internal/jobstore"
	"github.com/hochfrequenz/vibe-builder/internal/ledger"
	"github.com/hochfrequenz/vibe-builder/internal/llm"
	"github.com/hochfrequenz/vibe-builder/internal/pipeline"
	"github.com/hochfrequenz/vibe-builder/internal/prompts"
	"github.com/hochfrequenz/vibe-builder/internal/registry"
	"github.com/hochfrequenz/vibe-builder/internal/worker"
)

// ErrPlannerNotConfigured is returned when planning without an API key
var ErrPlannerNotConfigured = errors.New("planner is not configured (set OPENAI_API_KEY or llm.api_key)")

// App bundles the stores every command works against
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Ledger   *ledger.Store
	Jobs     *jobstore.Store
	Repo     *registry.FileRepository
	Registry *registry.Manager
}

// NewLogger returns the text logger used by all binaries
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Open resolves and loads the config, then opens every store
func Open(configPath string, debug bool) (*App, error) {
	cfg, err := config.Load(config.Resolve(configPath))
	if err != nil {
		return nil, err
	}
	logger := NewLogger(debug)
	slog.SetDefault(logger)
	return New(cfg, logger)
}

// New opens the stores described by cfg
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	for _, dir := range []string{cfg.General.DataDir, cfg.General.WorkspaceDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	store, err := ledger.New(cfg.General.DataDir, logger)
	if err != nil {
		return nil, err
	}
	jobs, err := jobstore.New(cfg.General.DatabasePath, cfg.Logs.TTL.Duration)
	if err != nil {
		return nil, err
	}
	repo, err := registry.NewFileRepository(cfg.General.RegistryFile, logger)
	if err != nil {
		jobs.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Ledger:   store,
		Jobs:     jobs,
		Repo:     repo,
		Registry: registry.NewManager(repo, cfg.General.WorkspaceDir, logger),
	}
	if cfg.Janitor.PruneDeadOnLoad {
		if pruned := a.Registry.PruneDead(); len(pruned) > 0 {
			logger.Info("pruned dead dev servers", "jobs", pruned)
		}
	}
	return a, nil
}

// Close releases the job store
func (a *App) Close() error {
	return a.Jobs.Close()
}

// LLMClient builds a chat client from the [llm] section
func (a *App) LLMClient() *llm.Client {
	c := a.Config.LLM
	opts := []llm.Option{llm.WithTemperature(c.Temperature)}
	if c.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(c.BaseURL))
	}
	if c.Model != "" {
		opts = append(opts, llm.WithModel(c.Model))
	}
	return llm.NewClient(c.APIKey, opts...)
}

// Planner returns nil when no API key is configured
func (a *App) Planner() llm.Planner {
	client := a.LLMClient()
	if !client.Configured() {
		return nil
	}
	return llm.NewPlanner(client, prompts.DefaultLoader(a.Config.LLM.PromptsDir))
}

// NewWorker builds a worker around the real build pipeline
func (a *App) NewWorker() *worker.Worker {
	pcfg := pipeline.Config{
		Ports:  pipeline.RandomPort(a.Config.DevServer.PortMin, a.Config.DevServer.PortMax),
		Logger: a.Logger,
	}
	if client := a.LLMClient(); client.Configured() {
		pcfg.Fixer = llm.NewFixer(client, prompts.DefaultLoader(a.Config.LLM.PromptsDir))
	} else {
		a.Logger.Warn("OPENAI_API_KEY not set, failed builds will not be auto-fixed")
	}

	return worker.New(worker.Config{
		Concurrency:  a.Config.Worker.Concurrency,
		Timeout:      a.Config.Worker.Timeout.Duration,
		PollInterval: a.Config.Worker.PollInterval.Duration,
		WorkspaceDir: a.Config.General.WorkspaceDir,
	}, a.Jobs, a.Ledger, pipeline.New(pcfg), a.Repo, a.Logger)
}

// NewJanitor builds the housekeeping scheduler. Dead registry entries are
// only pruned when prune_dead_on_load is set.
func (a *App) NewJanitor() (*janitor.Janitor, error) {
	var pruner janitor.Pruner
	if a.Config.Janitor.PruneDeadOnLoad {
		pruner = a.Registry
	}
	return janitor.New(a.Config.Janitor.Schedule, a.Jobs, pruner, a.Logger)
}

// RunWorker processes jobs and runs the janitor until ctx is done. onStatus
// may be nil.
func (a *App) RunWorker(ctx context.Context, onStatus func(worker.StatusEvent)) error {
	jan, err := a.NewJanitor()
	if err != nil {
		return err
	}
	w := a.NewWorker()
	if onStatus != nil {
		w.SetOnStatus(onStatus)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })
	g.Go(func() error { return jan.Run(ctx) })
	return g.Wait()
}
