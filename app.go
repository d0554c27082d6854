package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/danmt/hub-spoke-cm-sub000/agent"
	"github.com/danmt/hub-spoke-cm-sub000/config"
	"github.com/danmt/hub-spoke-cm-sub000/evolution"
	"github.com/danmt/hub-spoke-cm-sub000/feedback"
	"github.com/danmt/hub-spoke-cm-sub000/llm"
	"github.com/danmt/hub-spoke-cm-sub000/logging"
	"github.com/danmt/hub-spoke-cm-sub000/metrics"
	"github.com/danmt/hub-spoke-cm-sub000/orchestrator"
	"github.com/danmt/hub-spoke-cm-sub000/registry"
	"github.com/danmt/hub-spoke-cm-sub000/workspace"
)

// app is everything a command needs, opened once per invocation.
type app struct {
	cfg      config.Config
	opts     *rootOptions
	logger   *slog.Logger
	ws       *workspace.Workspace
	feedback feedback.Store
	metrics  *metrics.Recorder
	client   llm.Client
	closers  []func() error
}

func openApp(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if opts.workspace != "" {
		cfg.Workspace = opts.workspace
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(cmd.ErrOrStderr(), level, cfg.LogFormat)

	ws, err := workspace.Open(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		opts:    opts,
		logger:  logger,
		ws:      ws,
		metrics: metrics.New(),
	}

	switch cfg.FeedbackBackend {
	case config.BackendSQLite:
		path := cfg.SQLitePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(ws.Root(), path)
		}
		store, err := feedback.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		a.feedback = store
		a.closers = append(a.closers, store.Close)
	default:
		a.feedback = feedback.NewJSONLStore(ws.AgentsRoot())
	}
	logger.Debug("workspace opened", "root", ws.Root(), "feedback", cfg.FeedbackBackend)
	return a, nil
}

// llmClient builds the completion client on first use so commands that never call
// a model work without credentials.
func (a *app) llmClient(ctx context.Context) (llm.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	c, err := llm.New(ctx, a.cfg.Settings())
	if err != nil {
		return nil, err
	}
	a.client = metrics.InstrumentClient(c, a.metrics)
	return a.client, nil
}

func (a *app) buildRegistry(ctx context.Context) (*registry.Registry, error) {
	arts, err := a.ws.Artifacts(ctx)
	if err != nil {
		return nil, err
	}
	client, err := a.llmClient(ctx)
	if err != nil {
		return nil, err
	}
	return registry.New(arts, client, agent.Options{Model: a.cfg.LLM.Model, Logger: a.logger})
}

func (a *app) actions(ctx context.Context) (*orchestrator.Actions, error) {
	reg, err := a.buildRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(orchestrator.Deps{
		Registry: reg,
		Feedback: a.feedback,
		Logger:   a.logger,
		Metrics:  a.metrics,
	})
}

// engine builds the evolution engine. A non-empty policy overrides the
// configured one.
func (a *app) engine(ctx context.Context, policy string) (*evolution.Engine, error) {
	p := a.cfg.Policy()
	if policy != "" {
		var ok bool
		if p, ok = evolution.ParsePolicy(policy); !ok {
			return nil, fmt.Errorf("unknown conflict policy %q", policy)
		}
	}
	client, err := a.llmClient(ctx)
	if err != nil {
		return nil, err
	}
	return evolution.New(evolution.Config{
		Artifacts:  a.ws,
		Feedback:   a.feedback,
		Analyzer:   &evolution.LLMAnalyzer{Client: client, Model: a.cfg.LLM.Model},
		Summarizer: &evolution.LLMSummarizer{Client: client, Model: a.cfg.LLM.Model},
		Policy:     p,
		Logger:     a.logger,
		Metrics:    a.metrics,
	})
}

// interactive reports whether review prompts should be shown.
func (a *app) interactive() bool {
	return !a.opts.headless && stdinIsTerminal()
}

// Close writes the metrics textfile and releases stores.
func (a *app) Close() error {
	var errs []error
	if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		errs = append(errs, fmt.Errorf("metrics textfile: %w", err))
	}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// withApp opens the app, runs fn and closes it, keeping fn's error first.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Close(); err != nil {
		a.logger.Warn("close", "error", err)
	}
	return runErr
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
