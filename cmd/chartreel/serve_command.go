package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chartreel/internal/daemon"
	"chartreel/internal/deps"
	"chartreel/internal/history"
	"chartreel/internal/logging"
	"chartreel/internal/notifications"
	"chartreel/internal/publish"
	"chartreel/internal/render"
	"chartreel/internal/supervisor"
	"chartreel/internal/timeline"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: HTTP API, narration proxy, and render supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	for _, missing := range deps.Missing(deps.CheckBinaries(deps.Requirements(cfg))) {
		logging.WarnWithContext(logger, "dependency unavailable", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, "install it or fix the command in the config"),
			logging.String(logging.FieldImpact, "renders fail until it is available"),
		)
	}

	store, err := history.Open(signalCtx, cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	cache, err := render.NewCache(cfg, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	publisher, err := publish.New(cfg.Storage, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("init publisher: %w", err)
	}
	executable, err := os.Executable()
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("locate executable: %w", err)
	}

	opts := supervisor.Options{
		Executable:   executable,
		Args:         renderJobArgs(ctx),
		Timeout:      cfg.RenderTimeout(),
		ArtifactPath: cfg.OutputPath(),
		History:      store,
		Logger:       logger,
	}
	if publisher != nil {
		opts.Publisher = publisher
	}
	if notifier := notifications.NewService(cfg); notifications.Enabled(notifier) {
		opts.Notifier = notifier
	}

	d, err := daemon.New(cfg, logger, daemon.Dependencies{
		Supervisor: supervisor.New(opts),
		History:    store,
		Cache:      cache,
		Props:      timeline.NewStore(cfg.PropsPath()),
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("chartreel daemon shutting down")
	return nil
}

// renderJobArgs are the arguments the supervisor passes to each render child.
// The child resolves the same config file as the daemon.
func renderJobArgs(ctx *commandContext) []string {
	args := []string{"render-job"}
	if ctx.configExists && ctx.configPath != "" {
		args = append(args, "--config", ctx.configPath)
	}
	return args
}
