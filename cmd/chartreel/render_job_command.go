package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chartreel/internal/logging"
	"chartreel/internal/progress"
	"chartreel/internal/render"
	"chartreel/internal/services"
)

// exitCodeError carries a child exit status through cobra to main.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("render job exited with code %d", e.code)
}

func newRenderJobCommand(ctx *commandContext) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:    "render-job",
		Short:  "Run one render pass (spawned by the daemon)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				_ = progress.NewEmitter(stdout).Error(err.Error())
				return err
			}
			logger, err := logging.NewForRenderJob(cfg)
			if err != nil {
				_ = progress.NewEmitter(stdout).Error(err.Error())
				return fmt.Errorf("init logger: %w", err)
			}
			if jobID != "" {
				logger = logger.With(logging.String(logging.FieldJobID, jobID))
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			job, err := render.NewJobFromConfig(cfg, stdout, logger)
			if err != nil {
				_ = progress.NewEmitter(stdout).Error(err.Error())
				return err
			}
			runCtx := signalCtx
			if jobID != "" {
				runCtx = services.WithJobID(runCtx, jobID)
			}
			if code := job.Execute(runCtx); code != 0 {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job-id", "", "Job identifier assigned by the daemon")
	return cmd
}
