package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/config"
	"github.com/xkilldash9x/storefront-cli/internal/observability"
)

func newScheduleCmd() *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule [scenario...]",
		Short: "Repeat a run on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Run.Schedule == "" {
				return errors.New("no schedule given, set --cron or run.schedule")
			}
			names := args
			if len(names) == 0 {
				names = cfg.Run.Scenarios
			}
			return schedule(cmd.Context(), cfg, func(ctx context.Context) error {
				deps, cleanup, err := buildRunDeps(ctx, cfg, cmd.OutOrStdout(), observability.GetLogger())
				if err != nil {
					return err
				}
				defer cleanup()
				_, err = executeRun(ctx, cfg, names, deps, observability.GetLogger())
				return err
			}, observability.GetLogger())
		},
	}

	scheduleCmd.Flags().String("cron", "", "Cron expression, e.g. \"*/30 * * * *\" or \"@hourly\"")
	scheduleCmd.Flags().Bool("headless", true, "Run the browser without a window")
	scheduleCmd.Flags().String("backend", config.BackendChromedp, "Browser backend: chromedp or rod")
	scheduleCmd.Flags().StringP("format", "f", "text", "Report format: text, json or junit")
	scheduleCmd.Flags().StringP("output", "o", "", "Report file (default stdout); rewritten by every run")
	scheduleCmd.Flags().IntP("concurrency", "j", 0, "Scenarios run at the same time (overrides config)")
	return scheduleCmd
}

// schedule calls run on cfg.Run.Schedule until ctx is done. A run still in
// progress when the next one is due is not overlapped. Failed runs are logged
// and do not stop the schedule.
func schedule(ctx context.Context, cfg *config.Config, run func(context.Context) error, logger *zap.Logger) error {
	logger = logger.Named("schedule")
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	var runs atomic.Int64
	_, err := c.AddFunc(cfg.Run.Schedule, func() {
		n := runs.Add(1)
		logger.Info("Starting scheduled run.", zap.Int64("run", n))
		if err := run(ctx); err != nil {
			if errors.Is(err, ErrScenariosFailed) {
				logger.Warn("Scheduled run had failures.", zap.Int64("run", n))
				return
			}
			logger.Error("Scheduled run failed.", zap.Int64("run", n), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Run.Schedule, err)
	}

	c.Start()
	logger.Info("Scheduler started.", zap.String("schedule", cfg.Run.Schedule))
	<-ctx.Done()

	logger.Info("Stopping scheduler.")
	<-c.Stop().Done()
	return nil
}
