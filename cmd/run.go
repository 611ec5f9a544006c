package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/artifacts"
	"github.com/xkilldash9x/storefront-cli/internal/config"
	"github.com/xkilldash9x/storefront-cli/internal/observability"
	"github.com/xkilldash9x/storefront-cli/internal/reporting"
	"github.com/xkilldash9x/storefront-cli/internal/results"
	"github.com/xkilldash9x/storefront-cli/internal/scenario"
	"github.com/xkilldash9x/storefront-cli/internal/store"
)

// ErrScenariosFailed makes the process exit non-zero when any scenario failed.
var ErrScenariosFailed = errors.New("one or more scenarios failed")

// runSaver persists finished runs.
type runSaver interface {
	SaveRun(ctx context.Context, run *results.Run) error
}

// runDeps are the collaborators of one run, swappable in tests.
type runDeps struct {
	registry *scenario.Registry
	sessions scenario.SessionFactory
	shots    scenario.ScreenshotSaver
	reporter reporting.Reporter
	saver    runSaver
}

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run storefront scenarios (all of them when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := observability.GetLogger()

			names := args
			if len(names) == 0 {
				names = cfg.Run.Scenarios
			}

			deps, cleanup, err := buildRunDeps(ctx, cfg, cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			defer cleanup()

			_, err = executeRun(ctx, cfg, names, deps, logger)
			return err
		},
	}

	runCmd.Flags().Bool("headless", true, "Run the browser without a window")
	runCmd.Flags().String("backend", config.BackendChromedp, "Browser backend: chromedp or rod")
	runCmd.Flags().StringP("format", "f", reporting.FormatText, "Report format: text, json or junit")
	runCmd.Flags().StringP("output", "o", "", "Report file (default stdout)")
	runCmd.Flags().IntP("concurrency", "j", 0, "Scenarios run at the same time (overrides config)")
	runCmd.Flags().Duration("timeout", 0, "Time limit per scenario (overrides config)")
	runCmd.Flags().String("screenshots", "", "Directory for failure screenshots")
	return runCmd
}

// buildRunDeps wires the production collaborators. The returned cleanup
// releases the report output and the database pool; on error they are
// already released.
func buildRunDeps(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *zap.Logger) (runDeps, func(), error) {
	deps := runDeps{
		registry: scenario.Builtin(),
		sessions: scenario.OpenSessions(cfg),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (runDeps, func(), error) {
		cleanup()
		return runDeps{}, func() {}, err
	}

	shots, err := artifacts.NewWriter(cfg.Run.ScreenshotDir, logger)
	if err != nil {
		return fail(err)
	}
	deps.shots = shots

	var reporter reporting.Reporter
	if cfg.Run.ReportOutput == "" || cfg.Run.ReportOutput == "stdout" {
		reporter, err = reporting.NewWithWriter(cfg.Run.ReportFormat, reporting.NopCloser(stdout))
	} else {
		reporter, err = reporting.New(cfg.Run.ReportFormat, cfg.Run.ReportOutput)
	}
	if err != nil {
		return fail(err)
	}
	owned := &onceReporter{Reporter: reporter}
	deps.reporter = owned
	closers = append(closers, func() {
		if err := owned.Close(); err != nil {
			logger.Warn("Failed to close report output.", zap.Error(err))
		}
	})

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to database: %w", err))
		}
		closers = append(closers, pool.Close)

		s, err := store.New(ctx, pool, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize database store: %w", err))
		}
		if err := s.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		deps.saver = s
	}
	return deps, cleanup, nil
}

// onceReporter closes the wrapped reporter at most once, so executeRun can
// report the close error and cleanup can still release the output.
type onceReporter struct {
	reporting.Reporter
	once sync.Once
	err  error
}

func (r *onceReporter) Close() error {
	r.once.Do(func() { r.err = r.Reporter.Close() })
	return r.err
}

// executeRun runs the scenarios, persists the run when a store is wired and
// writes the report. The report is written even when persisting fails.
func executeRun(ctx context.Context, cfg *config.Config, names []string, deps runDeps, logger *zap.Logger) (*results.Run, error) {
	runner := scenario.NewRunner(cfg, deps.registry, deps.sessions, deps.shots, logger)
	run, err := runner.Run(ctx, names)
	if err != nil {
		_ = deps.reporter.Close()
		return nil, err
	}

	var saveErr error
	if deps.saver != nil {
		if saveErr = deps.saver.SaveRun(ctx, run); saveErr != nil {
			logger.Error("Failed to save run.", zap.String("run_id", run.ID), zap.Error(saveErr))
		}
	}

	if err := deps.reporter.Write(run); err != nil {
		_ = deps.reporter.Close()
		return run, fmt.Errorf("failed to write report: %w", err)
	}
	if err := deps.reporter.Close(); err != nil {
		return run, fmt.Errorf("failed to write report: %w", err)
	}

	logger.Info("Run complete.", zap.String("run_id", run.ID), zap.Stringer("summary", results.Summarize(run)))
	switch {
	case saveErr != nil:
		return run, fmt.Errorf("failed to save run %s: %w", run.ID, saveErr)
	case run.Failed():
		return run, ErrScenariosFailed
	}
	return run, nil
}
