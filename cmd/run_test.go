package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver/drivertest"
	"github.com/xkilldash9x/storefront-cli/internal/browser/session"
	"github.com/xkilldash9x/storefront-cli/internal/config"
	"github.com/xkilldash9x/storefront-cli/internal/mocks"
	"github.com/xkilldash9x/storefront-cli/internal/results"
	"github.com/xkilldash9x/storefront-cli/internal/scenario"
	"github.com/xkilldash9x/storefront-cli/internal/storefront"
)

func testRunConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Browser.LaunchInterval = 0
	cfg.Run.ScenarioTimeout = 5 * time.Second
	return cfg
}

func fakeSessions(cfg *config.Config) scenario.SessionFactory {
	return func(ctx context.Context, logger *zap.Logger) (*session.Session, error) {
		return session.New(drivertest.NewPage(), cfg.Browser, cfg.Wait, logger), nil
	}
}

func testDeps(t *testing.T, cfg *config.Config, run func(context.Context, *storefront.Site) error) (runDeps, *mocks.MockReporter, *mocks.MockRunStore) {
	t.Helper()
	reg := scenario.NewRegistry()
	require.NoError(t, reg.Register(scenario.Scenario{Name: "check", Run: run}))

	shots := new(mocks.MockScreenshotSaver)
	shots.On("SaveScreenshot", "check", mock.Anything).Return("shots/check.png", nil).Maybe()

	reporter := new(mocks.MockReporter)
	saver := new(mocks.MockRunStore)
	return runDeps{
		registry: reg,
		sessions: fakeSessions(cfg),
		shots:    shots,
		reporter: reporter,
		saver:    saver,
	}, reporter, saver
}

func TestExecuteRun(t *testing.T) {
	ctx := context.Background()
	pass := func(context.Context, *storefront.Site) error { return nil }

	t.Run("passing run is saved and reported", func(t *testing.T) {
		cfg := testRunConfig()
		deps, reporter, saver := testDeps(t, cfg, pass)
		saver.On("SaveRun", mock.Anything, mock.AnythingOfType("*results.Run")).Return(nil).Once()
		reporter.On("Write", mock.AnythingOfType("*results.Run")).Return(nil).Once()
		reporter.On("Close").Return(nil).Once()

		run, err := executeRun(ctx, cfg, nil, deps, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.Len(t, run.Outcomes, 1)
		assert.Equal(t, results.StatusPassed, run.Outcomes[0].Status)
		saver.AssertExpectations(t)
		reporter.AssertExpectations(t)
	})

	t.Run("failed scenario fails the command", func(t *testing.T) {
		cfg := testRunConfig()
		deps, reporter, saver := testDeps(t, cfg, func(context.Context, *storefront.Site) error {
			return scenario.Failf("wishlist holds 1 items, expected 2")
		})
		saver.On("SaveRun", mock.Anything, mock.Anything).Return(nil).Once()
		reporter.On("Write", mock.Anything).Return(nil).Once()
		reporter.On("Close").Return(nil).Once()

		run, err := executeRun(ctx, cfg, []string{"check"}, deps, zaptest.NewLogger(t))
		assert.ErrorIs(t, err, ErrScenariosFailed)
		require.NotNil(t, run)
		assert.Equal(t, "shots/check.png", run.Outcomes[0].Screenshot)
		reporter.AssertExpectations(t)
	})

	t.Run("report is written when saving fails", func(t *testing.T) {
		cfg := testRunConfig()
		deps, reporter, saver := testDeps(t, cfg, pass)
		saver.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()
		reporter.On("Write", mock.Anything).Return(nil).Once()
		reporter.On("Close").Return(nil).Once()

		_, err := executeRun(ctx, cfg, nil, deps, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "connection refused")
		reporter.AssertExpectations(t)
	})

	t.Run("no store configured", func(t *testing.T) {
		cfg := testRunConfig()
		deps, reporter, _ := testDeps(t, cfg, pass)
		deps.saver = nil
		reporter.On("Write", mock.Anything).Return(nil).Once()
		reporter.On("Close").Return(nil).Once()

		_, err := executeRun(ctx, cfg, nil, deps, zaptest.NewLogger(t))
		assert.NoError(t, err)
	})

	t.Run("report write failure", func(t *testing.T) {
		cfg := testRunConfig()
		deps, reporter, saver := testDeps(t, cfg, pass)
		saver.On("SaveRun", mock.Anything, mock.Anything).Return(nil).Once()
		reporter.On("Write", mock.Anything).Return(errors.New("disk full")).Once()
		reporter.On("Close").Return(nil).Once()

		_, err := executeRun(ctx, cfg, nil, deps, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "failed to write report: disk full")
		reporter.AssertExpectations(t)
	})

	t.Run("unknown scenario closes the reporter", func(t *testing.T) {
		cfg := testRunConfig()
		deps, reporter, saver := testDeps(t, cfg, pass)
		reporter.On("Close").Return(nil).Once()

		_, err := executeRun(ctx, cfg, []string{"nope"}, deps, zaptest.NewLogger(t))
		assert.ErrorIs(t, err, scenario.ErrUnknownScenario)
		reporter.AssertExpectations(t)
		saver.AssertNotCalled(t, "SaveRun", mock.Anything, mock.Anything)
	})
}

func TestSchedule(t *testing.T) {
	t.Run("invalid expression", func(t *testing.T) {
		cfg := testRunConfig()
		cfg.Run.Schedule = "every tuesday"
		err := schedule(context.Background(), cfg, func(context.Context) error { return nil }, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "invalid schedule")
	})

	t.Run("runs until cancelled", func(t *testing.T) {
		cfg := testRunConfig()
		cfg.Run.Schedule = "@every 1s"
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var runs atomic.Int32
		done := make(chan error, 1)
		go func() {
			done <- schedule(ctx, cfg, func(context.Context) error {
				if runs.Add(1) == 1 {
					cancel()
				}
				return ErrScenariosFailed
			}, zaptest.NewLogger(t))
		}()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not stop")
		}
		assert.Equal(t, int32(1), runs.Load())
	})
}

// openDescriptors counts this process's descriptors open on path.
func openDescriptors(t *testing.T, path string) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("descriptor table not available")
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	n := 0
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name()))
		if err == nil && target == path {
			n++
		}
	}
	return n
}

func TestBuildRunDeps(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("needs /proc")
	}

	newConfig := func(t *testing.T) (*config.Config, string) {
		cfg := testRunConfig()
		dir := t.TempDir()
		cfg.Run.ScreenshotDir = dir
		cfg.Run.ReportFormat = "junit"
		cfg.Run.ReportOutput = filepath.Join(dir, "report.xml")
		return cfg, cfg.Run.ReportOutput
	}

	t.Run("unreachable database releases the report file", func(t *testing.T) {
		cfg, report := newConfig(t)
		cfg.Database.URL = "postgres://user@127.0.0.1:1/storefront?connect_timeout=2"
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		for i := 0; i < 3; i++ {
			_, cleanup, err := buildRunDeps(ctx, cfg, io.Discard, zaptest.NewLogger(t))
			require.Error(t, err)
			assert.ErrorContains(t, err, "failed to ping database")
			require.NotNil(t, cleanup)
			cleanup()
		}
		assert.Zero(t, openDescriptors(t, report))
	})

	t.Run("cleanup after executeRun closes once", func(t *testing.T) {
		cfg, report := newConfig(t)
		deps, cleanup, err := buildRunDeps(context.Background(), cfg, io.Discard, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Equal(t, 1, openDescriptors(t, report))

		require.NoError(t, deps.reporter.Close())
		assert.Zero(t, openDescriptors(t, report))
		cleanup()
		require.NoError(t, deps.reporter.Close())

		data, err := os.ReadFile(report)
		require.NoError(t, err)
		assert.Contains(t, string(data), "<testsuites")
	})

	t.Run("cleanup alone releases the report file", func(t *testing.T) {
		cfg, report := newConfig(t)
		_, cleanup, err := buildRunDeps(context.Background(), cfg, io.Discard, zaptest.NewLogger(t))
		require.NoError(t, err)
		cleanup()
		assert.Zero(t, openDescriptors(t, report))
	})
}
