package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/session"
	"github.com/xkilldash9x/storefront-cli/internal/config"
	"github.com/xkilldash9x/storefront-cli/internal/observability"
	"github.com/xkilldash9x/storefront-cli/internal/results"
	"github.com/xkilldash9x/storefront-cli/internal/storefront"
)

// screenshotTimeout bounds the failure capture, which runs after the
// scenario's own context may already be spent.
const screenshotTimeout = 10 * time.Second

// SessionFactory launches the browser session a scenario runs in.
type SessionFactory func(ctx context.Context, logger *zap.Logger) (*session.Session, error)

// ScreenshotSaver persists a failure capture and returns where it went.
type ScreenshotSaver interface {
	SaveScreenshot(scenario string, png []byte) (string, error)
}

// OpenSessions is the SessionFactory that launches the configured browser.
func OpenSessions(cfg *config.Config) SessionFactory {
	return func(ctx context.Context, logger *zap.Logger) (*session.Session, error) {
		return session.Open(ctx, cfg, logger)
	}
}

// Runner executes scenarios, each in its own browser session.
type Runner struct {
	cfg      *config.Config
	registry *Registry
	sessions SessionFactory
	shots    ScreenshotSaver
	logger   *zap.Logger
}

// NewRunner wires a runner. shots may be nil to skip failure captures.
func NewRunner(cfg *config.Config, registry *Registry, sessions SessionFactory, shots ScreenshotSaver, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		registry: registry,
		sessions: sessions,
		shots:    shots,
		logger:   logger.Named("runner"),
	}
}

func (r *Runner) launchLimiter() *rate.Limiter {
	if r.cfg.Browser.LaunchInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(r.cfg.Browser.LaunchInterval), 1)
}

// Run executes the named scenarios, or all of them when names is empty.
// Scenario failures are reported in the returned run, not as an error; an
// error means the run could not start.
func (r *Runner) Run(ctx context.Context, names []string) (*results.Run, error) {
	selected, err := r.registry.Select(names)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, errors.New("no scenarios to run")
	}

	run := &results.Run{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Outcomes:  make([]results.Outcome, len(selected)),
	}
	log := r.logger.With(zap.String("run_id", run.ID))
	log.Info("Starting run.", zap.Int("scenarios", len(selected)), zap.Int("concurrency", r.cfg.Run.Concurrency))

	limiter := r.launchLimiter()
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.Run.Concurrency > 0 {
		g.SetLimit(r.cfg.Run.Concurrency)
	}
	for i, s := range selected {
		g.Go(func() error {
			run.Outcomes[i] = r.runOne(gctx, run.ID, s, limiter)
			return nil
		})
	}
	_ = g.Wait()

	run.FinishedAt = time.Now().UTC()
	summary := results.Summarize(run)
	log.Info("Run finished.",
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", run.Duration()))
	return run, nil
}

func (r *Runner) runOne(ctx context.Context, runID string, s Scenario, limiter *rate.Limiter) (out results.Outcome) {
	log := observability.ForScenario(r.logger, runID, s.Name)
	out = results.Outcome{Scenario: s.Name, Status: results.StatusFailed}
	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		if out.Passed() {
			log.Info("Scenario passed.", zap.Duration("duration", out.Duration))
		} else {
			log.Error("Scenario failed.", zap.String("error", out.Error), zap.Duration("duration", out.Duration))
		}
	}()

	if err := limiter.Wait(ctx); err != nil {
		out.Error = fmt.Sprintf("waiting to launch browser: %v", err)
		return out
	}

	sctx := ctx
	if r.cfg.Run.ScenarioTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, r.cfg.Run.ScenarioTimeout)
		defer cancel()
	}

	sess, err := r.sessions(sctx, log)
	if err != nil {
		out.Error = fmt.Sprintf("launching browser: %v", err)
		return out
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("Failed to close session.", zap.Error(cerr))
		}
	}()

	site := storefront.NewSite(sess, r.cfg, log)
	err = r.execute(sctx, s, site, log)
	out.Degraded = site.Engine().Actions.Degraded()
	if err == nil {
		out.Status = results.StatusPassed
		return out
	}
	out.Error = err.Error()
	out.Screenshot = r.capture(sctx, s.Name, sess, log)
	return out
}

func (r *Runner) execute(ctx context.Context, s Scenario, site *storefront.Site, log *zap.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("Scenario panicked.",
				zap.Any("panic_value", p),
				zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("scenario panicked: %v", p)
		}
	}()
	return s.Run(ctx, site)
}

// capture saves a screenshot of the failed page. It gets its own deadline so
// a scenario that timed out still leaves evidence.
func (r *Runner) capture(ctx context.Context, name string, sess *session.Session, log *zap.Logger) string {
	if r.shots == nil {
		return ""
	}
	cctx, cancel := context.WithTimeout(driver.Detach(ctx), screenshotTimeout)
	defer cancel()

	png, err := sess.Screenshot(cctx)
	if err != nil {
		log.Warn("Could not capture failure screenshot.", zap.Error(err))
		return ""
	}
	path, err := r.shots.SaveScreenshot(name, png)
	if err != nil {
		log.Warn("Could not save failure screenshot.", zap.Error(err))
		return ""
	}
	log.Info("Saved failure screenshot.", zap.String("path", path))
	return path
}
