// Package session owns the automation handle for one scenario run.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/config"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

const readyStateScript = `return document.readyState;`

// Session gates all access to one page. It is not safe for concurrent use;
// every scenario owns its own.
type Session struct {
	id       string
	drv      driver.Driver
	navLimit time.Duration
	waitCfg  config.WaitConfig
	logger   *zap.Logger

	onClose   func()
	closeOnce sync.Once
	closeErr  error
}

// New wraps an already launched driver.
func New(drv driver.Driver, browserCfg config.BrowserConfig, waitCfg config.WaitConfig, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New().String()
	return &Session{
		id:       id,
		drv:      drv,
		navLimit: browserCfg.NavigationTimeout,
		waitCfg:  waitCfg,
		logger:   logger.Named("session").With(zap.String("session_id", id)),
	}
}

// Open launches a browser with the configured backend and wraps it.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	drv, err := driver.Launch(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, err
	}
	return New(drv, cfg.Browser, cfg.Wait, logger), nil
}

func (s *Session) ID() string { return s.id }

// Logger is the session's logger, tagged with its id.
func (s *Session) Logger() *zap.Logger { return s.logger }

// WaitConfig returns the wait defaults the session was built with.
func (s *Session) WaitConfig() config.WaitConfig { return s.waitCfg }

// SetOnClose registers a callback run once when the session closes.
func (s *Session) SetOnClose(fn func()) { s.onClose = fn }

// Navigate loads url, asks for a maximized window and blocks until the
// document is ready. A refused maximize is ignored.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))

	navCtx := ctx
	if s.navLimit > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.navLimit)
		defer cancel()
	}
	if err := s.drv.Navigate(navCtx, url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if err := s.drv.Maximize(ctx); err != nil {
		s.logger.Debug("Window maximize refused, continuing.", zap.Error(err))
	}
	return s.PageReady(ctx)
}

// PageReady polls until document.readyState is "complete". A timeout is fatal
// to the caller.
func (s *Session) PageReady(ctx context.Context) error {
	_, err := wait.Until(ctx, "document ready", s.waitCfg.Timeout, s.waitCfg.PollInterval, func(ctx context.Context) (bool, error) {
		var state string
		if err := s.drv.Evaluate(ctx, readyStateScript, &state); err != nil {
			return false, err
		}
		return state == "complete", nil
	})
	if err != nil {
		return fmt.Errorf("page not ready: %w", err)
	}
	return nil
}

// Evaluate runs script as a function body in the page. It is the escape hatch
// for overlay teardown and scripted fallbacks.
func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	return s.drv.Evaluate(ctx, script, res)
}

func (s *Session) Find(ctx context.Context, q query.Query) ([]driver.Element, error) {
	return s.drv.Find(ctx, q)
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	return s.drv.CurrentURL(ctx)
}

func (s *Session) Title(ctx context.Context) (string, error) {
	return s.drv.Title(ctx)
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.drv.Screenshot(ctx)
}

// Close releases the browser. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing session.")
		s.closeErr = s.drv.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.closeErr
}
