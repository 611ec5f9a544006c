// Package storefront models the demo shop's pages as workflows over the
// interaction engine.
//
// Pages hold an *Engine rather than embedding a shared base type; every
// operation goes through the locator, action and overlay layers so fallbacks,
// degraded interactions and waits behave the same on every page.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/action"
	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/browser/session"
	"github.com/xkilldash9x/storefront-cli/internal/config"
	"github.com/xkilldash9x/storefront-cli/internal/locator"
	"github.com/xkilldash9x/storefront-cli/internal/overlay"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

const scrollToBottomScript = `window.scrollTo(0, document.body.scrollHeight);
return true;`

// Engine bundles the collaborators every page needs.
type Engine struct {
	Session  *session.Session
	Waits    *wait.Engine
	Resolver *locator.Resolver
	Actions  *action.Executor
	Guard    *overlay.Guard
	Log      *zap.Logger

	shop config.StorefrontConfig
}

// NewEngine wires the interaction layers around sess.
func NewEngine(sess *session.Session, cfg *config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	waits := wait.NewEngine(sess, cfg.Wait, logger)
	actions := action.NewExecutor(cfg.Wait, logger)
	return &Engine{
		Session:  sess,
		Waits:    waits,
		Resolver: locator.NewResolver(waits, sess, logger),
		Actions:  actions,
		Guard:    overlay.NewGuard(sess, waits, actions, cfg.Overlay, logger),
		Log:      logger.Named("storefront"),
		shop:     cfg.Storefront,
	}
}

// Settings returns the storefront section the engine was built with.
func (e *Engine) Settings() config.StorefrontConfig { return e.shop }

// open navigates to path relative to the base URL, suppresses the consent
// banner and waits for the document.
func (e *Engine) open(ctx context.Context, path string) error {
	if err := e.Session.Navigate(ctx, e.shop.URL(path)); err != nil {
		return err
	}
	e.Guard.Suppress(ctx)
	return e.Session.PageReady(ctx)
}

// settle waits a configured delay for server side effects with no DOM signal.
func (e *Engine) settle(ctx context.Context, what string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	e.Log.Debug("Settling.", zap.String("after", what), zap.Duration("delay", d))
	return wait.Settle(ctx, d)
}

func (e *Engine) scrollToBottom(ctx context.Context) {
	if err := e.Session.Evaluate(ctx, scrollToBottomScript, nil); err != nil {
		e.Log.Debug("Scroll to bottom failed.", zap.Error(err))
	}
}

// click resolves chain as clickable and clicks the winner.
func (e *Engine) click(ctx context.Context, chain query.Chain, opts ...locator.Option) (driver.Element, error) {
	el, err := e.Resolver.Resolve(ctx, chain, wait.Clickable, 0, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := e.Actions.Click(ctx, el); err != nil {
		return nil, err
	}
	return el, nil
}

// displayed keeps the elements that are rendered and, when minHeight is
// positive, taller than minHeight. Elements that went stale are skipped.
func displayed(ctx context.Context, els []driver.Element, minHeight float64) ([]driver.Element, error) {
	out := make([]driver.Element, 0, len(els))
	for _, el := range els {
		ok, err := el.Displayed(ctx)
		if errors.Is(err, driver.ErrStaleReference) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if minHeight > 0 {
			size, err := el.Size(ctx)
			if errors.Is(err, driver.ErrStaleReference) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if size.Height <= minHeight {
				continue
			}
		}
		out = append(out, el)
	}
	return out, nil
}

// first returns the first descendant of el matching css.
func first(ctx context.Context, el driver.Element, css string) (driver.Element, error) {
	found, err := el.Descendants(ctx, css)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s inside %s", locator.ErrElementNotFound, css, el.ID())
	}
	return found[0], nil
}

// priceOf reads and parses the first price below el.
func priceOf(ctx context.Context, el driver.Element, css string) (float64, error) {
	p, err := first(ctx, el, css)
	if err != nil {
		return 0, err
	}
	text, err := p.Text(ctx)
	if err != nil {
		return 0, err
	}
	return ParsePrice(text)
}
