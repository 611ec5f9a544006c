package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/config"
)

// cdpDriver drives one tab over the DevTools protocol with chromedp.
type cdpDriver struct {
	logger      *zap.Logger
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// execAllocatorOptions builds the Chrome process options for cfg.
func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.Flag("enable-automation", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.BinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BinaryPath))
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	for _, f := range parseArgs(cfg.Args) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	return opts
}

func launchChromedp(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Driver, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), execAllocatorOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(logger.Sugar().Errorf)}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(logger.Sugar().Debugf))
	}
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, ctxOpts...)

	// The first Run allocates the browser and ties its lifetime to tabCtx, so it
	// cannot run on ctx directly.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()

	select {
	case err := <-started:
		if err != nil {
			cancelTab()
			cancelAlloc()
			return nil, fmt.Errorf("failed to start chrome: %w", err)
		}
	case <-ctx.Done():
		cancelTab()
		cancelAlloc()
		<-started
		return nil, fmt.Errorf("chrome start up abandoned: %w", ctx.Err())
	}

	logger.Debug("Browser started.", zap.Bool("headless", cfg.Headless))
	return &cdpDriver{
		logger:      logger,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

// run executes actions on the tab, bounded by the caller's ctx.
func (d *cdpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(d.tabCtx, ctx)
	defer cancel()
	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// classifyCDP maps protocol failures onto the package errors.
func classifyCDP(script string, err error) error {
	if err == nil {
		return nil
	}
	var exp *runtime.ExceptionDetails
	if errors.As(err, &exp) {
		msg := exp.Text
		if exp.Exception != nil && exp.Exception.Description != "" {
			msg = exp.Exception.Description
		}
		return NewScriptError(script, msg)
	}
	return markStale(err)
}

func (d *cdpDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (d *cdpDriver) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, chromedp.Location(&u))
	return u, err
}

func (d *cdpDriver) Title(ctx context.Context) (string, error) {
	var t string
	err := d.run(ctx, chromedp.Title(&t))
	return t, err
}

func (d *cdpDriver) Maximize(ctx context.Context) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		windowID, _, err := cdpbrowser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		return cdpbrowser.SetWindowBounds(windowID, &cdpbrowser.Bounds{
			WindowState: cdpbrowser.WindowStateMaximized,
		}).Do(ctx)
	}))
}

func (d *cdpDriver) Evaluate(ctx context.Context, script string, res any) error {
	expr := "(function() {\n" + script + "\n})()"
	return classifyCDP(script, d.run(ctx, chromedp.Evaluate(expr, res)))
}

func (d *cdpDriver) Find(ctx context.Context, q query.Query) ([]Element, error) {
	by := chromedp.ByQueryAll
	if q.Kind() == query.KindXPath {
		by = chromedp.BySearch
	}
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(q.Expression(), &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("find %s: %w", q, markStale(err))
	}
	return d.wrap(nodes), nil
}

func (d *cdpDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (d *cdpDriver) Close() error {
	d.closeOnce.Do(func() {
		err := chromedp.Cancel(d.tabCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.closeErr = err
		}
		d.cancelTab()
		d.cancelAlloc()
		d.logger.Debug("Browser closed.")
	})
	return d.closeErr
}

func (d *cdpDriver) wrap(nodes []*cdp.Node) []Element {
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.newElement(n))
	}
	return out
}

func (d *cdpDriver) newElement(n *cdp.Node) *cdpElement {
	e := &cdpElement{d: d, node: n}
	e.scriptReads = scriptReads{call: e.Call}
	return e
}

type cdpElement struct {
	scriptReads
	d    *cdpDriver
	node *cdp.Node
}

func (e *cdpElement) ID() string {
	return fmt.Sprintf("cdp-node-%d", e.node.NodeID)
}

func (e *cdpElement) Call(ctx context.Context, fn string, res any, args ...any) error {
	err := e.d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()
		return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(obj.ObjectID)
		}, args...).Do(ctx)
	}))
	return classifyCDP(fn, err)
}

func (e *cdpElement) Descendants(ctx context.Context, css string) ([]Element, error) {
	var nodes []*cdp.Node
	err := e.d.run(ctx, chromedp.Nodes(css, &nodes, chromedp.ByQueryAll, chromedp.FromNode(e.node), chromedp.AtLeast(0)))
	if err != nil {
		return nil, markStale(err)
	}
	return e.d.wrap(nodes), nil
}

func (e *cdpElement) Click(ctx context.Context) error {
	if err := e.checkHit(ctx); err != nil {
		return err
	}
	return markStale(e.d.run(ctx, chromedp.MouseClickNode(e.node)))
}

func (e *cdpElement) Hover(ctx context.Context) error {
	p, err := e.center(ctx)
	if err != nil {
		return err
	}
	return markStale(e.d.run(ctx, chromedp.MouseEvent(input.MouseMoved, p.X, p.Y)))
}
