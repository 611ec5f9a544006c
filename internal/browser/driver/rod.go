package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// rodDriver drives one page with go-rod.
type rodDriver struct {
	logger   *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
}

// newLauncher builds the Chrome launcher for cfg.
func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.BinaryPath != "" {
		l = l.Bin(cfg.BinaryPath)
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height))
	}
	for _, f := range parseArgs(cfg.Args) {
		if v, ok := f.Value.(string); ok {
			l = l.Set(flags.Flag(f.Name), v)
			continue
		}
		l = l.Set(flags.Flag(f.Name))
	}
	return l
}

func launchRod(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Driver, error) {
	l := newLauncher(cfg)

	type launched struct {
		browser *rod.Browser
		page    *rod.Page
		err     error
	}
	done := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		if err != nil {
			done <- launched{err: fmt.Errorf("failed to launch chrome: %w", err)}
			return
		}
		b := rod.New().ControlURL(u)
		if err := b.Connect(); err != nil {
			done <- launched{err: fmt.Errorf("failed to connect to chrome: %w", err)}
			return
		}
		p, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			_ = b.Close()
			done <- launched{err: fmt.Errorf("failed to open page: %w", err)}
			return
		}
		done <- launched{browser: b, page: p}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			l.Kill()
			l.Cleanup()
			return nil, res.err
		}
		logger.Debug("Browser started.", zap.Bool("headless", cfg.Headless))
		return &rodDriver{logger: logger, launcher: l, browser: res.browser, page: res.page}, nil
	case <-ctx.Done():
		l.Kill()
		if res := <-done; res.browser != nil {
			_ = res.browser.Close()
		}
		l.Cleanup()
		return nil, fmt.Errorf("chrome start up abandoned: %w", ctx.Err())
	}
}

// classifyRod maps rod failures onto the package errors. The element bound
// errors are not formatted: their messages describe the element through
// further protocol calls.
func classifyRod(script string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *rod.EvalError
	if errors.As(err, &evalErr) && evalErr.RuntimeExceptionDetails != nil {
		msg := evalErr.Text
		if evalErr.Exception != nil && evalErr.Exception.Description != "" {
			msg = evalErr.Exception.Description
		}
		return NewScriptError(script, msg)
	}
	var notFound *rod.ObjectNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrStaleReference, err)
	}
	var covered *rod.CoveredError
	if errors.As(err, &covered) {
		return fmt.Errorf("%w: element is covered", ErrClickIntercepted)
	}
	var noPointer *rod.NoPointerEventsError
	if errors.As(err, &noPointer) {
		return fmt.Errorf("%w: element ignores pointer events", ErrClickIntercepted)
	}
	var noShape *rod.InvisibleShapeError
	if errors.As(err, &noShape) {
		return errors.New("element has no visible shape")
	}
	return markStale(err)
}

// decode copies a remote value into res.
func decode(obj *proto.RuntimeRemoteObject, res any) error {
	if res == nil || obj == nil {
		return nil
	}
	raw, err := obj.Value.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, res)
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return p.WaitLoad()
}

func (d *rodDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *rodDriver) Title(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (d *rodDriver) Maximize(ctx context.Context) error {
	return d.page.Context(ctx).SetWindow(&proto.BrowserBounds{WindowState: proto.BrowserWindowStateMaximized})
}

func (d *rodDriver) Evaluate(ctx context.Context, script string, res any) error {
	obj, err := d.page.Context(ctx).Eval("function() {\n" + script + "\n}")
	if err != nil {
		return classifyRod(script, err)
	}
	return decode(obj, res)
}

func (d *rodDriver) Find(ctx context.Context, q query.Query) ([]Element, error) {
	p := d.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if q.Kind() == query.KindXPath {
		els, err = p.ElementsX(q.Expression())
	} else {
		els, err = p.Elements(q.Expression())
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q, classifyRod(q.Expression(), err))
	}
	return d.wrap(els), nil
}

func (d *rodDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (d *rodDriver) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.browser.Close()
		d.launcher.Kill()
		d.launcher.Cleanup()
		d.logger.Debug("Browser closed.")
	})
	return d.closeErr
}

func (d *rodDriver) wrap(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, newRodElement(d, el))
	}
	return out
}

type rodElement struct {
	scriptReads
	d  *rodDriver
	el *rod.Element
}

func newRodElement(d *rodDriver, el *rod.Element) *rodElement {
	e := &rodElement{d: d, el: el}
	e.scriptReads = scriptReads{call: e.Call}
	return e
}

func (e *rodElement) ID() string {
	return "rod-object-" + string(e.el.Object.ObjectID)
}

func (e *rodElement) Call(ctx context.Context, fn string, res any, args ...any) error {
	obj, err := e.el.Context(ctx).Eval(fn, args...)
	if err != nil {
		return classifyRod(fn, err)
	}
	return decode(obj, res)
}

func (e *rodElement) Descendants(ctx context.Context, css string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(css)
	if err != nil {
		return nil, classifyRod(css, err)
	}
	return e.d.wrap(els), nil
}

// point scrolls the element into view and returns where a pointer would hit
// it. A covered element fails at once instead of being waited on.
func (e *rodElement) point(ctx context.Context) (proto.Point, error) {
	el := e.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		return proto.Point{}, classifyRod("scroll", err)
	}
	if err := e.checkHit(ctx); err != nil {
		return proto.Point{}, err
	}
	pt, err := el.Interactable()
	if err != nil {
		return proto.Point{}, classifyRod("interactable", err)
	}
	return *pt, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	pt, err := e.point(ctx)
	if err != nil {
		return err
	}
	enabled, err := e.Enabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return fmt.Errorf("click %s: element is disabled", e.ID())
	}
	mouse := e.d.page.Mouse
	if err := mouse.MoveTo(pt); err != nil {
		return classifyRod("click", err)
	}
	return classifyRod("click", mouse.Click(proto.InputMouseButtonLeft, 1))
}

func (e *rodElement) Hover(ctx context.Context) error {
	pt, err := e.point(ctx)
	if err != nil {
		return err
	}
	return classifyRod("hover", e.d.page.Mouse.MoveTo(pt))
}
