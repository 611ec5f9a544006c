// Package action performs interactions on resolved elements.
//
// Actions never wait for the page to become ready afterwards; callers that
// change page content follow up with session.PageReady themselves.
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/config"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

// Outcome classifies how an action went.
type Outcome int

const (
	Success Outcome = iota
	// Degraded means the action succeeded through its scripted fallback.
	Degraded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes one action. Err is set only when Outcome is Failed.
type Result struct {
	Action  string
	Outcome Outcome
	Err     error
}

// ErrOptionNotFound is the sentinel matched by every *OptionNotFoundError.
var ErrOptionNotFound = errors.New("option not found")

// OptionNotFoundError reports a selection control without the requested text.
type OptionNotFoundError struct {
	Text      string
	Available []string
}

func (e *OptionNotFoundError) Error() string {
	return fmt.Sprintf("option %q not found (available: %s)", e.Text, strings.Join(e.Available, ", "))
}

func (e *OptionNotFoundError) Is(target error) bool { return target == ErrOptionNotFound }

const (
	scrollIntoViewScript = `function() {
	this.scrollIntoView({block: "center", inline: "nearest"});
	return true;
}`

	scriptedClickScript = `function() {
	this.click();
	return true;
}`

	scriptedHoverScript = `function() {
	for (const type of ["mouseover", "mouseenter"]) {
		this.dispatchEvent(new MouseEvent(type, {bubbles: type === "mouseover", view: window}));
	}
	return true;
}`

	selectByTextScript = `function(text) {
	if (!this.options) {
		throw new Error("element is not a selection control");
	}
	const want = text.trim();
	const available = [];
	for (let i = 0; i < this.options.length; i++) {
		const label = this.options[i].text.trim();
		available.push(label);
		if (label === want) {
			this.selectedIndex = i;
			this.dispatchEvent(new Event("input", {bubbles: true}));
			this.dispatchEvent(new Event("change", {bubbles: true}));
			return {found: true, available: available};
		}
	}
	return {found: false, available: available};
}`

	fillScript = `function(value) {
	this.focus();
	this.value = value;
	this.dispatchEvent(new Event("input", {bubbles: true}));
	this.dispatchEvent(new Event("change", {bubbles: true}));
	return true;
}`
)

// Executor runs actions and counts how many fell back to scripts.
type Executor struct {
	hoverSettle time.Duration
	logger      *zap.Logger
	degraded    atomic.Int64
}

// NewExecutor returns an executor whose hover settle comes from cfg, capped
// at config.MaxHoverSettle.
func NewExecutor(cfg config.WaitConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	settle := cfg.HoverSettle
	if settle > config.MaxHoverSettle {
		settle = config.MaxHoverSettle
	}
	if settle < 0 {
		settle = 0
	}
	return &Executor{hoverSettle: settle, logger: logger.Named("action")}
}

// Degraded reports how many actions used their fallback path.
func (x *Executor) Degraded() int64 { return x.degraded.Load() }

func (x *Executor) failed(action string, err error) (Result, error) {
	return Result{Action: action, Outcome: Failed, Err: err}, err
}

func (x *Executor) degrade(action string, el driver.Element, cause error) Result {
	x.degraded.Add(1)
	x.logger.Warn("Primary interaction failed, used scripted fallback.",
		zap.String("action", action),
		zap.String("element", el.ID()),
		zap.NamedError("cause", cause))
	return Result{Action: action, Outcome: Degraded}
}

// ScrollIntoView centres el in the viewport.
func (x *Executor) ScrollIntoView(ctx context.Context, el driver.Element) (Result, error) {
	if err := el.Call(ctx, scrollIntoViewScript, nil); err != nil {
		return x.failed("scroll", fmt.Errorf("scroll %s into view: %w", el.ID(), err))
	}
	return Result{Action: "scroll", Outcome: Success}, nil
}

// Click scrolls el into view and clicks it natively. When the native click is
// intercepted or fails for any reason other than a stale handle, a scripted
// click is dispatched on the node and the result is Degraded.
func (x *Executor) Click(ctx context.Context, el driver.Element) (Result, error) {
	if _, err := x.ScrollIntoView(ctx, el); err != nil {
		if errors.Is(err, driver.ErrStaleReference) || ctx.Err() != nil {
			return x.failed("click", err)
		}
		x.logger.Debug("Scroll before click failed.", zap.String("element", el.ID()), zap.Error(err))
	}

	err := el.Click(ctx)
	if err == nil {
		return Result{Action: "click", Outcome: Success}, nil
	}
	if errors.Is(err, driver.ErrStaleReference) {
		return x.failed("click", fmt.Errorf("click %s: %w", el.ID(), err))
	}
	if ctx.Err() != nil {
		return x.failed("click", ctx.Err())
	}

	if ferr := el.Call(ctx, scriptedClickScript, nil); ferr != nil {
		return x.failed("click", fmt.Errorf("scripted click fallback on %s after %v: %w", el.ID(), err, ferr))
	}
	return x.degrade("click", el, err), nil
}

// Hover moves the pointer to el and then waits the configured settle delay so
// hover transitions can apply. Transitions expose no completion signal, so the
// fixed delay is deliberate.
func (x *Executor) Hover(ctx context.Context, el driver.Element) (Result, error) {
	res := Result{Action: "hover", Outcome: Success}
	if err := el.Hover(ctx); err != nil {
		if errors.Is(err, driver.ErrStaleReference) || ctx.Err() != nil {
			return x.failed("hover", fmt.Errorf("hover %s: %w", el.ID(), err))
		}
		if ferr := el.Call(ctx, scriptedHoverScript, nil); ferr != nil {
			return x.failed("hover", fmt.Errorf("scripted hover fallback on %s after %v: %w", el.ID(), err, ferr))
		}
		res = x.degrade("hover", el, err)
	}
	if err := wait.Settle(ctx, x.hoverSettle); err != nil {
		return x.failed("hover", err)
	}
	return res, nil
}

type selectResult struct {
	Found     bool     `json:"found"`
	Available []string `json:"available"`
}

// SelectOption picks the option of a select control whose visible text
// matches text, ignoring surrounding whitespace.
func (x *Executor) SelectOption(ctx context.Context, el driver.Element, text string) (Result, error) {
	var res selectResult
	if err := el.Call(ctx, selectByTextScript, &res, text); err != nil {
		return x.failed("select", fmt.Errorf("select %q on %s: %w", text, el.ID(), err))
	}
	if !res.Found {
		return x.failed("select", &OptionNotFoundError{Text: text, Available: res.Available})
	}
	return Result{Action: "select", Outcome: Success}, nil
}

// Fill replaces the value of an input and fires input and change events.
func (x *Executor) Fill(ctx context.Context, el driver.Element, value string) (Result, error) {
	if err := el.Call(ctx, fillScript, nil, value); err != nil {
		return x.failed("fill", fmt.Errorf("fill %s: %w", el.ID(), err))
	}
	return Result{Action: "fill", Outcome: Success}, nil
}

// ReadStyle returns the computed value of property on el.
func (x *Executor) ReadStyle(ctx context.Context, el driver.Element, property string) (string, error) {
	v, err := el.Style(ctx, property)
	if err != nil {
		return "", fmt.Errorf("read %s of %s: %w", property, el.ID(), err)
	}
	return v, nil
}

// ReadStyles reads several computed properties at once.
func (x *Executor) ReadStyles(ctx context.Context, el driver.Element, properties ...string) (map[string]string, error) {
	out := make(map[string]string, len(properties))
	for _, p := range properties {
		v, err := x.ReadStyle(ctx, el, p)
		if err != nil {
			return nil, err
		}
		out[p] = v
	}
	return out, nil
}
