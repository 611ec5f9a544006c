package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/config"
)

// Document is the part of a session the engine polls.
type Document interface {
	Find(ctx context.Context, q query.Query) ([]driver.Element, error)
	CurrentURL(ctx context.Context) (string, error)
}

// StateKind enumerates the conditions the engine can wait for.
type StateKind int

const (
	KindPresent StateKind = iota
	KindVisible
	KindClickable
	KindInvisible
	KindURLContains
)

// State is a required condition. URLContains carries its text.
type State struct {
	Kind StateKind
	Text string
}

var (
	// Present holds when the query matches at least one element.
	Present = State{Kind: KindPresent}
	// Visible holds when a match is displayed.
	Visible = State{Kind: KindVisible}
	// Clickable holds when a match is displayed and enabled.
	Clickable = State{Kind: KindClickable}
	// Invisible holds when no match is displayed. Stale matches count as gone.
	Invisible = State{Kind: KindInvisible}
)

// URLContains holds when the current URL contains text.
func URLContains(text string) State {
	return State{Kind: KindURLContains, Text: text}
}

func (s State) String() string {
	switch s.Kind {
	case KindPresent:
		return "present"
	case KindVisible:
		return "visible"
	case KindClickable:
		return "clickable"
	case KindInvisible:
		return "invisible"
	case KindURLContains:
		return fmt.Sprintf("url contains %q", s.Text)
	default:
		return fmt.Sprintf("state(%d)", int(s.Kind))
	}
}

// targetsElement reports whether the state is evaluated against a query.
func (s State) targetsElement() bool { return s.Kind != KindURLContains }

// Mode decides what a timeout means.
type Mode int

const (
	// Hard waits fail with *TimeoutError.
	Hard Mode = iota
	// Probe waits report a timeout as Result{OK: false} with a nil error.
	Probe
)

func (m Mode) String() string {
	if m == Probe {
		return "probe"
	}
	return "hard"
}

// Spec describes one wait. Zero Timeout and PollInterval take the engine's
// defaults for the mode.
type Spec struct {
	State        State
	Target       query.Query
	Timeout      time.Duration
	PollInterval time.Duration
	Mode         Mode
	// Accept, when set, must also hold for an element to satisfy an element
	// state. It is ignored for Invisible and URLContains.
	Accept func(ctx context.Context, el driver.Element) (bool, error)
}

func (s Spec) describe() string {
	if s.Target == nil || !s.State.targetsElement() {
		return s.State.String()
	}
	return s.Target.String() + " to be " + s.State.String()
}

// Result is the outcome of a wait that did not fail.
type Result struct {
	OK bool
	// Element is the satisfying element for Present, Visible and Clickable.
	Element driver.Element
	Polls   int
	Elapsed time.Duration
}

// Engine evaluates Specs against one document.
type Engine struct {
	doc    Document
	cfg    config.WaitConfig
	logger *zap.Logger
}

// NewEngine returns an engine polling doc with the defaults in cfg.
func NewEngine(doc Document, cfg config.WaitConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{doc: doc, cfg: cfg, logger: logger.Named("wait")}
}

// Config returns the engine's defaults.
func (e *Engine) Config() config.WaitConfig { return e.cfg }

// Await polls spec's condition until it holds or its timeout elapses.
func (e *Engine) Await(ctx context.Context, spec Spec) (Result, error) {
	if spec.State.targetsElement() && spec.Target == nil {
		return Result{}, fmt.Errorf("wait: %s requires a target query", spec.State)
	}
	if spec.Timeout <= 0 {
		spec.Timeout = e.cfg.Timeout
		if spec.Mode == Probe {
			spec.Timeout = e.cfg.ProbeTimeout
		}
	}
	if spec.PollInterval <= 0 {
		spec.PollInterval = e.cfg.PollInterval
	}

	var found driver.Element
	start := time.Now()
	polls, err := Until(ctx, spec.describe(), spec.Timeout, spec.PollInterval, func(ctx context.Context) (bool, error) {
		el, ok, err := e.evaluate(ctx, spec)
		if ok {
			found = el
		}
		return ok, err
	})
	res := Result{Element: found, Polls: polls, Elapsed: time.Since(start)}

	if err == nil {
		res.OK = true
		return res, nil
	}
	if spec.Mode == Probe && errors.Is(err, ErrTimeoutExceeded) {
		e.logger.Debug("Probe did not match.",
			zap.String("condition", spec.describe()),
			zap.Duration("elapsed", res.Elapsed),
			zap.Int("polls", polls))
		return res, nil
	}
	return res, err
}

// evaluate checks spec once.
func (e *Engine) evaluate(ctx context.Context, spec Spec) (driver.Element, bool, error) {
	if spec.State.Kind == KindURLContains {
		u, err := e.doc.CurrentURL(ctx)
		if err != nil {
			return nil, false, err
		}
		return nil, strings.Contains(u, spec.State.Text), nil
	}

	els, err := e.doc.Find(ctx, spec.Target)
	if err != nil {
		return nil, false, err
	}

	switch spec.State.Kind {
	case KindPresent, KindVisible, KindClickable:
		var lastStale error
		for _, el := range els {
			ok, err := Satisfies(ctx, el, spec)
			if errors.Is(err, driver.ErrStaleReference) {
				lastStale = err
				continue
			}
			if err != nil {
				return nil, false, err
			}
			if ok {
				return el, true, nil
			}
		}
		return nil, false, lastStale

	case KindInvisible:
		for _, el := range els {
			shown, err := el.Displayed(ctx)
			if errors.Is(err, driver.ErrStaleReference) {
				continue
			}
			if err != nil {
				return nil, false, err
			}
			if shown {
				return nil, false, nil
			}
		}
		return nil, true, nil
	}
	return nil, false, fmt.Errorf("wait: unsupported state %s", spec.State)
}

// Satisfies checks el once against spec's element state and Accept. It is
// meaningful for Present, Visible and Clickable.
func Satisfies(ctx context.Context, el driver.Element, spec Spec) (bool, error) {
	if spec.State.Kind != KindPresent {
		shown, err := el.Displayed(ctx)
		if err != nil || !shown {
			return false, err
		}
	}
	if spec.State.Kind == KindClickable {
		enabled, err := el.Enabled(ctx)
		if err != nil || !enabled {
			return false, err
		}
	}
	if spec.Accept != nil {
		return spec.Accept(ctx, el)
	}
	return true, nil
}
