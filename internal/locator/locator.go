// Package locator resolves "the element I mean" from an ordered chain of
// alternative queries.
//
// Chain order is priority: the first candidate that satisfies the required
// state wins even when a later candidate would be a stricter match, and later
// candidates are never evaluated once one has won.
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

// ErrElementNotFound is the sentinel matched by every *NotFoundError.
var ErrElementNotFound = errors.New("element not found")

// NotFoundError reports an exhausted chain with the context a step failure needs.
type NotFoundError struct {
	Chain   query.Chain
	State   wait.State
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("element not found: no candidate became %s within %s (elapsed %s): %s",
		e.State, e.Timeout, e.Elapsed.Round(time.Millisecond), e.Chain)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrElementNotFound }

// Option adjusts a single resolution.
type Option func(*options)

type options struct {
	accept func(ctx context.Context, el driver.Element) (bool, error)
}

// Accept restricts matches to elements fn approves, e.g. links whose href
// carries a category fragment.
func Accept(fn func(ctx context.Context, el driver.Element) (bool, error)) Option {
	return func(o *options) { o.accept = fn }
}

// Resolver walks chains through the wait engine.
type Resolver struct {
	waits  *wait.Engine
	doc    wait.Document
	logger *zap.Logger
}

// NewResolver returns a resolver probing doc through waits.
func NewResolver(waits *wait.Engine, doc wait.Document, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{waits: waits, doc: doc, logger: logger.Named("locator")}
}

// budget splits what is left of the chain's timeout between the remaining
// candidates. The last candidate gets everything left and nobody gets less
// than one poll.
func budget(remaining time.Duration, left int, poll time.Duration) time.Duration {
	b := remaining
	if left > 1 {
		b = remaining / time.Duration(left)
	}
	if b < poll {
		b = poll
	}
	return b
}

// Resolve returns the first element of the first candidate that reaches state
// within timeout. Zero timeout takes the engine default. The chain shares the
// one budget, so an exhausted chain fails after roughly timeout.
func (r *Resolver) Resolve(ctx context.Context, chain query.Chain, state wait.State, timeout time.Duration, opts ...Option) (driver.Element, error) {
	el, _, err := r.resolve(ctx, chain, state, timeout, opts)
	return el, err
}

// All is Resolve for lists: it returns every current match of the winning
// candidate that satisfies state. Only Present, Visible and Clickable
// describe a list.
func (r *Resolver) All(ctx context.Context, chain query.Chain, state wait.State, timeout time.Duration, opts ...Option) ([]driver.Element, error) {
	switch state.Kind {
	case wait.KindPresent, wait.KindVisible, wait.KindClickable:
	default:
		return nil, fmt.Errorf("list %s: cannot list elements that are %s", chain, state)
	}
	_, winner, err := r.resolve(ctx, chain, state, timeout, opts)
	if err != nil {
		return nil, err
	}
	els, err := r.doc.Find(ctx, winner)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", winner, err)
	}
	o := collect(opts)
	if state == wait.Present && o.accept == nil {
		return els, nil
	}
	spec := wait.Spec{State: state, Accept: o.accept}
	out := make([]driver.Element, 0, len(els))
	for _, el := range els {
		ok, err := wait.Satisfies(ctx, el, spec)
		if errors.Is(err, driver.ErrStaleReference) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, el)
		}
	}
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, chain query.Chain, state wait.State, timeout time.Duration, opts []Option) (driver.Element, query.Query, error) {
	if len(chain) == 0 {
		return nil, nil, query.ErrEmptyChain
	}
	cfg := r.waits.Config()
	if timeout <= 0 {
		timeout = cfg.Timeout
	}
	o := collect(opts)

	start := time.Now()
	deadline := start.Add(timeout)
	for i, q := range chain {
		slot := budget(time.Until(deadline), len(chain)-i, cfg.PollInterval)
		res, err := r.waits.Await(ctx, wait.Spec{
			State:   state,
			Target:  q,
			Timeout: slot,
			Mode:    wait.Probe,
			Accept:  o.accept,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("resolving candidate %d %s: %w", i+1, q, err)
		}
		if res.OK {
			r.logger.Debug("Resolved.",
				zap.Stringer("query", q),
				zap.Int("candidate", i+1),
				zap.Stringer("state", state),
				zap.Duration("elapsed", time.Since(start)))
			return res.Element, q, nil
		}
	}

	return nil, nil, &NotFoundError{
		Chain:   chain,
		State:   state,
		Timeout: timeout,
		Elapsed: time.Since(start),
	}
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
