// Package scenario defines the storefront checks and runs them.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xkilldash9x/storefront-cli/internal/storefront"
)

// Scenario is one end to end check against the shop.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, site *storefront.Site) error
}

// AssertionError is a check that did not hold, as opposed to an interaction
// that could not be performed.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string { return "assertion failed: " + e.Message }

// Failf returns an *AssertionError with a formatted message.
func Failf(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// IsAssertion reports whether err is or wraps an *AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

var (
	ErrUnknownScenario   = errors.New("unknown scenario")
	ErrDuplicateScenario = errors.New("scenario already registered")
)

// Registry holds scenarios by name.
type Registry struct {
	mu        sync.RWMutex
	scenarios map[string]Scenario
}

func NewRegistry() *Registry {
	return &Registry{scenarios: make(map[string]Scenario)}
}

// Register adds s. Names must be unique and non-empty.
func (r *Registry) Register(s Scenario) error {
	if s.Name == "" || s.Run == nil {
		return fmt.Errorf("scenario needs a name and a run function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scenarios[s.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateScenario, s.Name)
	}
	r.scenarios[s.Name] = s
	return nil
}

// MustRegister is Register that panics, for package level setup.
func (r *Registry) MustRegister(s Scenario) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(name string) (Scenario, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scenarios[name]
	return s, ok
}

// All returns every scenario sorted by name.
func (r *Registry) All() []Scenario {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scenario, 0, len(r.scenarios))
	for _, s := range r.scenarios {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Select resolves names in order, dropping repeats. No names selects all.
func (r *Registry) Select(names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	var (
		out     []Scenario
		unknown []string
		seen    = make(map[string]bool, len(names))
	)
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		s, ok := r.Get(n)
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, s)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, strings.Join(unknown, ", "))
	}
	return out, nil
}
