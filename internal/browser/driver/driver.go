// Package driver is the boundary to the browser automation handle.
//
// Everything above this package talks to a Driver (one page in one browser) and
// to the Elements it returns. Two backends are provided, one built on chromedp
// and one on go-rod; both share the page-side scripts in scripts.go so element
// reads behave the same whichever backend is selected.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
)

// Driver controls a single page.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// Maximize asks the window manager to maximize the window. Callers treat
	// failure as harmless; headless windows often refuse.
	Maximize(ctx context.Context) error
	// Evaluate runs script as the body of a function in the page and decodes
	// its return value into res. res may be nil.
	Evaluate(ctx context.Context, script string, res any) error
	// Find returns every element matching q, or an empty slice. Zero matches is
	// not an error.
	Find(ctx context.Context, q query.Query) ([]Element, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Element is a live reference to a node of the current document. It goes
// stale when the document is replaced; operations on a stale element fail with
// ErrStaleReference.
type Element interface {
	// ID identifies the node for logging.
	ID() string
	// Attribute returns the element's property or attribute named name, and
	// whether either exists.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Text returns the rendered text, trimmed.
	Text(ctx context.Context) (string, error)
	// Style returns the computed value of a CSS property.
	Style(ctx context.Context, property string) (string, error)
	Size(ctx context.Context) (Size, error)
	Displayed(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	// Descendants returns the elements below this one matching a CSS selector.
	Descendants(ctx context.Context, css string) ([]Element, error)
	// Call runs fn, a JavaScript function declaration, with this bound to the
	// element and decodes the result into res. res may be nil.
	Call(ctx context.Context, fn string, res any, args ...any) error
	// Click performs a native pointer click at the element's centre. It fails
	// with ErrClickIntercepted when another element would receive the click.
	Click(ctx context.Context) error
	// Hover moves the pointer to the element's centre.
	Hover(ctx context.Context) error
}

// Size is an element's rendered box in CSS pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

var (
	// ErrStaleReference means the element no longer belongs to the live document.
	ErrStaleReference = errors.New("stale element reference")
	// ErrClickIntercepted means a native click would land on another element.
	ErrClickIntercepted = errors.New("element click intercepted")
	// ErrScriptExecutionFailed is the sentinel matched by every *ScriptError.
	ErrScriptExecutionFailed = errors.New("script execution failed")
)

// ScriptError reports a script that threw inside the page.
type ScriptError struct {
	// Script is the leading part of the failing source.
	Script  string
	Message string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script execution failed: %s (script: %s)", e.Message, e.Script)
}

// Is makes errors.Is(err, ErrScriptExecutionFailed) match.
func (e *ScriptError) Is(target error) bool { return target == ErrScriptExecutionFailed }

// NewScriptError builds a ScriptError, trimming script for readability.
func NewScriptError(script, message string) *ScriptError {
	return &ScriptError{Script: abbreviate(script, 80), Message: message}
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// staleMarkers are protocol error messages that mean the node or its document is gone.
var staleMarkers = []string{
	"no node with given id",
	"could not find node with given id",
	"node with given id does not belong to the document",
	"node is detached from document",
	"cannot find context with specified id",
	"could not find object with given id",
	"cannot find default execution context",
	"execution context was destroyed",
}

// isStaleMessage reports whether a protocol error message describes a vanished node.
func isStaleMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// markStale wraps err with ErrStaleReference when its message says the node is gone.
func markStale(err error) error {
	if err == nil || errors.Is(err, ErrStaleReference) {
		return err
	}
	if isStaleMessage(err.Error()) {
		return fmt.Errorf("%w: %v", ErrStaleReference, err)
	}
	return err
}
