package driver

import (
	"context"
	"fmt"
)

// Page-side function declarations. Each runs with this bound to the element.
const (
	textScript = `function() {
	return (this.innerText || this.textContent || "").trim();
}`

	attributeScript = `function(name) {
	const prop = this[name];
	if (prop !== undefined && prop !== null && typeof prop !== "object" && typeof prop !== "function") {
		return {found: true, value: String(prop)};
	}
	if (this.hasAttribute && this.hasAttribute(name)) {
		return {found: true, value: this.getAttribute(name)};
	}
	return {found: false, value: ""};
}`

	styleScript = `function(property) {
	return window.getComputedStyle(this).getPropertyValue(property);
}`

	sizeScript = `function() {
	const r = this.getBoundingClientRect();
	return {width: r.width, height: r.height};
}`

	displayedScript = `function() {
	if (!this.isConnected) {
		return false;
	}
	const s = window.getComputedStyle(this);
	if (s.display === "none" || s.visibility === "hidden" || s.visibility === "collapse" || parseFloat(s.opacity) === 0) {
		return false;
	}
	const r = this.getBoundingClientRect();
	return r.width > 0 && r.height > 0;
}`

	enabledScript = `function() {
	return !this.disabled;
}`

	// hitTestScript returns "" when a click at the element's centre lands on the
	// element or its subtree, otherwise a short description of what is on top.
	hitTestScript = `function() {
	const r = this.getBoundingClientRect();
	const top = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
	if (!top || top === this || this.contains(top)) {
		return "";
	}
	let desc = top.tagName.toLowerCase();
	if (top.id) {
		desc += "#" + top.id;
	}
	if (typeof top.className === "string" && top.className.trim() !== "") {
		desc += "." + top.className.trim().split(/\s+/).join(".");
	}
	return desc;
}`

	centerScript = `function() {
	const r = this.getBoundingClientRect();
	return {x: r.left + r.width / 2, y: r.top + r.height / 2};
}`
)

type attributeResult struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// callFunc is a backend's element Call.
type callFunc func(ctx context.Context, fn string, res any, args ...any) error

// scriptReads implements the read side of Element in terms of Call, so both
// backends answer them identically.
type scriptReads struct {
	call callFunc
}

func (s scriptReads) Attribute(ctx context.Context, name string) (string, bool, error) {
	var res attributeResult
	if err := s.call(ctx, attributeScript, &res, name); err != nil {
		return "", false, err
	}
	return res.Value, res.Found, nil
}

func (s scriptReads) Text(ctx context.Context) (string, error) {
	var text string
	err := s.call(ctx, textScript, &text)
	return text, err
}

func (s scriptReads) Style(ctx context.Context, property string) (string, error) {
	var value string
	err := s.call(ctx, styleScript, &value, property)
	return value, err
}

func (s scriptReads) Size(ctx context.Context) (Size, error) {
	var size Size
	err := s.call(ctx, sizeScript, &size)
	return size, err
}

func (s scriptReads) Displayed(ctx context.Context) (bool, error) {
	var ok bool
	err := s.call(ctx, displayedScript, &ok)
	return ok, err
}

func (s scriptReads) Enabled(ctx context.Context) (bool, error) {
	var ok bool
	err := s.call(ctx, enabledScript, &ok)
	return ok, err
}

// checkHit fails with ErrClickIntercepted when something covers the element's centre.
func (s scriptReads) checkHit(ctx context.Context) error {
	var top string
	if err := s.call(ctx, hitTestScript, &top); err != nil {
		return err
	}
	if top != "" {
		return fmt.Errorf("%w: would land on %s", ErrClickIntercepted, top)
	}
	return nil
}

func (s scriptReads) center(ctx context.Context) (point, error) {
	var p point
	err := s.call(ctx, centerScript, &p)
	return p, err
}
