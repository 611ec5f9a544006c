// Package drivertest provides an in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Assign copies v into res the way a backend decodes a script result.
func Assign(res any, v any) error {
	if res == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, res)
}

// Page is a fake driver.Driver. Queries are answered from elements registered
// with Set, keyed by their expression, unless FindFunc is set.
type Page struct {
	mu sync.Mutex

	URL       string
	TitleText string

	// FindFunc overrides the registered elements when set.
	FindFunc      func(q query.Query) ([]driver.Element, error)
	EvaluateFunc  func(script string, res any) error
	NavigateFunc  func(url string) error
	MaximizeErr   error
	ScreenshotPNG []byte
	ScreenshotErr error

	elements    map[string][]*Element
	finds       map[string]int
	navigations []string
	scripts     []string
	maximized   int
	closed      bool
}

var _ driver.Driver = (*Page)(nil)

// NewPage returns an empty page at about:blank.
func NewPage() *Page {
	return &Page{
		URL:      "about:blank",
		elements: make(map[string][]*Element),
		finds:    make(map[string]int),
	}
}

// Set registers the elements returned for q, replacing earlier ones.
func (p *Page) Set(q query.Query, els ...*Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[q.Expression()] = els
}

// Clear drops the elements registered for q.
func (p *Page) Clear(q query.Query) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, q.Expression())
}

// Finds reports how often q was looked up.
func (p *Page) Finds(q query.Query) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finds[q.Expression()]
}

// Navigations lists every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Scripts lists every script passed to Evaluate.
func (p *Page) Scripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scripts...)
}

// Maximized reports how often Maximize was called.
func (p *Page) Maximized() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maximized
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	fn := p.NavigateFunc
	p.mu.Unlock()
	if fn != nil {
		if err := fn(url); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.URL = url
	p.mu.Unlock()
	return nil
}

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.URL, nil
}

// SetURL changes the current URL, as a click that navigates would.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.URL = u
}

func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TitleText, nil
}

func (p *Page) Maximize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maximized++
	return p.MaximizeErr
}

// Evaluate records script. Without EvaluateFunc it answers document.readyState
// style queries with "complete" and leaves res untouched otherwise.
func (p *Page) Evaluate(ctx context.Context, script string, res any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.scripts = append(p.scripts, script)
	fn := p.EvaluateFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(script, res)
	}
	if s, ok := res.(*string); ok {
		*s = "complete"
	}
	return nil
}

func (p *Page) Find(ctx context.Context, q query.Query) ([]driver.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.finds[q.Expression()]++
	fn := p.FindFunc
	els := append([]*Element(nil), p.elements[q.Expression()]...)
	p.mu.Unlock()

	if fn != nil {
		return fn(q)
	}
	out := make([]driver.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	if p.ScreenshotPNG != nil {
		return p.ScreenshotPNG, nil
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Element is a fake driver.Element. The zero value is a visible, enabled
// element with a 10x10 box.
type Element struct {
	mu sync.Mutex

	Name      string
	TextValue string
	Attrs     map[string]string
	Styles    map[string]string
	Box       *driver.Size
	Hidden    bool
	Disabled  bool
	Stale     bool
	Children  map[string][]*Element

	ClickErr error
	HoverErr error
	// CallFunc answers Call; without it Call succeeds and leaves res untouched.
	CallFunc func(fn string, res any, args ...any) error
	// OnClick runs after every successful native click.
	OnClick func()

	clicks int
	hovers int
	calls  []string
}

var _ driver.Element = (*Element)(nil)

// NewElement returns a visible element with the given text.
func NewElement(name, text string) *Element {
	return &Element{Name: name, TextValue: text}
}

// WithAttr sets an attribute and returns e.
func (e *Element) WithAttr(name, value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[name] = value
	return e
}

// WithStyle sets a computed style and returns e.
func (e *Element) WithStyle(property, value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Styles == nil {
		e.Styles = make(map[string]string)
	}
	e.Styles[property] = value
	return e
}

// WithChildren registers the descendants returned for css and returns e.
func (e *Element) WithChildren(css string, children ...*Element) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Children == nil {
		e.Children = make(map[string][]*Element)
	}
	e.Children[css] = children
	return e
}

// SetHidden toggles visibility.
func (e *Element) SetHidden(hidden bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Hidden = hidden
}

// SetStale detaches the element from the document.
func (e *Element) SetStale(stale bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Stale = stale
}

// SetText changes the rendered text.
func (e *Element) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TextValue = text
}

// Clicks reports native clicks.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Hovers reports hovers.
func (e *Element) Hovers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hovers
}

// Calls lists the functions passed to Call.
func (e *Element) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *Element) stale() error {
	if e.Stale {
		return fmt.Errorf("%w: %s", driver.ErrStaleReference, e.Name)
	}
	return nil
}

func (e *Element) ID() string { return "fake-" + e.Name }

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return "", false, err
	}
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return "", err
	}
	return e.TextValue, nil
}

func (e *Element) Style(ctx context.Context, property string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return "", err
	}
	return e.Styles[property], nil
}

func (e *Element) Size(ctx context.Context) (driver.Size, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return driver.Size{}, err
	}
	if e.Box != nil {
		return *e.Box, nil
	}
	return driver.Size{Width: 10, Height: 10}, nil
}

func (e *Element) Displayed(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return false, err
	}
	return !e.Hidden, nil
}

func (e *Element) Enabled(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return false, err
	}
	return !e.Disabled, nil
}

func (e *Element) Descendants(ctx context.Context, css string) ([]driver.Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return nil, err
	}
	children := e.Children[css]
	out := make([]driver.Element, len(children))
	for i, c := range children {
		out[i] = c
	}
	return out, nil
}

func (e *Element) Call(ctx context.Context, fn string, res any, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	if err := e.stale(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.calls = append(e.calls, fn)
	call := e.CallFunc
	e.mu.Unlock()
	if call != nil {
		return call(fn, res, args...)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	if err := e.stale(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.ClickErr != nil {
		err := e.ClickErr
		e.mu.Unlock()
		return err
	}
	e.clicks++
	onClick := e.OnClick
	e.mu.Unlock()
	if onClick != nil {
		onClick()
	}
	return nil
}

func (e *Element) Hover(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return err
	}
	if e.HoverErr != nil {
		return e.HoverErr
	}
	e.hovers++
	return nil
}
