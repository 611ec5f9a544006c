// Package query describes how to find elements in a document.
//
// A Query is a closed variant: a CSS selector, a structural Predicate over tag,
// attributes and text, or an Ancestor compound that climbs from the nodes matched
// by another query. Predicates and compounds compile to XPath; drivers only ever
// see one of the two Kinds.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the query language a driver must evaluate.
type Kind int

const (
	KindCSS Kind = iota
	KindXPath
)

func (k Kind) String() string {
	switch k {
	case KindCSS:
		return "css"
	case KindXPath:
		return "xpath"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Query is an immutable element descriptor.
type Query interface {
	Kind() Kind
	// Expression is the selector or XPath handed to the driver.
	Expression() string
	String() string
	sealed()
}

// CSS matches elements by CSS selector.
type CSS string

func (c CSS) Kind() Kind         { return KindCSS }
func (c CSS) Expression() string { return string(c) }
func (c CSS) String() string     { return "css(" + string(c) + ")" }
func (CSS) sealed()              {}

// Predicate matches elements by tag and conditions on their attributes and text.
type Predicate struct {
	// Tag restricts the element name; empty means any element.
	Tag string
	// Within scopes the match to descendants of the elements Within matches.
	Within *Predicate
	// Where conditions are joined with "and".
	Where []Cond
	// Nth picks the n-th match in document order (1-based). Zero keeps all matches.
	Nth int
}

func (p Predicate) Kind() Kind         { return KindXPath }
func (p Predicate) Expression() string { return p.xpath() }
func (p Predicate) String() string     { return "xpath(" + p.xpath() + ")" }
func (Predicate) sealed()              {}

func (p Predicate) step() string {
	tag := p.Tag
	if tag == "" {
		tag = "*"
	}
	if len(p.Where) == 0 {
		return tag
	}
	conds := make([]string, len(p.Where))
	for i, c := range p.Where {
		conds[i] = c.xpath()
	}
	return tag + "[" + strings.Join(conds, " and ") + "]"
}

func (p Predicate) path() string {
	if p.Within != nil {
		return p.Within.path() + "//" + p.step()
	}
	return "//" + p.step()
}

func (p Predicate) xpath() string {
	if p.Nth > 0 {
		return fmt.Sprintf("(%s)[%d]", p.path(), p.Nth)
	}
	return p.path()
}

// Axis selects how an Ancestor climbs from its inner query.
type Axis int

const (
	// AxisAncestor matches any enclosing element.
	AxisAncestor Axis = iota
	// AxisParent matches only the direct parent.
	AxisParent
)

// Ancestor matches the enclosing elements of the nodes matched by Of.
type Ancestor struct {
	Of   Query
	Tag  string
	Axis Axis
	// Nearest keeps only the closest matching ancestor of each node.
	Nearest bool
}

func (a Ancestor) Kind() Kind         { return KindXPath }
func (a Ancestor) Expression() string { return a.xpath() }
func (a Ancestor) String() string     { return "xpath(" + a.xpath() + ")" }
func (Ancestor) sealed()              {}

func (a Ancestor) xpath() string {
	tag := a.Tag
	if tag == "" {
		tag = "*"
	}
	axis := "ancestor::"
	if a.Axis == AxisParent {
		axis = "parent::"
	}
	step := axis + tag
	if a.Nearest && a.Axis == AxisAncestor {
		step += "[1]"
	}
	inner := ""
	if a.Of != nil {
		inner = a.Of.Expression()
	}
	return inner + "/" + step
}

// ErrEmptyChain is returned when a chain is built without candidates.
var ErrEmptyChain = errors.New("query: locator chain must not be empty")

// ErrUnsupported is returned for Ancestor compounds built over a CSS query.
var ErrUnsupported = errors.New("query: unsupported query")

// Chain is an ordered list of alternative queries; earlier entries have priority.
type Chain []Query

// NewChain validates and returns a chain over qs.
func NewChain(qs ...Query) (Chain, error) {
	if len(qs) == 0 {
		return nil, ErrEmptyChain
	}
	for i, q := range qs {
		if err := Validate(q); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i+1, err)
		}
	}
	return Chain(append([]Query(nil), qs...)), nil
}

// MustChain is like NewChain but panics. Meant for package level chains.
func MustChain(qs ...Query) Chain {
	c, err := NewChain(qs...)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders the chain for diagnostics, e.g. "css(.a) | xpath(//b)".
func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, q := range c {
		parts[i] = q.String()
	}
	return strings.Join(parts, " | ")
}

// Validate reports whether q can be handed to a driver.
func Validate(q Query) error {
	switch v := q.(type) {
	case nil:
		return fmt.Errorf("%w: nil query", ErrUnsupported)
	case CSS:
		if strings.TrimSpace(string(v)) == "" {
			return fmt.Errorf("%w: empty selector", ErrUnsupported)
		}
	case Predicate:
	case Ancestor:
		if v.Of == nil {
			return fmt.Errorf("%w: ancestor without inner query", ErrUnsupported)
		}
		if v.Of.Kind() != KindXPath {
			return fmt.Errorf("%w: ancestor of %s", ErrUnsupported, v.Of)
		}
		return Validate(v.Of)
	}
	return nil
}
