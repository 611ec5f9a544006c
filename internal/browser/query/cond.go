package query

import (
	"strings"
)

// Cond is a single XPath predicate condition on the context element.
type Cond interface {
	xpath() string
}

type textContains string
type textEquals string
type contentContains string
type attrContains struct{ name, value string }
type attrEquals struct{ name, value string }
type attrContainsFold struct{ name, value string }
type not struct{ c Cond }
type anyOf []Cond

// TextContains matches elements whose own text node contains s.
func TextContains(s string) Cond { return textContains(s) }

// TextEquals matches elements whose own text node is exactly s.
func TextEquals(s string) Cond { return textEquals(s) }

// ContentContains matches elements whose full string value (descendants included) contains s.
func ContentContains(s string) Cond { return contentContains(s) }

// AttrContains matches elements whose attribute name contains value.
func AttrContains(name, value string) Cond { return attrContains{name, value} }

// AttrEquals matches elements whose attribute name equals value.
func AttrEquals(name, value string) Cond { return attrEquals{name, value} }

// AttrContainsFold is AttrContains ignoring ASCII case of the letters in value.
func AttrContainsFold(name, value string) Cond { return attrContainsFold{name, value} }

// Not negates c.
func Not(c Cond) Cond { return not{c} }

// AnyOf matches when at least one of cs matches. With no conditions it
// matches nothing.
func AnyOf(cs ...Cond) Cond { return anyOf(cs) }

func (c textContains) xpath() string    { return "contains(text()," + Literal(string(c)) + ")" }
func (c textEquals) xpath() string      { return "text()=" + Literal(string(c)) }
func (c contentContains) xpath() string { return "contains(.," + Literal(string(c)) + ")" }
func (c attrContains) xpath() string {
	return "contains(@" + c.name + "," + Literal(c.value) + ")"
}
func (c attrEquals) xpath() string { return "@" + c.name + "=" + Literal(c.value) }

func (c attrContainsFold) xpath() string {
	upper := strings.ToUpper(c.value)
	lower := strings.ToLower(c.value)
	return "contains(translate(@" + c.name + "," + Literal(upper) + "," + Literal(lower) + ")," + Literal(lower) + ")"
}

func (c not) xpath() string { return "not(" + c.c.xpath() + ")" }

func (c anyOf) xpath() string {
	if len(c) == 0 {
		return "false()"
	}
	parts := make([]string, len(c))
	for i, cond := range c {
		parts[i] = cond.xpath()
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

// Literal quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so strings holding both quote kinds are built with concat().
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	out := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			out = append(out, `"'"`)
		}
		if p != "" {
			out = append(out, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(out, ",") + ")"
}
