package query

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const storefrontFixture = `<!DOCTYPE html>
<html><body>
<nav id="nav">
  <ol class="nav-primary">
    <li><a class="level-top" href="https://shop.test/women.html">WOMEN</a>
      <ul><li><a href="https://shop.test/women.html">View All Women</a></li></ul></li>
    <li><a class="level-top" href="https://shop.test/men.html">MEN</a>
      <ul><li><a href="https://shop.test/men.html">View All Men</a></li></ul></li>
    <li><a class="level-top" href="https://shop.test/sale.html"><span>SALE</span></a></li>
  </ol>
</nav>
<dl id="narrow-by-list">
  <dd><a class="swatch-link has-image" href="?color=20"><img alt="Black" src="b.png"/></a></dd>
  <dd><a class="swatch-link has-image" href="?color=21"><img alt="Blue" src="u.png"/></a></dd>
  <dd><a href="?price=-100">$0.00 - $99.99</a><a href="?price=100-200">$100.00 - $199.99</a></dd>
</dl>
<table class="wishlist"><tbody>
  <tr class="odd"><td><button title="Add to Cart" class="btn-cart">Add to Cart</button></td></tr>
  <tr class="even"><td><button class="btn-cart"><span>Add to Cart</span></button></td></tr>
</tbody></table>
<p id="quote">It's "quoted"</p>
</body></html>`

func parseFixture(t *testing.T) *html.Node {
	t.Helper()
	doc, err := htmlquery.Parse(strings.NewReader(storefrontFixture))
	require.NoError(t, err)
	return doc
}

func find(t *testing.T, doc *html.Node, q Query) []*html.Node {
	t.Helper()
	require.Equal(t, KindXPath, q.Kind(), "only xpath queries can be evaluated here")
	nodes, err := htmlquery.QueryAll(doc, q.Expression())
	require.NoError(t, err, "expression must compile: %s", q.Expression())
	return nodes
}

func TestPredicateExpressions(t *testing.T) {
	tests := []struct {
		name string
		q    Predicate
		want string
	}{
		{
			name: "menu link inside nav",
			q:    Predicate{Tag: "a", Within: &Predicate{Tag: "nav"}, Where: []Cond{TextContains("MEN")}},
			want: "//nav//a[contains(text(),'MEN')]",
		},
		{
			name: "class and text",
			q:    Predicate{Tag: "a", Where: []Cond{AttrContains("class", "level-top"), TextContains("SALE")}},
			want: "//a[contains(@class,'level-top') and contains(text(),'SALE')]",
		},
		{
			name: "href excluding women",
			q:    Predicate{Tag: "a", Where: []Cond{AttrContains("href", "/men.html"), Not(AttrContains("href", "women"))}},
			want: "//a[contains(@href,'/men.html') and not(contains(@href,'women'))]",
		},
		{
			name: "first price link",
			q:    Predicate{Tag: "a", Where: []Cond{AttrContains("href", "price=")}, Nth: 1},
			want: "(//a[contains(@href,'price=')])[1]",
		},
		{
			name: "any element",
			q:    Predicate{},
			want: "//*",
		},
		{
			name: "either condition",
			q:    Predicate{Tag: "button", Where: []Cond{AnyOf(ContentContains("Add to Cart"), AttrContains("title", "Add to Cart"))}},
			want: "//button[(contains(.,'Add to Cart') or contains(@title,'Add to Cart'))]",
		},
		{
			name: "case folded attribute",
			q:    Predicate{Tag: "img", Where: []Cond{AttrContainsFold("alt", "black")}},
			want: "//img[contains(translate(@alt,'BLACK','black'),'black')]",
		},
		{
			name: "exact text",
			q:    Predicate{Tag: "a", Where: []Cond{AnyOf(TextEquals("View All Men"), TextEquals("View All"))}},
			want: "//a[(text()='View All Men' or text()='View All')]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.Expression())
			assert.Equal(t, "xpath("+tt.want+")", tt.q.String())
		})
	}
}

func TestQueriesAgainstFixture(t *testing.T) {
	doc := parseFixture(t)

	t.Run("menu text matches both MEN and WOMEN", func(t *testing.T) {
		nodes := find(t, doc, Predicate{Tag: "a", Within: &Predicate{Tag: "nav"}, Where: []Cond{TextContains("MEN")}})
		assert.Len(t, nodes, 2)
	})

	t.Run("href exclusion isolates men", func(t *testing.T) {
		nodes := find(t, doc, Predicate{Tag: "a", Where: []Cond{AttrContains("href", "/men.html"), Not(AttrContains("href", "women"))}})
		require.Len(t, nodes, 2)
		for _, n := range nodes {
			assert.NotContains(t, htmlquery.SelectAttr(n, "href"), "women")
		}
	})

	t.Run("empty any-of matches nothing", func(t *testing.T) {
		q := Predicate{Tag: "a", Where: []Cond{AnyOf()}}
		assert.Equal(t, "//a[false()]", q.Expression())
		assert.Empty(t, find(t, doc, q))

		nodes := find(t, doc, Predicate{Tag: "a", Where: []Cond{AnyOf(AnyOf(), TextContains("SALE"))}})
		assert.Empty(t, nodes, "the sale anchor holds its text in a span")
		nodes = find(t, doc, Predicate{Tag: "span", Where: []Cond{AnyOf(AnyOf(), TextContains("SALE"))}})
		assert.Len(t, nodes, 1)
	})

	t.Run("span parent", func(t *testing.T) {
		q := Ancestor{Of: Predicate{Tag: "span", Where: []Cond{TextContains("SALE")}}, Tag: "a", Axis: AxisParent}
		assert.Equal(t, "//span[contains(text(),'SALE')]/parent::a", q.Expression())
		nodes := find(t, doc, q)
		require.Len(t, nodes, 1)
		assert.Equal(t, "https://shop.test/sale.html", htmlquery.SelectAttr(nodes[0], "href"))
	})

	t.Run("black swatch compound", func(t *testing.T) {
		q := Ancestor{
			Of: Predicate{
				Tag:    "img",
				Within: &Predicate{Tag: "a", Where: []Cond{AttrEquals("class", "swatch-link has-image")}},
				Where:  []Cond{AttrContainsFold("alt", "black")},
			},
			Tag: "a",
		}
		assert.Equal(t, "//a[@class='swatch-link has-image']//img[contains(translate(@alt,'BLACK','black'),'black')]/ancestor::a", q.Expression())
		nodes := find(t, doc, q)
		require.Len(t, nodes, 1)
		assert.Equal(t, "?color=20", htmlquery.SelectAttr(nodes[0], "href"))
	})

	t.Run("first price link", func(t *testing.T) {
		nodes := find(t, doc, Predicate{Tag: "a", Where: []Cond{AttrContains("href", "price=")}, Nth: 1})
		require.Len(t, nodes, 1)
		assert.Equal(t, "$0.00 - $99.99", htmlquery.InnerText(nodes[0]))
	})

	t.Run("nearest row holding an add to cart button", func(t *testing.T) {
		q := Ancestor{
			Of:      Predicate{Tag: "button", Where: []Cond{AnyOf(ContentContains("Add to Cart"), AttrContains("title", "Add to Cart"))}},
			Tag:     "tr",
			Nearest: true,
		}
		nodes := find(t, doc, q)
		require.Len(t, nodes, 2)
		assert.Equal(t, "odd", htmlquery.SelectAttr(nodes[0], "class"))
		assert.Equal(t, "even", htmlquery.SelectAttr(nodes[1], "class"))
	})

	t.Run("literal with both quote kinds", func(t *testing.T) {
		nodes := find(t, doc, Predicate{Tag: "p", Where: []Cond{TextContains(`It's "quoted"`)}})
		require.Len(t, nodes, 1)
		assert.Equal(t, "quote", htmlquery.SelectAttr(nodes[0], "id"))
	})
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "'plain'", Literal("plain"))
	assert.Equal(t, `"it's"`, Literal("it's"))
	assert.Equal(t, `'say "hi"'`, Literal(`say "hi"`))
	assert.Equal(t, `concat('a',"'",'b"')`, Literal(`a'b"`))
}

func TestChain(t *testing.T) {
	t.Run("empty chain is rejected", func(t *testing.T) {
		_, err := NewChain()
		assert.ErrorIs(t, err, ErrEmptyChain)
	})

	t.Run("ancestor over css is rejected", func(t *testing.T) {
		_, err := NewChain(CSS(".ok"), Ancestor{Of: CSS(".item"), Tag: "li"})
		require.ErrorIs(t, err, ErrUnsupported)
		assert.Contains(t, err.Error(), "candidate 2")
	})

	t.Run("blank selector is rejected", func(t *testing.T) {
		_, err := NewChain(CSS("  "))
		assert.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("string keeps priority order", func(t *testing.T) {
		c := MustChain(CSS(".a"), Predicate{Tag: "b"})
		assert.Equal(t, "css(.a) | xpath(//b)", c.String())
	})

	t.Run("chain copies its input", func(t *testing.T) {
		qs := []Query{CSS(".a"), CSS(".b")}
		c, err := NewChain(qs...)
		require.NoError(t, err)
		qs[0] = CSS(".changed")
		assert.Equal(t, CSS(".a"), c[0])
	})

	t.Run("must chain panics on empty", func(t *testing.T) {
		assert.Panics(t, func() { MustChain() })
	})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "css", KindCSS.String())
	assert.Equal(t, "xpath", KindXPath.String())
	assert.Equal(t, "kind(7)", Kind(7).String())
}

// fuzzPredicate is the structured input for FuzzPredicateCompiles.
type fuzzPredicate struct {
	Tag        string
	Text       string
	AttrName   string
	AttrValue  string
	Negate     bool
	WithinText string
	Nth        uint8
}

var attrNames = []string{"href", "class", "title", "alt", "id"}

// FuzzPredicateCompiles checks that arbitrary text values always yield XPath
// the evaluator accepts.
func FuzzPredicateCompiles(f *testing.F) {
	f.Add([]byte("seed-menu-text"))
	f.Add([]byte(`it's "both"`))

	doc, err := htmlquery.Parse(strings.NewReader(storefrontFixture))
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		in := fuzzPredicate{}
		if err := consumer.GenerateStruct(&in); err != nil {
			return
		}

		where := []Cond{TextContains(in.Text)}
		attr := AttrContains(attrNames[len(in.AttrName)%len(attrNames)], in.AttrValue)
		if in.Negate {
			attr = Not(attr)
		}
		where = append(where, attr)

		p := Predicate{
			Tag:   []string{"a", "li", "span", ""}[len(in.Tag)%4],
			Where: where,
			Nth:   int(in.Nth % 4),
		}
		if in.WithinText != "" {
			p.Within = &Predicate{Tag: "nav", Where: []Cond{ContentContains(in.WithinText)}}
		}

		if _, err := htmlquery.QueryAll(doc, p.Expression()); err != nil {
			t.Fatalf("expression %q does not compile: %v", p.Expression(), err)
		}
		if _, err := htmlquery.QueryAll(doc, Ancestor{Of: p, Tag: "li", Nearest: true}.Expression()); err != nil {
			t.Fatalf("ancestor of %q does not compile: %v", p.Expression(), err)
		}
	})
}
