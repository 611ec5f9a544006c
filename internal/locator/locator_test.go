package locator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/driver/drivertest"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/config"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

const (
	poll    = 20 * time.Millisecond
	timeout = 200 * time.Millisecond
)

func newTestResolver(t *testing.T, page *drivertest.Page) *Resolver {
	t.Helper()
	logger := zaptest.NewLogger(t)
	engine := wait.NewEngine(page, config.WaitConfig{
		Timeout:      timeout,
		ProbeTimeout: 100 * time.Millisecond,
		PollInterval: poll,
	}, logger)
	return NewResolver(engine, page, logger)
}

var (
	menuByText = query.Predicate{Tag: "a", Within: &query.Predicate{Tag: "nav"}, Where: []query.Cond{query.TextContains("MEN")}}
	menuByHref = query.Predicate{Tag: "a", Where: []query.Cond{query.AttrContains("href", "/men.html")}}
	menuByCSS  = query.CSS("a.level-top")
)

func TestResolve(t *testing.T) {
	t.Run("first satisfying candidate wins and later ones are never evaluated", func(t *testing.T) {
		page := drivertest.NewPage()
		first := drivertest.NewElement("first", "MEN")
		page.Set(menuByText, first)
		page.Set(menuByHref, drivertest.NewElement("second", "MEN"))

		el, err := newTestResolver(t, page).Resolve(context.Background(), query.MustChain(menuByText, menuByHref, menuByCSS), wait.Visible, timeout)
		require.NoError(t, err)
		assert.Same(t, first, el)
		assert.Zero(t, page.Finds(menuByHref))
		assert.Zero(t, page.Finds(menuByCSS))
	})

	t.Run("later candidate resolves when earlier ones match nothing", func(t *testing.T) {
		page := drivertest.NewPage()
		target := drivertest.NewElement("by-href", "MEN")
		page.Set(menuByHref, target)

		start := time.Now()
		el, err := newTestResolver(t, page).Resolve(context.Background(), query.MustChain(menuByText, menuByHref), wait.Visible, timeout)
		require.NoError(t, err)
		assert.Same(t, target, el)
		assert.GreaterOrEqual(t, page.Finds(menuByText), 1)
		assert.Less(t, time.Since(start), timeout)
	})

	t.Run("earlier candidate wins over a stricter later one", func(t *testing.T) {
		page := drivertest.NewPage()
		loose := drivertest.NewElement("women-link", "WOMEN").WithAttr("href", "https://shop.test/women.html")
		strict := drivertest.NewElement("men-link", "MEN").WithAttr("href", "https://shop.test/men.html")
		page.Set(menuByText, loose)
		page.Set(menuByHref, strict)

		el, err := newTestResolver(t, page).Resolve(context.Background(), query.MustChain(menuByText, menuByHref), wait.Visible, timeout)
		require.NoError(t, err)
		assert.Same(t, loose, el)
	})

	t.Run("exhausted chain fails after the whole budget", func(t *testing.T) {
		page := drivertest.NewPage()
		chain := query.MustChain(menuByText, menuByHref, menuByCSS)

		start := time.Now()
		_, err := newTestResolver(t, page).Resolve(context.Background(), chain, wait.Clickable, timeout)
		elapsed := time.Since(start)

		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.ErrorIs(t, err, ErrElementNotFound)
		assert.Equal(t, chain, notFound.Chain)
		assert.Equal(t, wait.Clickable, notFound.State)
		assert.GreaterOrEqual(t, elapsed, timeout)
		assert.Less(t, elapsed, timeout+4*poll)
		assert.Contains(t, err.Error(), "clickable")
		assert.Contains(t, err.Error(), menuByCSS.String())
		for _, q := range chain {
			assert.GreaterOrEqual(t, page.Finds(q), 1, "every candidate is probed: %s", q)
		}
	})

	t.Run("single candidate gets the full budget", func(t *testing.T) {
		page := drivertest.NewPage()
		el := drivertest.NewElement("late", "")
		time.AfterFunc(timeout/2, func() { page.Set(menuByCSS, el) })

		got, err := newTestResolver(t, page).Resolve(context.Background(), query.MustChain(menuByCSS), wait.Present, timeout)
		require.NoError(t, err)
		assert.Same(t, el, got)
	})

	t.Run("accept option filters candidates", func(t *testing.T) {
		page := drivertest.NewPage()
		women := drivertest.NewElement("women", "View All").WithAttr("href", "https://shop.test/women.html")
		men := drivertest.NewElement("men", "View All").WithAttr("href", "https://shop.test/men.html")
		page.Set(menuByCSS, women, men)

		el, err := newTestResolver(t, page).Resolve(context.Background(), query.MustChain(menuByCSS), wait.Clickable, timeout,
			Accept(func(ctx context.Context, el driver.Element) (bool, error) {
				href, _, err := el.Attribute(ctx, "href")
				return strings.Contains(href, "/men.html"), err
			}))
		require.NoError(t, err)
		assert.Same(t, men, el)
	})

	t.Run("unrecoverable errors propagate at once", func(t *testing.T) {
		page := drivertest.NewPage()
		boom := errors.New("websocket closed")
		page.FindFunc = func(query.Query) ([]driver.Element, error) { return nil, boom }

		start := time.Now()
		_, err := newTestResolver(t, page).Resolve(context.Background(), query.MustChain(menuByText, menuByCSS), wait.Visible, timeout)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrElementNotFound)
		assert.Less(t, time.Since(start), timeout)
	})

	t.Run("empty chain", func(t *testing.T) {
		_, err := newTestResolver(t, drivertest.NewPage()).Resolve(context.Background(), nil, wait.Visible, timeout)
		assert.ErrorIs(t, err, query.ErrEmptyChain)
	})
}

func TestAll(t *testing.T) {
	items := query.CSS(".products-grid .item")
	fallback := query.CSS(".product-item")

	page := drivertest.NewPage()
	a := drivertest.NewElement("a", "Chelsea Tee")
	b := drivertest.NewElement("b", "Hidden Tee")
	b.Hidden = true
	c := drivertest.NewElement("c", "Oxford Shirt")
	page.Set(fallback, a, b, c)

	els, err := newTestResolver(t, page).All(context.Background(), query.MustChain(items, fallback), wait.Visible, timeout)
	require.NoError(t, err)
	assert.Equal(t, []driver.Element{a, c}, els)

	present, err := newTestResolver(t, page).All(context.Background(), query.MustChain(fallback), wait.Present, timeout)
	require.NoError(t, err)
	assert.Len(t, present, 3)

	shirts, err := newTestResolver(t, page).All(context.Background(), query.MustChain(fallback), wait.Present, timeout,
		Accept(func(ctx context.Context, el driver.Element) (bool, error) {
			text, err := el.Text(ctx)
			return strings.Contains(text, "Shirt"), err
		}))
	require.NoError(t, err)
	assert.Equal(t, []driver.Element{c}, shirts)

	for _, state := range []wait.State{wait.Invisible, wait.URLContains("/men")} {
		t.Run(state.String(), func(t *testing.T) {
			els, err := newTestResolver(t, page).All(context.Background(), query.MustChain(fallback), state, timeout)
			require.Error(t, err)
			assert.ErrorContains(t, err, "cannot list elements")
			assert.Nil(t, els)
			assert.NotErrorIs(t, err, ErrElementNotFound)
		})
	}
}

func TestBudget(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		left      int
		want      time.Duration
	}{
		{"split evenly", 15 * time.Second, 3, 5 * time.Second},
		{"last takes all", 7 * time.Second, 1, 7 * time.Second},
		{"never below poll", 600 * time.Millisecond, 4, 500 * time.Millisecond},
		{"exhausted still polls once", -time.Second, 1, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, budget(tt.remaining, tt.left, 500*time.Millisecond))
		})
	}
}
