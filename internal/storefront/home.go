package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/locator"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

// ErrWrongCategory is returned when category navigation lands on an excluded page.
var ErrWrongCategory = errors.New("navigated to the wrong category")

// Category is a top level catalogue section reachable from the main menu.
type Category struct {
	// Name is the URL fragment of the category, e.g. "women".
	Name string
	// MenuText is the text of the top level menu link.
	MenuText string
	// Exclude is a URL fragment that must not appear in the link or the
	// landing page. "men" is a substring of "women", so Men excludes it.
	Exclude string
	// ViewAll lists the exact link texts accepted for the "View All" entry.
	ViewAll []string
	// Landing is the fragment the URL must carry after navigation. Empty
	// means Name.
	Landing string
}

var (
	Women = Category{Name: "women", MenuText: "WOMEN", ViewAll: []string{"View All"}}
	Sale  = Category{Name: "sale", MenuText: "SALE", ViewAll: []string{"View All"}}
	Men   = Category{Name: "men", MenuText: "MEN", Exclude: "women", ViewAll: []string{"View All Men", "View All"}, Landing: "/men"}
)

func (c Category) landing() string {
	if c.Landing != "" {
		return c.Landing
	}
	return c.Name
}

func (c Category) hrefConds(fragment string) []query.Cond {
	conds := []query.Cond{query.AttrContains("href", fragment)}
	if c.Exclude != "" {
		conds = append(conds, query.Not(query.AttrContains("href", c.Exclude)))
	}
	return conds
}

func (c Category) menuChain() query.Chain {
	return query.MustChain(
		query.Predicate{Tag: "a", Within: &query.Predicate{Tag: "nav"}, Where: []query.Cond{query.TextContains(c.MenuText)}},
		query.Predicate{Tag: "a", Where: []query.Cond{query.AttrContains("class", "level-top"), query.TextContains(c.MenuText)}},
		query.Predicate{Tag: "a", Where: c.hrefConds("/" + c.Name + ".html")},
		query.Ancestor{Of: query.Predicate{Tag: "span", Where: []query.Cond{query.TextContains(c.MenuText)}}, Tag: "a", Axis: query.AxisParent},
	)
}

func (c Category) viewAllChain() query.Chain {
	texts := make([]query.Cond, len(c.ViewAll))
	for i, t := range c.ViewAll {
		texts[i] = query.TextEquals(t)
	}
	return query.MustChain(
		query.Predicate{Tag: "a", Where: append([]query.Cond{query.TextContains("View All")}, c.hrefConds(c.Name)...)},
		query.Predicate{Tag: "a", Where: []query.Cond{query.AttrContains("href", "/"+c.Name+".html")}},
		query.Predicate{Tag: "a", Where: []query.Cond{query.AnyOf(texts...)}},
	)
}

// excluded reports whether s carries the excluded fragment.
func (c Category) excluded(s string) bool {
	return c.Exclude != "" && strings.Contains(s, c.Exclude)
}

// acceptMenu rejects menu links pointing at the excluded category.
func (c Category) acceptMenu(ctx context.Context, el driver.Element) (bool, error) {
	href, _, err := el.Attribute(ctx, "href")
	if err != nil {
		return false, err
	}
	return !c.excluded(href), nil
}

// acceptViewAll keeps links whose href carries the category and not the
// excluded fragment.
func (c Category) acceptViewAll(ctx context.Context, el driver.Element) (bool, error) {
	href, ok, err := el.Attribute(ctx, "href")
	if err != nil || !ok {
		return false, err
	}
	return strings.Contains(href, c.Name) && !c.excluded(href), nil
}

// HomePage is the shop's landing page and main menu.
type HomePage struct {
	eng *Engine
}

// Open loads the base URL.
func (h *HomePage) Open(ctx context.Context) error {
	return h.eng.open(ctx, "")
}

// NavigateTo opens the category through its menu: hover the top level link,
// then follow its "View All" entry.
func (h *HomePage) NavigateTo(ctx context.Context, c Category) error {
	log := h.eng.Log.With(zap.String("category", c.Name))
	if err := h.eng.Session.PageReady(ctx); err != nil {
		return err
	}
	h.eng.Guard.Sweep(ctx)

	menu, err := h.eng.Resolver.Resolve(ctx, c.menuChain(), wait.Visible, 0, locator.Accept(c.acceptMenu))
	if err != nil {
		return fmt.Errorf("%s menu: %w", c.MenuText, err)
	}
	if _, err := h.eng.Actions.ScrollIntoView(ctx, menu); err != nil {
		return err
	}
	if _, err := h.eng.Actions.Hover(ctx, menu); err != nil {
		return err
	}
	if err := h.eng.settle(ctx, "menu hover", h.eng.shop.Settle.Submenu); err != nil {
		return err
	}

	if _, err := h.eng.click(ctx, c.viewAllChain(), locator.Accept(c.acceptViewAll)); err != nil {
		return fmt.Errorf("view all link for %s: %w", c.MenuText, err)
	}
	if _, err := h.eng.Waits.Await(ctx, wait.Spec{State: wait.URLContains(c.landing())}); err != nil {
		return fmt.Errorf("navigating to %s: %w", c.Name, err)
	}

	u, err := h.eng.Session.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if c.excluded(u) {
		return fmt.Errorf("%w: expected %s, landed on %s", ErrWrongCategory, c.Name, u)
	}
	log.Info("Opened category.", zap.String("url", u))
	return h.eng.Session.PageReady(ctx)
}

// Women navigates to the women's catalogue.
func (h *HomePage) Women(ctx context.Context) (*WomenPage, error) {
	if err := h.NavigateTo(ctx, Women); err != nil {
		return nil, err
	}
	return &WomenPage{eng: h.eng}, nil
}

// Men navigates to the men's catalogue.
func (h *HomePage) Men(ctx context.Context) (*MenPage, error) {
	if err := h.NavigateTo(ctx, Men); err != nil {
		return nil, err
	}
	return &MenPage{eng: h.eng}, nil
}

// Sale navigates to the sale catalogue.
func (h *HomePage) Sale(ctx context.Context) (*SalePage, error) {
	if err := h.NavigateTo(ctx, Sale); err != nil {
		return nil, err
	}
	return &SalePage{eng: h.eng}, nil
}
