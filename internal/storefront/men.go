package storefront

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

const (
	productGridCSS  = ".products-grid > li, ul.products-grid li.item"
	productNameCSS  = ".product-name"
	productPriceCSS = ".price-box .price"
)

var (
	blackSwatch = query.MustChain(query.Ancestor{
		Of: query.Predicate{
			Tag:    "img",
			Within: &query.Predicate{Tag: "a", Where: []query.Cond{query.AttrEquals("class", "swatch-link has-image")}},
			Where:  []query.Cond{query.AttrContainsFold("alt", "black")},
		},
		Tag: "a",
	})
	firstPriceFilter = query.MustChain(query.Predicate{
		Tag:   "a",
		Where: []query.Cond{query.AttrContains("href", "price=")},
		Nth:   1,
	})
)

// MenPage is the men's catalogue with its layered navigation filters.
type MenPage struct {
	eng *Engine
}

// DisplayedProducts returns the grid items whose product name is rendered.
// The page is scrolled to the bottom first so lazily rendered items count.
func (m *MenPage) DisplayedProducts(ctx context.Context) ([]driver.Element, error) {
	m.eng.Guard.Sweep(ctx)
	grid := query.CSS(productGridCSS)
	if _, err := m.eng.Waits.Await(ctx, wait.Spec{State: wait.Present, Target: grid}); err != nil {
		return nil, fmt.Errorf("product grid: %w", err)
	}
	m.eng.scrollToBottom(ctx)

	items, err := m.eng.Session.Find(ctx, grid)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Element, 0, len(items))
	for _, item := range items {
		names, err := item.Descendants(ctx, productNameCSS)
		if errors.Is(err, driver.ErrStaleReference) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			continue
		}
		shown, err := names[0].Displayed(ctx)
		if errors.Is(err, driver.ErrStaleReference) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if shown {
			out = append(out, item)
		}
	}
	m.eng.Log.Debug("Counted displayed products.", zap.Int("grid", len(items)), zap.Int("displayed", len(out)))
	return out, nil
}

// SelectBlackColor applies the black colour swatch filter.
func (m *MenPage) SelectBlackColor(ctx context.Context) error {
	m.eng.Guard.Sweep(ctx)
	if _, err := m.eng.click(ctx, blackSwatch); err != nil {
		return fmt.Errorf("black colour swatch: %w", err)
	}
	return m.eng.Session.PageReady(ctx)
}

// SelectFirstPriceOption applies the first price range filter and waits for
// the URL to carry it.
func (m *MenPage) SelectFirstPriceOption(ctx context.Context) error {
	m.eng.Guard.Sweep(ctx)
	link, err := m.eng.Resolver.Resolve(ctx, firstPriceFilter, wait.Clickable, 0)
	if err != nil {
		return fmt.Errorf("price filter: %w", err)
	}
	if label, err := link.Text(ctx); err == nil {
		m.eng.Log.Info("Selecting price filter.", zap.String("range", label))
	}
	if _, err := m.eng.Actions.Click(ctx, link); err != nil {
		return err
	}
	if err := m.eng.Session.PageReady(ctx); err != nil {
		return err
	}
	if _, err := m.eng.Waits.Await(ctx, wait.Spec{State: wait.URLContains("price=")}); err != nil {
		return fmt.Errorf("price filter not applied: %w", err)
	}
	return nil
}

// ProductPrice parses the price shown on a product card.
func (m *MenPage) ProductPrice(ctx context.Context, product driver.Element) (float64, error) {
	p, err := priceOf(ctx, product, productPriceCSS)
	if err != nil {
		return 0, fmt.Errorf("could not get product price: %w", err)
	}
	return p, nil
}

// CurrentURL returns the URL of the filtered listing.
func (m *MenPage) CurrentURL(ctx context.Context) (string, error) {
	return m.eng.Session.CurrentURL(ctx)
}
