package storefront

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

const (
	productImageCSS = "ul.products-grid li .product-image"
	productItemCSS  = "ul.products-grid li.item"
	wishlistLinkCSS = ".link-wishlist"
)

var (
	sortBySelect = query.MustChain(query.CSS("select[title='Sort By']"))

	wishlistHeaderLink = query.MustChain(
		query.CSS("#header-account a[href*='wishlist']"),
		query.Predicate{Tag: "a", Where: []query.Cond{query.AttrContains("href", "wishlist"), query.TextContains("Wish")}},
	)

	itemCountPattern = regexp.MustCompile(`\((\d+)\s+items?\)`)
)

// HoverProperties are the computed styles compared before and after a hover.
var HoverProperties = []string{"box-shadow", "border", "transform"}

// HoverStyles is a before and after snapshot of HoverProperties.
type HoverStyles struct {
	Before map[string]string
	After  map[string]string
}

// Changed lists the properties whose value differs after the hover, in
// HoverProperties order.
func (h HoverStyles) Changed() []string {
	var out []string
	for _, p := range HoverProperties {
		if h.Before[p] != h.After[p] {
			out = append(out, p)
		}
	}
	return out
}

// WomenPage is the women's catalogue.
type WomenPage struct {
	eng *Engine
}

// FirstProduct returns the first product image, scrolled into view.
func (w *WomenPage) FirstProduct(ctx context.Context) (driver.Element, error) {
	w.eng.Guard.Sweep(ctx)
	el, err := w.eng.Resolver.Resolve(ctx, query.MustChain(query.CSS(productImageCSS)), wait.Present, 0)
	if err != nil {
		return nil, fmt.Errorf("first product: %w", err)
	}
	if _, err := w.eng.Actions.ScrollIntoView(ctx, el); err != nil {
		return nil, err
	}
	return el, nil
}

// SortByPrice orders the listing by price.
func (w *WomenPage) SortByPrice(ctx context.Context) error {
	w.eng.Guard.Sweep(ctx)
	sel, err := w.eng.Resolver.Resolve(ctx, sortBySelect, wait.Clickable, 0)
	if err != nil {
		return fmt.Errorf("sort control: %w", err)
	}
	if _, err := w.eng.Actions.ScrollIntoView(ctx, sel); err != nil {
		return err
	}
	if _, err := w.eng.Actions.SelectOption(ctx, sel, "Price"); err != nil {
		return err
	}
	return w.eng.Session.PageReady(ctx)
}

// AllProducts returns the displayed product cards of the listing.
func (w *WomenPage) AllProducts(ctx context.Context) ([]driver.Element, error) {
	w.eng.Guard.Sweep(ctx)
	grid := query.CSS(productItemCSS)
	if _, err := w.eng.Waits.Await(ctx, wait.Spec{State: wait.Present, Target: grid}); err != nil {
		return nil, fmt.Errorf("product grid: %w", err)
	}
	items, err := w.eng.Session.Find(ctx, grid)
	if err != nil {
		return nil, err
	}
	return displayed(ctx, items, productCardMinHeight)
}

// ProductPrice parses the price shown on a product card.
func (w *WomenPage) ProductPrice(ctx context.Context, product driver.Element) (float64, error) {
	return priceOf(ctx, product, productPriceCSS)
}

// AddToWishlist adds the product at index of the displayed listing to the
// wishlist. The shop may redirect to the wishlist after the add; the listing
// is reopened when that happens.
func (w *WomenPage) AddToWishlist(ctx context.Context, index int) error {
	w.eng.Guard.Sweep(ctx)
	listing, err := w.eng.Session.CurrentURL(ctx)
	if err != nil {
		return err
	}
	products, err := w.AllProducts(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(products) {
		return fmt.Errorf("product index %d is out of bounds, only %d products available", index, len(products))
	}

	product := products[index]
	if _, err := w.eng.Actions.ScrollIntoView(ctx, product); err != nil {
		return err
	}
	link, err := first(ctx, product, wishlistLinkCSS)
	if err != nil {
		return fmt.Errorf("wishlist link of product %d: %w", index, err)
	}
	if _, err := w.eng.Actions.Click(ctx, link); err != nil {
		return err
	}
	if err := w.eng.settle(ctx, "wishlist add", w.eng.shop.Settle.WishlistAdd); err != nil {
		return err
	}
	if err := w.eng.Session.PageReady(ctx); err != nil {
		return err
	}

	landed, err := w.eng.Session.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(landed, "wishlist") || !strings.Contains(landed, Women.Name) {
		w.eng.Log.Info("Returning to the listing.", zap.String("from", landed), zap.String("to", listing))
		if err := w.eng.Session.Navigate(ctx, listing); err != nil {
			return err
		}
		w.eng.Guard.Sweep(ctx)
	}
	if _, err := w.eng.Waits.Await(ctx, wait.Spec{State: wait.Present, Target: query.CSS(productItemCSS)}); err != nil {
		return fmt.Errorf("listing after wishlist add: %w", err)
	}
	return nil
}

// HoverStyles captures HoverProperties of product, hovers it and captures
// them again.
func (w *WomenPage) HoverStyles(ctx context.Context, product driver.Element) (HoverStyles, error) {
	before, err := w.eng.Actions.ReadStyles(ctx, product, HoverProperties...)
	if err != nil {
		return HoverStyles{}, err
	}
	if _, err := w.eng.Actions.Hover(ctx, product); err != nil {
		return HoverStyles{}, err
	}
	after, err := w.eng.Actions.ReadStyles(ctx, product, HoverProperties...)
	if err != nil {
		return HoverStyles{}, err
	}
	return HoverStyles{Before: before, After: after}, nil
}

// WishlistCount opens the wishlist and reads the item count from the header
// link, e.g. "My Wishlist (2 items)". When the header carries no count the
// wishlist rows are counted instead.
func (w *WomenPage) WishlistCount(ctx context.Context) (int, error) {
	wl := &WishlistPage{eng: w.eng}
	if err := wl.Open(ctx); err != nil {
		return 0, err
	}
	if err := w.eng.settle(ctx, "wishlist load", w.eng.shop.Settle.WishlistLoad); err != nil {
		return 0, err
	}

	cfg := w.eng.Waits.Config()
	if link, err := w.eng.Resolver.Resolve(ctx, wishlistHeaderLink, wait.Present, cfg.ProbeTimeout); err == nil {
		text, err := link.Text(ctx)
		if err != nil {
			return 0, err
		}
		if n, ok := ParseItemCount(text); ok {
			return n, nil
		}
		w.eng.Log.Debug("Wishlist link carries no count.", zap.String("text", text))
	}

	items, err := wl.Items(ctx)
	if errors.Is(err, ErrWishlistEmpty) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// ParseItemCount extracts n from texts such as "My Wishlist (n items)".
func ParseItemCount(text string) (int, bool) {
	m := itemCountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
