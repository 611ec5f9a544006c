package storefront

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/locator"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

// ErrWishlistEmpty is returned when the wishlist shows no items.
var ErrWishlistEmpty = errors.New("could not find any wishlist items, the wishlist may be empty")

var (
	addToCartButton = query.Predicate{
		Tag:   "button",
		Where: []query.Cond{query.AnyOf(query.ContentContains("Add to Cart"), query.AttrContains("title", "Add to Cart"))},
	}
	addToCartFallback = query.CSS("button[title*='Add to Cart'], button.btn-cart")

	// wishlistItems tries the known grid and table layouts before falling back
	// to the rows that hold an Add to Cart button.
	wishlistItems = query.MustChain(
		query.CSS(".products-grid .item"),
		query.CSS("li.item"),
		query.CSS(".wishlist .item"),
		query.CSS("ol.products-grid li"),
		query.CSS("ul.products-grid li"),
		query.CSS("[class*='product-item']"),
		query.CSS("tbody tr"),
		query.Ancestor{Of: addToCartButton, Tag: "tr", Nearest: true},
		query.Ancestor{Of: addToCartButton, Tag: "li", Nearest: true},
	)
)

// TransferSummary reports how AddAllToCart went.
type TransferSummary struct {
	// Found is the number of Add to Cart buttons when the transfer started.
	Found  int
	Added  int
	Failed []error
}

// WishlistPage is the customer's wishlist.
type WishlistPage struct {
	eng *Engine
}

// Open loads the wishlist.
func (w *WishlistPage) Open(ctx context.Context) error {
	return w.eng.open(ctx, w.eng.shop.WishlistPath)
}

// reopen reloads the wishlist during a transfer. The consent banner was
// handled by Open, so only leftover overlay nodes are swept.
func (w *WishlistPage) reopen(ctx context.Context) error {
	if err := w.eng.Session.Navigate(ctx, w.eng.shop.URL(w.eng.shop.WishlistPath)); err != nil {
		return err
	}
	w.eng.Guard.Sweep(ctx)
	return w.eng.Session.PageReady(ctx)
}

// Items returns the wishlist entries found by the first layout that matches.
func (w *WishlistPage) Items(ctx context.Context) ([]driver.Element, error) {
	items, err := w.eng.Resolver.All(ctx, wishlistItems, wait.Present, 0)
	if errors.Is(err, locator.ErrElementNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrWishlistEmpty, err)
	}
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrWishlistEmpty
	}
	w.eng.Log.Debug("Found wishlist items.", zap.Int("count", len(items)))
	return items, nil
}

// buttons returns the Add to Cart buttons currently on the page.
func (w *WishlistPage) buttons(ctx context.Context) ([]driver.Element, error) {
	found, err := w.eng.Session.Find(ctx, addToCartButton)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return found, nil
	}
	return w.eng.Session.Find(ctx, addToCartFallback)
}

// AddItemToCart clicks the Add to Cart button at index.
func (w *WishlistPage) AddItemToCart(ctx context.Context, index int) error {
	w.eng.Guard.Sweep(ctx)
	buttons, err := w.buttons(ctx)
	if err != nil {
		return err
	}
	if len(buttons) == 0 {
		return fmt.Errorf("no add to cart buttons on the wishlist: %w", ErrWishlistEmpty)
	}
	if index < 0 || index >= len(buttons) {
		return fmt.Errorf("button index %d is out of bounds, only %d buttons available", index, len(buttons))
	}
	if _, err := w.eng.Actions.Click(ctx, buttons[index]); err != nil {
		return fmt.Errorf("could not add item to cart: %w", err)
	}
	if err := w.eng.Session.PageReady(ctx); err != nil {
		return err
	}
	return w.eng.settle(ctx, "cart transfer", w.eng.shop.Settle.CartTransfer)
}

// AddAllToCart moves every wishlist item to the cart. The first remaining
// button is always used because transferred items leave the list. The page
// is reopened between items and after every failed item, and a failed item
// does not stop the transfer.
func (w *WishlistPage) AddAllToCart(ctx context.Context) (TransferSummary, error) {
	w.eng.Guard.Sweep(ctx)
	buttons, err := w.buttons(ctx)
	if err != nil {
		return TransferSummary{}, err
	}
	summary := TransferSummary{Found: len(buttons)}
	if summary.Found == 0 {
		return summary, fmt.Errorf("no add to cart buttons: %w", ErrWishlistEmpty)
	}
	w.eng.Log.Info("Transferring wishlist to cart.", zap.Int("items", summary.Found))

	for i := 0; i < summary.Found; i++ {
		err := w.AddItemToCart(ctx, 0)
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if err != nil {
			w.eng.Log.Warn("Could not transfer wishlist item.", zap.Int("item", i+1), zap.Error(err))
			summary.Failed = append(summary.Failed, fmt.Errorf("item %d: %w", i+1, err))
		} else {
			summary.Added++
		}
		if err != nil || i < summary.Found-1 {
			if oerr := w.reopen(ctx); oerr != nil {
				return summary, fmt.Errorf("reopening wishlist: %w", oerr)
			}
		}
	}
	w.eng.Log.Info("Finished wishlist transfer.", zap.Int("added", summary.Added), zap.Int("failed", len(summary.Failed)))
	return summary, nil
}
