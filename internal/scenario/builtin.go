package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/storefront-cli/internal/storefront"
)

const (
	// MaxFilteredPrice is the upper bound of the first price filter bucket.
	MaxFilteredPrice = 99.99
	// sortedPrefix is how many leading products must be in price order.
	sortedPrefix = 5
	// wishlistAdds is how many products sort-wishlist puts on the wishlist.
	wishlistAdds = 2
)

// Builtin returns a registry holding every built in scenario.
func Builtin() *Registry {
	r := NewRegistry()
	r.MustRegister(Scenario{
		Name:        "men-filters",
		Description: "Filter men's products by black colour and the first price bucket.",
		Run:         menFilters,
	})
	r.MustRegister(Scenario{
		Name:        "hover-effect",
		Description: "Hovering a women's product changes its card style.",
		Run:         hoverEffect,
	})
	r.MustRegister(Scenario{
		Name:        "sale-styles",
		Description: "Discounted sale products show a struck grey old price and a blue special price.",
		Run:         saleStyles,
	})
	r.MustRegister(Scenario{
		Name:        "sort-wishlist",
		Description: "Sort women's products by price and add two of them to the wishlist.",
		Run:         sortWishlist,
	})
	r.MustRegister(Scenario{
		Name:        "wishlist-to-cart",
		Description: "Move wishlist items to the cart and reconcile the cart totals.",
		Run:         wishlistToCart,
	})
	return r
}

func menFilters(ctx context.Context, site *storefront.Site) error {
	home := site.Home()
	if err := home.Open(ctx); err != nil {
		return err
	}
	men, err := home.Men(ctx)
	if err != nil {
		return err
	}

	if err := men.SelectBlackColor(ctx); err != nil {
		return err
	}
	if _, err := men.DisplayedProducts(ctx); err != nil {
		return err
	}
	url, err := men.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(url, "color=") {
		return Failf("colour filter missing from %s", url)
	}

	if err := men.SelectFirstPriceOption(ctx); err != nil {
		return err
	}
	products, err := men.DisplayedProducts(ctx)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return Failf("no products after filtering")
	}
	if url, err = men.CurrentURL(ctx); err != nil {
		return err
	}
	if !strings.Contains(url, "price=") {
		return Failf("price filter missing from %s", url)
	}

	want := site.Engine().Settings().ExpectedFilteredProducts
	if len(products) != want {
		return Failf("expected %d filtered products, got %d", want, len(products))
	}
	for i, p := range products {
		price, err := men.ProductPrice(ctx, p)
		if err != nil {
			return fmt.Errorf("product %d: %w", i+1, err)
		}
		if price < 0 || price > MaxFilteredPrice {
			return Failf("product %d price %.2f outside 0.00-%.2f", i+1, price, MaxFilteredPrice)
		}
	}
	return nil
}

func hoverEffect(ctx context.Context, site *storefront.Site) error {
	home := site.Home()
	if err := home.Open(ctx); err != nil {
		return err
	}
	women, err := home.Women(ctx)
	if err != nil {
		return err
	}
	product, err := women.FirstProduct(ctx)
	if err != nil {
		return err
	}
	styles, err := women.HoverStyles(ctx, product)
	if err != nil {
		return err
	}
	if len(styles.Changed()) == 0 {
		return Failf("hover changed none of %s", strings.Join(storefront.HoverProperties, ", "))
	}
	return nil
}

func saleStyles(ctx context.Context, site *storefront.Site) error {
	home := site.Home()
	if err := home.Open(ctx); err != nil {
		return err
	}
	sale, err := home.Sale(ctx)
	if err != nil {
		return err
	}
	products, err := sale.SaleProducts(ctx)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return Failf("no sale products displayed")
	}
	for i, p := range products {
		if !sale.HasMultiplePrices(ctx, p) {
			continue
		}
		styles, err := sale.PriceStyles(ctx, p)
		if err != nil {
			return fmt.Errorf("product %d: %w", i+1, err)
		}
		switch {
		case !styles.Old.Struck():
			return Failf("product %d: old price %q is not struck through", i+1, styles.Old.Text)
		case !storefront.IsGrey(styles.Old.Color):
			return Failf("product %d: old price colour %s is not grey", i+1, styles.Old.Color)
		case styles.Special.Struck():
			return Failf("product %d: special price %q is struck through", i+1, styles.Special.Text)
		case !storefront.IsBlue(styles.Special.Color):
			return Failf("product %d: special price colour %s is not blue", i+1, styles.Special.Color)
		}
	}
	return nil
}

func sortWishlist(ctx context.Context, site *storefront.Site) error {
	home := site.Home()
	if err := home.Open(ctx); err != nil {
		return err
	}
	women, err := home.Women(ctx)
	if err != nil {
		return err
	}
	if err := women.SortByPrice(ctx); err != nil {
		return err
	}
	products, err := women.AllProducts(ctx)
	if err != nil {
		return err
	}
	if len(products) < wishlistAdds {
		return Failf("need at least %d products, found %d", wishlistAdds, len(products))
	}

	n := min(sortedPrefix, len(products))
	prev := -1.0
	for i := 0; i < n; i++ {
		price, err := women.ProductPrice(ctx, products[i])
		if err != nil {
			return fmt.Errorf("product %d: %w", i+1, err)
		}
		if price < prev {
			return Failf("product %d price %.2f is below the previous %.2f", i+1, price, prev)
		}
		prev = price
	}

	for i := 0; i < wishlistAdds; i++ {
		if err := women.AddToWishlist(ctx, i); err != nil {
			return err
		}
	}
	count, err := women.WishlistCount(ctx)
	if err != nil {
		return err
	}
	if count != wishlistAdds {
		return Failf("wishlist holds %d items, expected %d", count, wishlistAdds)
	}
	return nil
}

func wishlistToCart(ctx context.Context, site *storefront.Site) error {
	wishlist := site.Wishlist()
	if err := wishlist.Open(ctx); err != nil {
		return err
	}
	summary, err := wishlist.AddAllToCart(ctx)
	if err != nil {
		return err
	}
	if summary.Added == 0 {
		return Failf("none of %d wishlist items reached the cart", summary.Found)
	}

	cart := site.Cart()
	if err := cart.Open(ctx); err != nil {
		return err
	}
	r, err := cart.Reconcile(ctx)
	if err != nil {
		return err
	}
	if !r.Matches() {
		return Failf("line totals %.2f differ from grand total %.2f by %.2f", r.Calculated, r.Grand, r.Difference())
	}
	return nil
}
