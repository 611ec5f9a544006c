package storefront

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/locator"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

// ErrCartEmpty is returned when no cart rows can be found.
var ErrCartEmpty = errors.New("could not find any cart items, the cart is likely empty")

const (
	cartBodyCSS     = "tbody"
	cartRowsCSS     = "tbody tr"
	cartClassedCSS  = "tr.first, tr.last, tr.odd, tr.even"
	cartPriceCSS    = ".product-cart-price .price, .cart-price .price"
	cartQuantityCSS = "input.qty, input[title='Qty']"

	// TotalTolerance is the largest difference between the summed line
	// totals and the grand total that still counts as a match.
	TotalTolerance = 0.01

	// minRowText separates product rows from spacer and summary rows.
	minRowText = 20
)

var (
	cartUpdateButton = query.MustChain(query.CSS("button[title='Update'], button.btn-update"))
	grandTotal       = query.MustChain(query.CSS(".grand-total .price, .totals .grand-total .price"))

	cartStripedRows = query.Predicate{
		Tag:    "tr",
		Within: &query.Predicate{Tag: "tbody"},
		Where:  []query.Cond{query.AnyOf(query.AttrContains("class", "odd"), query.AttrContains("class", "even"))},
	}
	emptyCartNotice = query.Predicate{Where: []query.Cond{query.AnyOf(query.TextContains("empty"), query.TextContains("no items"))}}

	rowClassMarkers = []string{"odd", "even", "first", "last"}
)

// Reconciliation compares the summed line totals with the page's grand total.
type Reconciliation struct {
	Calculated float64
	Grand      float64
}

// Difference is the absolute gap between both totals.
func (r Reconciliation) Difference() float64 { return math.Abs(r.Calculated - r.Grand) }

// Matches reports a gap below TotalTolerance.
func (r Reconciliation) Matches() bool { return r.Difference() < TotalTolerance }

// CartPage is the shopping cart.
type CartPage struct {
	eng *Engine
}

// Open loads the cart.
func (c *CartPage) Open(ctx context.Context) error {
	return c.eng.open(ctx, c.eng.shop.CartPath)
}

// Items returns the cart's product rows. Rows inside the table body that look
// like striped product rows win; otherwise every body row is returned, then
// rows found by class anywhere, then striped rows by XPath.
func (c *CartPage) Items(ctx context.Context) ([]driver.Element, error) {
	if err := c.eng.settle(ctx, "cart load", c.eng.shop.Settle.CartLoad); err != nil {
		return nil, err
	}
	c.logEmptyNotice(ctx)

	res, err := c.eng.Waits.Await(ctx, wait.Spec{State: wait.Present, Target: query.CSS(cartBodyCSS), Mode: wait.Probe})
	if err != nil {
		return nil, err
	}
	if res.OK {
		rows, err := c.eng.Session.Find(ctx, query.CSS(cartRowsCSS))
		if err != nil {
			return nil, err
		}
		products := c.productRows(ctx, rows)
		if len(products) > 0 {
			c.eng.Log.Debug("Found cart rows.", zap.Int("rows", len(rows)), zap.Int("products", len(products)))
			return products, nil
		}
		if len(rows) > 0 {
			c.eng.Log.Debug("Using every body row as a cart item.", zap.Int("rows", len(rows)))
			return rows, nil
		}
	}

	for _, q := range []query.Query{query.CSS(cartClassedCSS), cartStripedRows} {
		rows, err := c.eng.Session.Find(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			c.eng.Log.Debug("Found cart rows by fallback.", zap.Stringer("query", q), zap.Int("rows", len(rows)))
			return rows, nil
		}
	}
	return nil, ErrCartEmpty
}

func (c *CartPage) productRows(ctx context.Context, rows []driver.Element) []driver.Element {
	var out []driver.Element
	for i, row := range rows {
		class, _, err := row.Attribute(ctx, "class")
		if err != nil {
			c.eng.Log.Debug("Skipping unreadable cart row.", zap.Int("row", i), zap.Error(err))
			continue
		}
		text, err := row.Text(ctx)
		if err != nil {
			c.eng.Log.Debug("Skipping unreadable cart row.", zap.Int("row", i), zap.Error(err))
			continue
		}
		if len(text) <= minRowText {
			continue
		}
		for _, m := range rowClassMarkers {
			if strings.Contains(class, m) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func (c *CartPage) logEmptyNotice(ctx context.Context) {
	notices, err := c.eng.Session.Find(ctx, emptyCartNotice)
	if err != nil {
		return
	}
	for _, n := range notices {
		if shown, err := n.Displayed(ctx); err == nil && shown {
			text, _ := n.Text(ctx)
			c.eng.Log.Info("Cart reports it is empty.", zap.String("message", text))
			return
		}
	}
}

func (c *CartPage) item(ctx context.Context, index int) (driver.Element, error) {
	items, err := c.Items(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(items) {
		return nil, fmt.Errorf("item index %d is out of bounds, only %d items in cart", index, len(items))
	}
	return items[index], nil
}

// UpdateQuantity types quantity into the row at index. The cart is not
// recalculated until ClickUpdate.
func (c *CartPage) UpdateQuantity(ctx context.Context, index, quantity int) error {
	c.eng.Guard.Sweep(ctx)
	row, err := c.item(ctx, index)
	if err != nil {
		return err
	}
	if _, err := c.eng.Actions.ScrollIntoView(ctx, row); err != nil {
		return err
	}
	input, err := first(ctx, row, cartQuantityCSS)
	if err != nil {
		return fmt.Errorf("quantity input of item %d: %w", index, err)
	}
	if _, err := c.eng.Actions.Fill(ctx, input, strconv.Itoa(quantity)); err != nil {
		return err
	}
	c.eng.Log.Info("Updated quantity.", zap.Int("item", index+1), zap.Int("quantity", quantity))
	return nil
}

// ClickUpdate submits the cart form and waits for the recalculated page.
func (c *CartPage) ClickUpdate(ctx context.Context) error {
	c.eng.Guard.Sweep(ctx)
	if _, err := c.eng.click(ctx, cartUpdateButton); err != nil {
		return fmt.Errorf("update cart button: %w", err)
	}
	if err := c.eng.Session.PageReady(ctx); err != nil {
		return err
	}
	return c.eng.settle(ctx, "cart update", c.eng.shop.Settle.CartUpdate)
}

// ItemPrice parses the unit price of a cart row.
func (c *CartPage) ItemPrice(ctx context.Context, item driver.Element) (float64, error) {
	return priceOf(ctx, item, cartPriceCSS)
}

// ItemQuantity reads the quantity input of a cart row.
func (c *CartPage) ItemQuantity(ctx context.Context, item driver.Element) (int, error) {
	input, err := first(ctx, item, cartQuantityCSS)
	if err != nil {
		return 0, err
	}
	v, _, err := input.Attribute(ctx, "value")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("quantity %q: %w", v, err)
	}
	return n, nil
}

// CalculatedTotal sums price times quantity over the cart rows. Rows without
// a price or a quantity, such as summary rows picked up by a fallback, add
// nothing.
func (c *CartPage) CalculatedTotal(ctx context.Context) (float64, error) {
	items, err := c.Items(ctx)
	if err != nil {
		return 0, err
	}
	var total float64
	for i, item := range items {
		price, err := c.ItemPrice(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			c.eng.Log.Debug("Row has no price.", zap.Int("item", i+1), zap.Error(err))
			continue
		}
		qty, err := c.ItemQuantity(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			c.eng.Log.Debug("Row has no quantity.", zap.Int("item", i+1), zap.Error(err))
			continue
		}
		line := price * float64(qty)
		c.eng.Log.Info("Cart line.", zap.Int("item", i+1), zap.Float64("price", price), zap.Int("quantity", qty), zap.Float64("line_total", line))
		total += line
	}
	return total, nil
}

// GrandTotal parses the grand total shown by the cart.
func (c *CartPage) GrandTotal(ctx context.Context) (float64, error) {
	el, err := c.eng.Resolver.Resolve(ctx, grandTotal, wait.Present, 0)
	if err != nil {
		if errors.Is(err, locator.ErrElementNotFound) {
			return 0, fmt.Errorf("could not get grand total: %w", err)
		}
		return 0, err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return 0, err
	}
	return ParsePrice(text)
}

// Reconcile compares CalculatedTotal with GrandTotal.
func (c *CartPage) Reconcile(ctx context.Context) (Reconciliation, error) {
	calculated, err := c.CalculatedTotal(ctx)
	if err != nil {
		return Reconciliation{}, err
	}
	grand, err := c.GrandTotal(ctx)
	if err != nil {
		return Reconciliation{}, err
	}
	r := Reconciliation{Calculated: calculated, Grand: grand}
	c.eng.Log.Info("Reconciled cart totals.",
		zap.Float64("calculated", r.Calculated),
		zap.Float64("grand", r.Grand),
		zap.Bool("matches", r.Matches()))
	return r, nil
}
