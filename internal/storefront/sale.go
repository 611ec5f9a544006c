package storefront

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

const (
	priceBoxCSS     = ".price-box"
	oldPriceCSS     = ".old-price .price, .regular-price .price"
	specialPriceCSS = ".special-price .price"

	// productCardMinHeight filters out grid helpers that are not product cards.
	productCardMinHeight = 50
)

// PriceStyle is the computed look of one price label.
type PriceStyle struct {
	Text       string
	Color      string
	Decoration string
}

// Struck reports whether the label is struck through.
func (p PriceStyle) Struck() bool { return HasStrikethrough(p.Decoration) }

// PriceStyles holds the original and special price of a discounted product.
type PriceStyles struct {
	Old     PriceStyle
	Special PriceStyle
}

// SalePage is the sale catalogue.
type SalePage struct {
	eng *Engine
}

// SaleProducts returns the displayed product cards.
func (s *SalePage) SaleProducts(ctx context.Context) ([]driver.Element, error) {
	s.eng.Guard.Sweep(ctx)
	grid := query.CSS(productGridCSS)
	if _, err := s.eng.Waits.Await(ctx, wait.Spec{State: wait.Present, Target: grid}); err != nil {
		return nil, fmt.Errorf("sale grid: %w", err)
	}
	items, err := s.eng.Session.Find(ctx, grid)
	if err != nil {
		return nil, err
	}
	cards, err := displayed(ctx, items, productCardMinHeight)
	if err != nil {
		return nil, err
	}
	s.eng.Log.Debug("Filtered sale products.", zap.Int("grid", len(items)), zap.Int("cards", len(cards)))
	return cards, nil
}

func (s *SalePage) prices(ctx context.Context, product driver.Element) (old, special []driver.Element, err error) {
	box, err := first(ctx, product, priceBoxCSS)
	if err != nil {
		return nil, nil, err
	}
	if old, err = box.Descendants(ctx, oldPriceCSS); err != nil {
		return nil, nil, err
	}
	if special, err = box.Descendants(ctx, specialPriceCSS); err != nil {
		return nil, nil, err
	}
	return old, special, nil
}

// HasMultiplePrices reports whether product shows both an original and a
// special price. Cards without a price box have one price at most.
func (s *SalePage) HasMultiplePrices(ctx context.Context, product driver.Element) bool {
	old, special, err := s.prices(ctx, product)
	if err != nil {
		return false
	}
	return len(old) > 0 && len(special) > 0
}

// PriceStyles reads colour and text decoration of both prices of product.
func (s *SalePage) PriceStyles(ctx context.Context, product driver.Element) (PriceStyles, error) {
	old, special, err := s.prices(ctx, product)
	if err != nil {
		return PriceStyles{}, fmt.Errorf("price labels of %s: %w", product.ID(), err)
	}
	if len(old) == 0 || len(special) == 0 {
		return PriceStyles{}, fmt.Errorf("product %s has no discounted price pair", product.ID())
	}
	var out PriceStyles
	if out.Old, err = s.style(ctx, old[0]); err != nil {
		return PriceStyles{}, err
	}
	if out.Special, err = s.style(ctx, special[0]); err != nil {
		return PriceStyles{}, err
	}
	return out, nil
}

func (s *SalePage) style(ctx context.Context, label driver.Element) (PriceStyle, error) {
	styles, err := s.eng.Actions.ReadStyles(ctx, label, "color", "text-decoration")
	if err != nil {
		return PriceStyle{}, err
	}
	text, err := label.Text(ctx)
	if err != nil {
		return PriceStyle{}, err
	}
	return PriceStyle{Text: text, Color: styles["color"], Decoration: styles["text-decoration"]}, nil
}
