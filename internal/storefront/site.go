package storefront

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/browser/session"
	"github.com/xkilldash9x/storefront-cli/internal/config"
)

// Site is the entry point scenarios work from. Category pages are reached
// through Home; the cart and wishlist can be opened directly.
type Site struct {
	eng *Engine
}

// NewSite builds the page workflows for one session.
func NewSite(sess *session.Session, cfg *config.Config, logger *zap.Logger) *Site {
	return &Site{eng: NewEngine(sess, cfg, logger)}
}

// Engine exposes the shared interaction layers.
func (s *Site) Engine() *Engine { return s.eng }

func (s *Site) Home() *HomePage         { return &HomePage{eng: s.eng} }
func (s *Site) Cart() *CartPage         { return &CartPage{eng: s.eng} }
func (s *Site) Wishlist() *WishlistPage { return &WishlistPage{eng: s.eng} }
