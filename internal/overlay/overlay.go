// Package overlay clears consent banners and modal layers that block clicks.
//
// Everything here is best effort: Suppress and Sweep never return errors, they
// report what they did and log what went wrong.
package overlay

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storefront-cli/internal/action"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/config"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

// Outcome says what suppression found.
type Outcome int

const (
	// Absent means no overlay was showing.
	Absent Outcome = iota
	// Dismissed means the consent UI was used and the overlay went away.
	Dismissed
	// Removed means overlay nodes were deleted by script.
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Absent:
		return "absent"
	case Dismissed:
		return "dismissed"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Scripter evaluates page scripts.
type Scripter interface {
	Evaluate(ctx context.Context, script string, res any) error
}

const restoreScrollScript = `document.body.style.overflow = "auto";
return true;`

// Guard suppresses overlays on one page.
type Guard struct {
	page    Scripter
	waits   *wait.Engine
	actions *action.Executor
	cfg     config.OverlayConfig
	removal string
	logger  *zap.Logger
}

// NewGuard returns a guard using cfg's selectors and heuristics.
func NewGuard(page Scripter, waits *wait.Engine, actions *action.Executor, cfg config.OverlayConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		page:    page,
		waits:   waits,
		actions: actions,
		cfg:     cfg,
		removal: removalScript(cfg.RemovalPatterns, cfg.RemovalIDs),
		logger:  logger.Named("overlay"),
	}
}

// removalScript deletes every node whose class or id contains one of the
// given fragments, unblocks body scrolling and returns the number removed.
func removalScript(classFragments, idFragments []string) string {
	selectors := make([]string, 0, len(classFragments)+len(idFragments))
	for _, f := range classFragments {
		selectors = append(selectors, fmt.Sprintf(`[class*=%q]`, f))
	}
	for _, f := range idFragments {
		selectors = append(selectors, fmt.Sprintf(`[id*=%q]`, f))
	}
	var b strings.Builder
	b.WriteString("let removed = 0;\n")
	if len(selectors) > 0 {
		fmt.Fprintf(&b, "document.querySelectorAll(%s).forEach(function(el) {\n", strconv.Quote(strings.Join(selectors, ",")))
		b.WriteString("\tif (el !== document.body && el !== document.documentElement && el.isConnected) {\n")
		b.WriteString("\t\tel.remove();\n\t\tremoved++;\n\t}\n});\n")
	}
	b.WriteString("document.body.style.overflow = \"auto\";\nreturn removed;")
	return b.String()
}

func (g *Guard) probe(ctx context.Context, state wait.State, selector string) (wait.Result, error) {
	return g.waits.Await(ctx, wait.Spec{State: state, Target: query.CSS(selector), Mode: wait.Probe})
}

// Suppress clears the consent overlay if it becomes visible within the probe
// timeout. When the consent controls do not make it go away, overlay nodes
// are removed by script. Body scrolling is restored on every path. Calling it
// again with no navigation in between is a no-op apart from the probe.
func (g *Guard) Suppress(ctx context.Context) Outcome {
	defer g.restoreScroll(ctx)

	shown, err := g.probe(ctx, wait.Visible, g.cfg.Container)
	if err != nil {
		g.logger.Debug("Overlay probe failed, removing by heuristics.", zap.Error(err))
		return g.sweep(ctx)
	}
	if !shown.OK {
		g.logger.Debug("Consent overlay not shown.")
		return Absent
	}

	if g.cfg.Accept != "" {
		g.interact(ctx, "accept", g.cfg.Accept)
	}
	if g.cfg.Submit != "" {
		g.interact(ctx, "submit", g.cfg.Submit)
	}

	gone, err := g.waits.Await(ctx, wait.Spec{
		State:   wait.Invisible,
		Target:  query.CSS(g.cfg.Container),
		Timeout: g.cfg.DismissProbe,
		Mode:    wait.Probe,
	})
	if err == nil && gone.OK {
		g.logger.Info("Consent overlay dismissed.")
		return Dismissed
	}
	g.logger.Debug("Consent overlay still showing, removing by heuristics.", zap.Error(err))
	return g.sweep(ctx)
}

// interact clicks a consent control if it becomes clickable. Failures are logged.
func (g *Guard) interact(ctx context.Context, name, selector string) {
	res, err := g.probe(ctx, wait.Clickable, selector)
	if err != nil || !res.OK {
		g.logger.Debug("Consent control not clickable.", zap.String("control", name), zap.String("selector", selector), zap.Error(err))
		return
	}
	if _, err := g.actions.Click(ctx, res.Element); err != nil {
		g.logger.Debug("Consent control click failed.", zap.String("control", name), zap.Error(err))
	}
}

// Sweep removes overlay nodes matched by the configured heuristics and
// restores scrolling without probing first.
func (g *Guard) Sweep(ctx context.Context) Outcome {
	return g.sweep(ctx)
}

func (g *Guard) sweep(ctx context.Context) Outcome {
	var removed int
	if err := g.page.Evaluate(ctx, g.removal, &removed); err != nil {
		g.logger.Debug("Overlay removal script failed.", zap.Error(err))
		return Absent
	}
	if removed == 0 {
		return Absent
	}
	g.logger.Info("Removed overlay nodes.", zap.Int("count", removed))
	return Removed
}

func (g *Guard) restoreScroll(ctx context.Context) {
	if err := g.page.Evaluate(ctx, restoreScrollScript, nil); err != nil {
		g.logger.Debug("Could not restore body scrolling.", zap.Error(err))
	}
}
