package overlay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/storefront-cli/internal/action"
	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/driver/drivertest"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/config"
	"github.com/xkilldash9x/storefront-cli/internal/wait"
)

const probeTimeout = 80 * time.Millisecond

var overlayCfg = config.OverlayConfig{
	Container:       ".privacy_prompt",
	Accept:          "#privacy_pref_optin",
	Submit:          "#consent_prompt_submit",
	DismissProbe:    40 * time.Millisecond,
	RemovalPatterns: []string{"consent", "cookie", "overlay", "modal"},
	RemovalIDs:      []string{"notice"},
}

func newTestGuard(t *testing.T, page *drivertest.Page) *Guard {
	t.Helper()
	logger := zaptest.NewLogger(t)
	waitCfg := config.WaitConfig{Timeout: time.Second, ProbeTimeout: probeTimeout, PollInterval: 10 * time.Millisecond}
	return NewGuard(page, wait.NewEngine(page, waitCfg, logger), action.NewExecutor(waitCfg, logger), overlayCfg, logger)
}

func countScripts(page *drivertest.Page, fragment string) int {
	n := 0
	for _, s := range page.Scripts() {
		if strings.Contains(s, fragment) {
			n++
		}
	}
	return n
}

// consentPage registers a visible banner whose submit control hides it.
func consentPage() (*drivertest.Page, *drivertest.Element, *drivertest.Element, *drivertest.Element) {
	page := drivertest.NewPage()
	banner := drivertest.NewElement("privacy_prompt", "We use cookies")
	optIn := drivertest.NewElement("optin", "")
	submit := drivertest.NewElement("submit", "Submit")
	submit.OnClick = func() { banner.SetHidden(true) }
	page.Set(query.CSS(overlayCfg.Container), banner)
	page.Set(query.CSS(overlayCfg.Accept), optIn)
	page.Set(query.CSS(overlayCfg.Submit), submit)
	return page, banner, optIn, submit
}

func TestSuppress(t *testing.T) {
	t.Run("absent overlay returns within the probe timeout without clicking", func(t *testing.T) {
		page := drivertest.NewPage()
		optIn := drivertest.NewElement("optin", "")
		page.Set(query.CSS(overlayCfg.Accept), optIn)

		start := time.Now()
		outcome := newTestGuard(t, page).Suppress(context.Background())
		elapsed := time.Since(start)

		assert.Equal(t, Absent, outcome)
		assert.GreaterOrEqual(t, elapsed, probeTimeout)
		assert.Less(t, elapsed, 3*probeTimeout)
		assert.Zero(t, optIn.Clicks())
		assert.Zero(t, page.Finds(query.CSS(overlayCfg.Accept)))
		assert.Equal(t, 1, countScripts(page, restoreScrollScript))
	})

	t.Run("consent controls dismiss the overlay", func(t *testing.T) {
		page, _, optIn, submit := consentPage()

		outcome := newTestGuard(t, page).Suppress(context.Background())

		assert.Equal(t, Dismissed, outcome)
		assert.Equal(t, 1, optIn.Clicks())
		assert.Equal(t, 1, submit.Clicks())
		assert.Zero(t, countScripts(page, "el.remove()"))
		assert.Equal(t, 1, countScripts(page, restoreScrollScript))
	})

	t.Run("stubborn overlay is removed by script", func(t *testing.T) {
		page := drivertest.NewPage()
		page.Set(query.CSS(overlayCfg.Container), drivertest.NewElement("privacy_prompt", ""))
		page.EvaluateFunc = func(script string, res any) error {
			if strings.Contains(script, "el.remove()") {
				return drivertest.Assign(res, 2)
			}
			return nil
		}

		outcome := newTestGuard(t, page).Suppress(context.Background())

		assert.Equal(t, Removed, outcome)
		assert.Equal(t, 1, countScripts(page, "el.remove()"))
		assert.Equal(t, 1, countScripts(page, restoreScrollScript))
	})

	t.Run("idempotent", func(t *testing.T) {
		page, _, optIn, submit := consentPage()
		guard := newTestGuard(t, page)

		first := guard.Suppress(context.Background())
		second := guard.Suppress(context.Background())

		assert.Equal(t, Dismissed, first)
		assert.Equal(t, Absent, second)
		assert.Equal(t, 1, optIn.Clicks())
		assert.Equal(t, 1, submit.Clicks())
	})

	t.Run("never fails", func(t *testing.T) {
		page := drivertest.NewPage()
		page.FindFunc = func(query.Query) ([]driver.Element, error) { return nil, errors.New("session deleted") }
		page.EvaluateFunc = func(string, any) error { return errors.New("session deleted") }

		var outcome Outcome
		require.NotPanics(t, func() { outcome = newTestGuard(t, page).Suppress(context.Background()) })
		assert.Equal(t, Absent, outcome)
	})
}

func TestSweep(t *testing.T) {
	page := drivertest.NewPage()
	page.EvaluateFunc = func(script string, res any) error { return drivertest.Assign(res, 0) }
	guard := newTestGuard(t, page)

	assert.Equal(t, Absent, guard.Sweep(context.Background()))

	page.EvaluateFunc = func(script string, res any) error { return drivertest.Assign(res, 4) }
	assert.Equal(t, Removed, guard.Sweep(context.Background()))
}

func TestRemovalScript(t *testing.T) {
	script := removalScript([]string{"consent", "cookie"}, []string{"notice"})

	assert.Contains(t, script, `document.querySelectorAll("[class*=\"consent\"],[class*=\"cookie\"],[id*=\"notice\"]")`)
	assert.Contains(t, script, `document.body.style.overflow = "auto";`)
	assert.True(t, strings.HasSuffix(script, "return removed;"))

	empty := removalScript(nil, nil)
	assert.NotContains(t, empty, "querySelectorAll")
	assert.Contains(t, empty, "return removed;")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "dismissed", Dismissed.String())
	assert.Equal(t, "removed", Removed.String())
}
