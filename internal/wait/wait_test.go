package wait

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
	"github.com/xkilldash9x/storefront-cli/internal/browser/driver/drivertest"
	"github.com/xkilldash9x/storefront-cli/internal/browser/query"
	"github.com/xkilldash9x/storefront-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testPoll    = 20 * time.Millisecond
	testTimeout = 200 * time.Millisecond
)

func testConfig() config.WaitConfig {
	return config.WaitConfig{
		Timeout:      testTimeout,
		ProbeTimeout: 100 * time.Millisecond,
		PollInterval: testPoll,
		HoverSettle:  10 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, page *drivertest.Page) *Engine {
	return NewEngine(page, testConfig(), zaptest.NewLogger(t))
}

func TestUntil(t *testing.T) {
	t.Run("true on first poll returns immediately", func(t *testing.T) {
		start := time.Now()
		polls, err := Until(context.Background(), "ready", time.Second, 100*time.Millisecond, func(context.Context) (bool, error) {
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, polls)
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("true after k polls waits k-1 intervals", func(t *testing.T) {
		const k = 4
		var calls atomic.Int32
		start := time.Now()
		polls, err := Until(context.Background(), "counter", time.Second, testPoll, func(context.Context) (bool, error) {
			return calls.Add(1) >= k, nil
		})
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, k, polls)
		assert.GreaterOrEqual(t, elapsed, (k-1)*testPoll)
		assert.Less(t, elapsed, time.Second)
	})

	t.Run("timeout is reported after the budget", func(t *testing.T) {
		start := time.Now()
		_, err := Until(context.Background(), "never", testTimeout, testPoll, func(context.Context) (bool, error) {
			return false, nil
		})
		elapsed := time.Since(start)

		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.ErrorIs(t, err, ErrTimeoutExceeded)
		assert.Equal(t, "never", timeoutErr.Condition)
		assert.GreaterOrEqual(t, elapsed, testTimeout)
		assert.Less(t, elapsed, testTimeout+5*testPoll)
	})

	t.Run("stale errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		polls, err := Until(context.Background(), "settles", time.Second, testPoll, func(context.Context) (bool, error) {
			if calls.Add(1) < 3 {
				return false, driver.ErrStaleReference
			}
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, polls)
	})

	t.Run("stale error is kept as the last error on timeout", func(t *testing.T) {
		_, err := Until(context.Background(), "stale", 3*testPoll, testPoll, func(context.Context) (bool, error) {
			return false, driver.ErrStaleReference
		})
		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.ErrorIs(t, timeoutErr.Last, driver.ErrStaleReference)
		assert.Contains(t, err.Error(), "last error")
	})

	t.Run("other errors stop the wait", func(t *testing.T) {
		boom := errors.New("protocol closed")
		polls, err := Until(context.Background(), "broken", time.Second, testPoll, func(context.Context) (bool, error) {
			return false, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, polls)
	})

	t.Run("caller cancellation wins", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*testPoll)
		defer cancel()
		_, err := Until(ctx, "never", time.Minute, testPoll, func(context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrTimeoutExceeded)
	})

	t.Run("poll interval must be positive", func(t *testing.T) {
		_, err := Until(context.Background(), "x", time.Second, 0, func(context.Context) (bool, error) { return true, nil })
		assert.Error(t, err)
	})
}

func TestSettle(t *testing.T) {
	start := time.Now()
	require.NoError(t, Settle(context.Background(), 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Settle(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Settle(context.Background(), 0))
}

func TestAwait(t *testing.T) {
	target := query.CSS(".product")

	t.Run("present returns the first match", func(t *testing.T) {
		page := drivertest.NewPage()
		first, second := drivertest.NewElement("a", "A"), drivertest.NewElement("b", "B")
		page.Set(target, first, second)

		res, err := newTestEngine(t, page).Await(context.Background(), Spec{State: Present, Target: target})
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Same(t, first, res.Element)
		assert.Equal(t, 1, res.Polls)
	})

	t.Run("visible skips hidden matches", func(t *testing.T) {
		page := drivertest.NewPage()
		hidden := drivertest.NewElement("hidden", "")
		hidden.Hidden = true
		shown := drivertest.NewElement("shown", "")
		page.Set(target, hidden, shown)

		res, err := newTestEngine(t, page).Await(context.Background(), Spec{State: Visible, Target: target})
		require.NoError(t, err)
		assert.Same(t, shown, res.Element)
	})

	t.Run("clickable requires enabled", func(t *testing.T) {
		page := drivertest.NewPage()
		disabled := drivertest.NewElement("disabled", "")
		disabled.Disabled = true
		enabled := drivertest.NewElement("enabled", "")
		page.Set(target, disabled, enabled)

		res, err := newTestEngine(t, page).Await(context.Background(), Spec{State: Clickable, Target: target})
		require.NoError(t, err)
		assert.Same(t, enabled, res.Element)
	})

	t.Run("element appearing later is found", func(t *testing.T) {
		page := drivertest.NewPage()
		el := drivertest.NewElement("late", "")
		el.Hidden = true
		page.Set(target, el)
		time.AfterFunc(3*testPoll, func() { el.SetHidden(false) })

		res, err := newTestEngine(t, page).Await(context.Background(), Spec{State: Visible, Target: target})
		require.NoError(t, err)
		assert.Same(t, el, res.Element)
		assert.GreaterOrEqual(t, res.Polls, 2)
	})

	t.Run("stale visible candidates mean not yet", func(t *testing.T) {
		page := drivertest.NewPage()
		el := drivertest.NewElement("replaced", "")
		el.SetStale(true)
		page.Set(target, el)
		fresh := drivertest.NewElement("fresh", "")
		time.AfterFunc(2*testPoll, func() { page.Set(target, fresh) })

		res, err := newTestEngine(t, page).Await(context.Background(), Spec{State: Visible, Target: target})
		require.NoError(t, err)
		assert.Same(t, fresh, res.Element)
	})

	t.Run("hard timeout fails", func(t *testing.T) {
		page := drivertest.NewPage()
		start := time.Now()
		_, err := newTestEngine(t, page).Await(context.Background(), Spec{State: Visible, Target: target})
		assert.ErrorIs(t, err, ErrTimeoutExceeded)
		assert.Contains(t, err.Error(), "css(.product) to be visible")
		assert.GreaterOrEqual(t, time.Since(start), testTimeout)
	})

	t.Run("probe timeout is a negative result", func(t *testing.T) {
		page := drivertest.NewPage()
		start := time.Now()
		res, err := newTestEngine(t, page).Await(context.Background(), Spec{State: Present, Target: target, Mode: Probe})
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Nil(t, res.Element)
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, testConfig().ProbeTimeout)
		assert.Less(t, elapsed, testTimeout)
	})

	t.Run("probe still propagates unrecoverable errors", func(t *testing.T) {
		page := drivertest.NewPage()
		boom := errors.New("target crashed")
		page.FindFunc = func(query.Query) ([]driver.Element, error) { return nil, boom }

		_, err := newTestEngine(t, page).Await(context.Background(), Spec{State: Present, Target: target, Mode: Probe})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("invisible holds with no displayed match", func(t *testing.T) {
		page := drivertest.NewPage()
		gone := drivertest.NewElement("gone", "")
		gone.SetStale(true)
		hidden := drivertest.NewElement("hidden", "")
		hidden.Hidden = true
		page.Set(target, gone, hidden)

		res, err := newTestEngine(t, page).Await(context.Background(), Spec{State: Invisible, Target: target})
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Nil(t, res.Element)
	})

	t.Run("invisible waits for a displayed match to go", func(t *testing.T) {
		page := drivertest.NewPage()
		banner := drivertest.NewElement("banner", "")
		page.Set(target, banner)
		time.AfterFunc(2*testPoll, func() { banner.SetHidden(true) })

		res, err := newTestEngine(t, page).Await(context.Background(), Spec{State: Invisible, Target: target})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Polls, 2)
	})

	t.Run("url contains", func(t *testing.T) {
		page := drivertest.NewPage()
		page.SetURL("https://shop.test/men.html")
		time.AfterFunc(2*testPoll, func() { page.SetURL("https://shop.test/men.html?color=20") })

		res, err := newTestEngine(t, page).Await(context.Background(), Spec{State: URLContains("color=")})
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.GreaterOrEqual(t, res.Polls, 2)
	})

	t.Run("accept filters matches", func(t *testing.T) {
		page := drivertest.NewPage()
		women := drivertest.NewElement("women", "View All").WithAttr("href", "https://shop.test/women.html")
		men := drivertest.NewElement("men", "View All").WithAttr("href", "https://shop.test/men.html")
		page.Set(target, women, men)

		res, err := newTestEngine(t, page).Await(context.Background(), Spec{
			State:  Clickable,
			Target: target,
			Accept: func(ctx context.Context, el driver.Element) (bool, error) {
				href, _, err := el.Attribute(ctx, "href")
				return !strings.Contains(href, "women"), err
			},
		})
		require.NoError(t, err)
		assert.Same(t, men, res.Element)
	})

	t.Run("element states need a target", func(t *testing.T) {
		_, err := newTestEngine(t, drivertest.NewPage()).Await(context.Background(), Spec{State: Visible})
		assert.ErrorContains(t, err, "requires a target")
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "present", Present.String())
	assert.Equal(t, "clickable", Clickable.String())
	assert.Equal(t, `url contains "price="`, URLContains("price=").String())
	assert.Equal(t, "probe", Probe.String())
	assert.Equal(t, "hard", Hard.String())
}

func TestSatisfies(t *testing.T) {
	ctx := context.Background()
	hidden := drivertest.NewElement("hidden", "")
	hidden.Hidden = true
	disabled := drivertest.NewElement("disabled", "")
	disabled.Disabled = true
	stale := drivertest.NewElement("stale", "")
	stale.SetStale(true)
	shown := drivertest.NewElement("shown", "Sale")

	tests := []struct {
		name  string
		el    *drivertest.Element
		state State
		want  bool
	}{
		{"hidden present", hidden, Present, true},
		{"hidden visible", hidden, Visible, false},
		{"disabled visible", disabled, Visible, true},
		{"disabled clickable", disabled, Clickable, false},
		{"shown clickable", shown, Clickable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := Satisfies(ctx, tt.el, Spec{State: tt.state})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	t.Run("accept applies to present", func(t *testing.T) {
		reject := func(context.Context, driver.Element) (bool, error) { return false, nil }
		ok, err := Satisfies(ctx, shown, Spec{State: Present, Accept: reject})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stale element", func(t *testing.T) {
		_, err := Satisfies(ctx, stale, Spec{State: Visible})
		assert.ErrorIs(t, err, driver.ErrStaleReference)
	})
}
