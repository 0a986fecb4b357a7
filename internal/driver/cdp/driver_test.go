package cdp

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver"
)

func TestQuerySelector(t *testing.T) {
	sel, opts, err := querySelector(driver.Query{Strategy: driver.StrategyCSS, Value: `[id$="save"]`})
	require.NoError(t, err)
	assert.Equal(t, `[id$="save"]`, sel)
	assert.Len(t, opts, 2)

	sel, _, err = querySelector(driver.Query{Strategy: driver.StrategyXPath, Value: "//button"})
	require.NoError(t, err)
	assert.Equal(t, "//button", sel)

	sel, _, err = querySelector(driver.Query{Strategy: driver.StrategyLinkText, Value: "  Terms   of use "})
	require.NoError(t, err)
	assert.Equal(t, "//a[normalize-space(.)='Terms of use']", sel)

	_, _, err = querySelector(driver.Query{Strategy: "partial link text", Value: "x"})
	assert.ErrorIs(t, err, driver.ErrUnsupported)
}

func TestGuardedWrapsFunction(t *testing.T) {
	src := guarded(driver.HighlightFunction)
	assert.Contains(t, src, "this.isConnected")
	assert.Contains(t, src, staleMarker)
	assert.Contains(t, src, ".apply(this, arguments)")
}

func TestTranslate(t *testing.T) {
	ctx := context.Background()

	err := translate(ctx, errors.New("could not resolve node: No node with given id found (-32000)"))
	assert.ErrorIs(t, err, driver.ErrStaleElement)

	other := errors.New("websocket: close 1006")
	assert.Same(t, other, translate(ctx, other))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = translate(cancelled, other)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, other)
}

func TestExecOptions(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions) + 2

	cfg := config.NewDefaultConfig().Driver()
	assert.Len(t, execOptions(cfg, ""), base)

	cfg.Headless = false
	cfg.Args = []string{"--window-size=1280,800", "disable-extensions"}
	assert.Len(t, execOptions(cfg, "127.0.0.1:8081"), base+4)
}

func TestClosedDriverRejectsCalls(t *testing.T) {
	d := &Driver{closed: true, logger: zaptest.NewLogger(t)}
	ctx := context.Background()

	_, err := d.FindElement(ctx, driver.Query{Strategy: driver.StrategyCSS, Value: "a"})
	assert.ErrorIs(t, err, driver.ErrClosed)
	_, err = d.PageSource(ctx)
	assert.ErrorIs(t, err, driver.ErrClosed)
	assert.ErrorIs(t, d.Close(ctx), driver.ErrClosed)
}

func TestImplicitWait(t *testing.T) {
	d := &Driver{}
	require.NoError(t, d.SetImplicitWait(context.Background(), 2*time.Second))
	assert.Equal(t, 2*time.Second, d.ImplicitWait())
}

// TestBrowserRoundTrip needs a local Chrome; set ALUDRA_CHROME_TESTS=1 to run it.
func TestBrowserRoundTrip(t *testing.T) {
	if os.Getenv("ALUDRA_CHROME_TESTS") == "" {
		t.Skip("ALUDRA_CHROME_TESTS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	f := NewFactory(config.NewDefaultConfig().Driver(), zaptest.NewLogger(t))
	drv, err := f.Start(ctx, driver.LocalEndpoint)
	require.NoError(t, err)
	defer drv.Close(context.Background())

	d := drv.(*Driver)
	page := `<title>Round trip</title><div style="z-index:7;position:relative"><button id="go">Go</button></div>` +
		`<select id="s"><option>EUR</option><option>USD</option></select><input id="i" disabled>`
	require.NoError(t, d.run(ctx, chromedp.Navigate("data:text/html,"+page)))

	btn, err := d.FindElement(ctx, driver.Query{Strategy: driver.StrategyCSS, Value: "#go"})
	require.NoError(t, err)
	shown, err := btn.IsDisplayed(ctx)
	require.NoError(t, err)
	assert.True(t, shown)
	z, err := btn.ZIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, z)
	top, err := d.MaxZIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, top)

	sel, err := d.FindElement(ctx, driver.Query{Strategy: driver.StrategyXPath, Value: "//select"})
	require.NoError(t, err)
	require.NoError(t, sel.SelectByLabel(ctx, "USD"))
	assert.ErrorIs(t, sel.SelectByLabel(ctx, "JPY"), driver.ErrNoSuchOption)

	in, err := d.FindElement(ctx, driver.Query{Strategy: driver.StrategyCSS, Value: "#i"})
	require.NoError(t, err)
	enabled, err := in.IsEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	_, err = d.ExecuteScript(ctx, "document.body.innerHTML = ''; return null;")
	require.NoError(t, err)
	_, err = btn.IsDisplayed(ctx)
	assert.ErrorIs(t, err, driver.ErrStaleElement)

	windows, err := d.Windows(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, windows)
}
