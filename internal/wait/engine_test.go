package wait

import (
	"context"
	"testing"
	"time"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver"
	"github.com/aludratest/aludra/internal/driver/htmldom"
	"github.com/aludratest/aludra/internal/element"
	"github.com/aludratest/aludra/internal/fault"
	"github.com/aludratest/aludra/internal/locator"
	"github.com/aludratest/aludra/internal/mocks"
	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"
)

const page = `<html><head><title>Main</title></head><body>
<div id="overlay" style="z-index: 10">busy</div>
<div style="z-index: 5"><button id="under">Under</button></div>
<button id="ok">OK</button>
<button id="later" style="display:none">Later</button>
<input id="ro" readonly>
<input id="name">
<button id="off" disabled>Off</button>
<a id="hidden-link" href="/x" style="display:none">Hidden link</a>
</body></html>`

func newEngine(t *testing.T) (*Engine, *htmldom.Driver) {
	t.Helper()
	d := htmldom.New(zaptest.NewLogger(t))
	require.NoError(t, d.LoadString(page))
	cfg := config.WaitConfig{
		Timeout:             150 * time.Millisecond,
		PauseBetweenRetries: 10 * time.Millisecond,
		ResponseTimeout:     time.Second,
		MaxRelocations:      3,
	}
	resolver := locator.NewResolver(config.LocatorConfig{IDPrefix: `[id$="`, IDSuffix: `"]`}, nil)
	return New(element.NewFinder(d, resolver, cfg, zaptest.NewLogger(t)), zaptest.NewLogger(t)), d
}

func requireFault(t *testing.T, err error, tier fault.Tier, msg string) {
	t.Helper()
	require.Error(t, err)
	got, ok := fault.TierOf(err)
	require.True(t, ok, "expected a fault, got %v", err)
	assert.Equal(t, tier, got)
	assert.Contains(t, err.Error(), msg)
}

func TestPresent(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	live, err := e.Present(ctx, Request{Locator: locator.ByID("ok")})
	require.NoError(t, err)
	text, err := live.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OK", text)

	_, err = e.Present(ctx, Request{Locator: locator.ByID("missing")})
	requireFault(t, err, fault.Automation, "Element not found: id:missing")
}

func TestNotPresent(t *testing.T) {
	e, d := newEngine(t)
	ctx := context.Background()

	err := e.NotPresent(ctx, Request{Locator: locator.ByID("ok"), Timeout: 40 * time.Millisecond})
	requireFault(t, err, fault.Automation, fault.MsgStillPresent)

	time.AfterFunc(30*time.Millisecond, func() {
		d.Mutate(func(doc *html.Node) {
			n := htmlquery.FindOne(doc, "//button[@id='ok']")
			n.Parent.RemoveChild(n)
		})
	})
	require.NoError(t, e.NotPresent(ctx, Request{Locator: locator.ByID("ok"), Timeout: time.Second}))
}

func TestVisible(t *testing.T) {
	e, d := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Visible(ctx, Request{Locator: locator.ByID("ok")}))

	err := e.Visible(ctx, Request{Locator: locator.ByID("later")})
	requireFault(t, err, fault.Automation, "The element is not visible: id:later")

	t.Run("becomes visible while polling", func(t *testing.T) {
		time.AfterFunc(30*time.Millisecond, func() {
			d.Mutate(func(doc *html.Node) {
				n := htmlquery.FindOne(doc, "//button[@id='later']")
				n.Attr = nil
				n.Attr = append(n.Attr, html.Attribute{Key: "id", Val: "later"})
			})
		})
		require.NoError(t, e.Visible(ctx, Request{Locator: locator.ByID("later"), Timeout: time.Second}))
	})

	t.Run("links skip the check without delay", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, e.Visible(ctx, Request{Locator: locator.ByID("hidden-link"), Link: true}))
		require.NoError(t, e.Enabled(ctx, Request{Locator: locator.ByID("hidden-link"), Link: true}))
		assert.Less(t, time.Since(start), 5*time.Millisecond)
	})
}

func TestEnabled(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Enabled(ctx, Request{Locator: locator.ByID("name")}))
	require.NoError(t, e.Enabled(ctx, Request{Locator: locator.ByID("ok")}))

	for _, id := range []string{"ro", "off"} {
		err := e.Enabled(ctx, Request{Locator: locator.ByID(id), Timeout: 30 * time.Millisecond})
		requireFault(t, err, fault.Automation, "Element not editable: id:"+id)
	}
}

func TestInForeground(t *testing.T) {
	e, d := newEngine(t)
	ctx := context.Background()

	// z-index 5 under a page maximum of 10.
	err := e.InForeground(ctx, Request{Locator: locator.ByID("under"), Timeout: 40 * time.Millisecond})
	requireFault(t, err, fault.Automation, "Element not in foreground: id:under")

	require.NoError(t, e.InForeground(ctx, Request{Locator: locator.ByID("overlay")}))

	d.Mutate(func(doc *html.Node) {
		n := htmlquery.FindOne(doc, "//div[@id='overlay']")
		n.Parent.RemoveChild(n)
	})
	require.NoError(t, e.InForeground(ctx, Request{Locator: locator.ByID("under")}))
}

func TestWindowPresent(t *testing.T) {
	e, d := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.WindowPresent(ctx, "Main", 0))

	err := e.WindowPresent(ctx, "Report", 30*time.Millisecond)
	requireFault(t, err, fault.Automation, "Window not found: title:Report")

	_, err = d.OpenWindow("<html><head><title>Report</title></head></html>")
	require.NoError(t, err)
	require.NoError(t, e.WindowPresent(ctx, "Report", 0))
}

func TestStaleDuringPollingCountsAsUnsatisfied(t *testing.T) {
	drv := &mocks.MockDriver{}
	flaky := &mocks.MockElement{}
	q := driver.Query{Strategy: driver.StrategyCSS, Value: "#x"}

	drv.On("ImplicitWait").Return(time.Duration(0))
	drv.On("FindElement", mock.Anything, q).Return(flaky, nil)
	flaky.On("IsDisplayed", mock.Anything).Return(false, driver.ErrStaleElement).Twice()
	flaky.On("IsDisplayed", mock.Anything).Return(true, nil)

	cfg := config.WaitConfig{Timeout: time.Second, PauseBetweenRetries: time.Millisecond, ResponseTimeout: time.Second}
	e := New(element.NewFinder(drv, locator.NewResolver(config.LocatorConfig{}, nil), cfg, zaptest.NewLogger(t)), zaptest.NewLogger(t))

	require.NoError(t, e.Visible(context.Background(), Request{Locator: locator.ByCSS("#x")}))
	flaky.AssertNumberOfCalls(t, "IsDisplayed", 3)
}

func TestInterruptedWaitIsTechnical(t *testing.T) {
	e, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := e.Present(ctx, Request{Locator: locator.ByID("missing"), Timeout: 5 * time.Second})
	assert.True(t, fault.IsTechnical(err))
}

func TestLookupFailuresAreTechnical(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	broken := Request{Locator: locator.ByXPath("//*[@id='ok'"), Timeout: time.Second}

	start := time.Now()
	_, err := e.Present(ctx, broken)
	requireFault(t, err, fault.Technical, "Driver operation failed: xpath://*[@id='ok'")
	assert.Less(t, time.Since(start), 500*time.Millisecond, "a broken query is not polled until the timeout")

	requireFault(t, e.NotPresent(ctx, broken), fault.Technical, "Driver operation failed")
	requireFault(t, e.Visible(ctx, broken), fault.Technical, "Driver operation failed")
}

func TestIDWithQuotes(t *testing.T) {
	e, d := newEngine(t)
	ctx := context.Background()

	_, err := e.Present(ctx, Request{Locator: locator.ByID(`say"hi`), Timeout: 20 * time.Millisecond})
	requireFault(t, err, fault.Automation, "Element not found")

	require.NoError(t, d.LoadString(`<html><body><button id='form:say"hi'>Hi</button></body></html>`))
	live, err := e.Present(ctx, Request{Locator: locator.ByID(`say"hi`)})
	require.NoError(t, err)
	text, err := live.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hi", text)
}
