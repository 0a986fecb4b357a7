// Package cdp drives Chrome over the DevTools protocol using chromedp.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/aludratest/aludra/internal/driver"
	"github.com/aludratest/aludra/internal/retry"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// findPollInterval is how often a lookup is repeated while the implicit wait lasts.
const findPollInterval = 50 * time.Millisecond

// Driver is one Chrome tab.
type Driver struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *zap.Logger

	mu           sync.Mutex
	implicitWait time.Duration
	closed       bool
}

var _ driver.Driver = (*Driver)(nil)

// bind derives a context that targets the tab and ends when either ctx or the tab ends.
func (d *Driver) bind(ctx context.Context) (context.Context, func(), error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, nil, driver.ErrClosed
	}
	runCtx, cancel := context.WithCancel(d.tab)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}, nil
}

func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, done, err := d.bind(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return translate(ctx, err)
	}
	return nil
}

// translate maps protocol failures onto the driver sentinels.
func translate(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "No node with given id"),
		strings.Contains(msg, "Could not find node"),
		strings.Contains(msg, "Node is detached"),
		strings.Contains(msg, "Cannot find context with specified id"):
		return fmt.Errorf("%w: %s", driver.ErrStaleElement, msg)
	}
	return err
}

// querySelector turns a driver query into a chromedp selector and its options.
func querySelector(q driver.Query) (string, []chromedp.QueryOption, error) {
	switch q.Strategy {
	case driver.StrategyCSS:
		return q.Value, []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}, nil
	case driver.StrategyXPath:
		return q.Value, []chromedp.QueryOption{chromedp.BySearch, chromedp.AtLeast(0)}, nil
	case driver.StrategyLinkText:
		return "//a[normalize-space(.)=" + driver.XPathLiteral(strings.Join(strings.Fields(q.Value), " ")) + "]",
			[]chromedp.QueryOption{chromedp.BySearch, chromedp.AtLeast(0)}, nil
	}
	return "", nil, fmt.Errorf("%w: strategy %q", driver.ErrUnsupported, q.Strategy)
}

func (d *Driver) FindElement(ctx context.Context, q driver.Query) (driver.Element, error) {
	els, err := d.FindElements(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", driver.ErrNoSuchElement, q)
	}
	return els[0], nil
}

// FindElements repeats the lookup until something matches or the implicit wait is over.
func (d *Driver) FindElements(ctx context.Context, q driver.Query) ([]driver.Element, error) {
	sel, opts, err := querySelector(q)
	if err != nil {
		return nil, err
	}
	var found []driver.Element
	policy := retry.Policy{Timeout: d.ImplicitWait(), Pause: findPollInterval}
	_, err = retry.Poll(ctx, policy, func(ctx context.Context) (bool, error) {
		var nodes []*cdp.Node
		if err := d.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
			return false, err
		}
		found = make([]driver.Element, 0, len(nodes))
		for _, n := range nodes {
			if n.NodeType == cdp.NodeTypeElement {
				found = append(found, &element{d: d, node: n})
			}
		}
		return len(found) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (d *Driver) ImplicitWait() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.implicitWait
}

func (d *Driver) SetImplicitWait(_ context.Context, w time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.implicitWait = w
	return nil
}

// ExecuteScript evaluates script as a function body in the page.
func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error) {
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := codec.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode script arguments: %w", err)
	}
	expr := fmt.Sprintf("(function() {\n%s\n}).apply(null, %s)", script, encoded)

	var raw []byte
	if err := d.run(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(raw), nil
}

func (d *Driver) Windows(ctx context.Context) ([]driver.Window, error) {
	runCtx, done, err := d.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, translate(ctx, err)
	}
	var windows []driver.Window
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		windows = append(windows, driver.Window{Handle: string(info.TargetID), Title: info.Title})
	}
	return windows, nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	var src string
	if err := d.run(ctx, chromedp.OuterHTML("html", &src, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return src, nil
}

func (d *Driver) MaxZIndex(ctx context.Context) (int, error) {
	var top int
	if err := d.run(ctx, chromedp.Evaluate(driver.MaxZIndexScript, &top)); err != nil {
		return 0, err
	}
	if top < driver.BaselineZIndex {
		top = driver.BaselineZIndex
	}
	return top, nil
}

// Close closes the tab and shuts the browser or remote connection down.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return driver.ErrClosed
	}
	d.closed = true
	d.mu.Unlock()

	err := chromedp.Cancel(d.tab)
	d.cancelTab()
	d.cancelAlloc()
	if err != nil && ctx.Err() == nil {
		d.logger.Debug("Tab did not close gracefully.", zap.Error(err))
		return fmt.Errorf("failed to close tab: %w", err)
	}
	return nil
}
