package cdp

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/aludratest/aludra/internal/driver"
)

const staleMarker = "__aludra_stale__"

const (
	displayedFunction = `function() {
	var s = window.getComputedStyle(this);
	if (s.display === 'none' || s.visibility === 'hidden' || s.visibility === 'collapse' || s.opacity === '0') { return false; }
	var r = this.getBoundingClientRect();
	return r.width > 0 && r.height > 0;
}`
	enabledFunction  = `function() { return !this.matches(':disabled'); }`
	selectedFunction = `function() { return !!(this.checked || this.selected); }`
	textFunction     = `function() { return (this.innerText || this.textContent || '').trim(); }`
	tagNameFunction  = `function() { return this.tagName.toLowerCase(); }`

	attributeFunction = `function(name) {
	if (name === 'value' && 'value' in this) { return {present: true, value: String(this.value)}; }
	if (!this.hasAttribute(name)) { return {present: false, value: ''}; }
	return {present: true, value: this.getAttribute(name)};
}`

	selectFunction = `function(label) {
	if (this.tagName.toLowerCase() !== 'select') { return false; }
	var norm = function(s) { return s.replace(/\s+/g, ' ').trim(); };
	for (var i = 0; i < this.options.length; i++) {
		if (norm(this.options[i].text) === norm(label)) {
			this.selectedIndex = i;
			this.dispatchEvent(new Event('input', {bubbles: true}));
			this.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		}
	}
	return false;
}`
)

// guarded wraps fn so that it reports detached nodes instead of acting on them.
func guarded(fn string) string {
	return "function() {\n\tif (!this.isConnected) { return '" + staleMarker + "'; }\n\treturn (" + fn + ").apply(this, arguments);\n}"
}

type element struct {
	d    *Driver
	node *cdp.Node
}

var _ driver.Element = (*element)(nil)

func (e *element) ids() []cdp.NodeID { return []cdp.NodeID{e.node.NodeID} }

// call runs fn with the element bound to this and decodes the result into res.
func (e *element) call(ctx context.Context, fn string, res interface{}, args ...interface{}) error {
	runCtx, done, err := e.d.bind(ctx)
	if err != nil {
		return err
	}
	defer done()

	var raw []byte
	if err := chromedp.CallFunctionOnNode(runCtx, e.node, guarded(fn), &raw, args...); err != nil {
		return translate(ctx, err)
	}
	if string(raw) == `"`+staleMarker+`"` {
		return fmt.Errorf("%w: node %d is detached", driver.ErrStaleElement, e.node.NodeID)
	}
	if res == nil || len(raw) == 0 {
		return nil
	}
	if err := codec.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	return e.d.run(ctx, chromedp.MouseClickNode(e.node))
}

func (e *element) DoubleClick(ctx context.Context) error {
	return e.d.run(ctx, chromedp.MouseClickNode(e.node, chromedp.ClickCount(2)))
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return e.d.run(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
}

func (e *element) Clear(ctx context.Context) error {
	return e.d.run(ctx, chromedp.Clear(e.ids(), chromedp.ByNodeID))
}

func (e *element) Focus(ctx context.Context) error {
	return e.d.run(ctx, chromedp.Focus(e.ids(), chromedp.ByNodeID))
}

func (e *element) SelectByLabel(ctx context.Context, label string) error {
	var ok bool
	if err := e.call(ctx, selectFunction, &ok, label); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", driver.ErrNoSuchOption, label)
	}
	return nil
}

func (e *element) Highlight(ctx context.Context) error {
	return e.call(ctx, driver.HighlightFunction, nil)
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	var v bool
	err := e.call(ctx, displayedFunction, &v)
	return v, err
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	var v bool
	err := e.call(ctx, enabledFunction, &v)
	return v, err
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	var v bool
	err := e.call(ctx, selectedFunction, &v)
	return v, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var attr struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	if err := e.call(ctx, attributeFunction, &attr, name); err != nil {
		return "", false, err
	}
	return attr.Value, attr.Present, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var v string
	err := e.call(ctx, textFunction, &v)
	return v, err
}

func (e *element) TagName(ctx context.Context) (string, error) {
	var v string
	err := e.call(ctx, tagNameFunction, &v)
	return v, err
}

func (e *element) ZIndex(ctx context.Context) (int, error) {
	v := driver.BaselineZIndex
	err := e.call(ctx, driver.ZIndexFunction, &v)
	return v, err
}
