// Package driver defines the capability surface the synchronization engine
// needs from a browser driver. Implementations live in the sub-packages cdp
// (Chrome DevTools), webdriver (remote WebDriver) and htmldom (static pages).
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Strategy names the native lookup mechanism of a Query.
type Strategy string

const (
	StrategyXPath    Strategy = "xpath"
	StrategyCSS      Strategy = "css selector"
	StrategyLinkText Strategy = "link text"
)

// Query is a resolved, driver-native element lookup.
type Query struct {
	Strategy Strategy
	Value    string
}

func (q Query) String() string {
	return fmt.Sprintf("%s=%s", q.Strategy, q.Value)
}

// Sentinel errors every implementation maps its native failures onto.
var (
	// ErrNoSuchElement means the query matched nothing.
	ErrNoSuchElement = errors.New("no such element")
	// ErrStaleElement means the handle no longer refers to a node in the current document.
	ErrStaleElement = errors.New("stale element reference")
	// ErrUnsupported is returned for capabilities a driver does not provide.
	ErrUnsupported = errors.New("operation not supported by driver")
	// ErrNoSuchOption is returned by SelectByLabel when no option carries the label.
	ErrNoSuchOption = errors.New("no such option")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("driver closed")
)

// Element is a handle to a node of the current document. Any method may return
// ErrStaleElement once the document has changed underneath the handle.
type Element interface {
	Click(ctx context.Context) error
	DoubleClick(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Clear(ctx context.Context) error
	Focus(ctx context.Context) error
	// SelectByLabel selects the option of a select element whose visible text is label.
	SelectByLabel(ctx context.Context, label string) error
	// Highlight marks the element visually for a human observer.
	Highlight(ctx context.Context) error

	IsDisplayed(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	IsSelected(ctx context.Context) (bool, error)
	// Attribute returns the attribute value and whether it is present at all.
	Attribute(ctx context.Context, name string) (string, bool, error)
	Text(ctx context.Context) (string, error)
	TagName(ctx context.Context) (string, error)
	// ZIndex returns the z-index declared by the nearest ancestor-or-self
	// that declares one, or BaselineZIndex.
	ZIndex(ctx context.Context) (int, error)
}

// Window is one top-level browsing context.
type Window struct {
	Handle string
	Title  string
}

// Driver is one browser session.
type Driver interface {
	// FindElement returns the first match or ErrNoSuchElement.
	FindElement(ctx context.Context, q Query) (Element, error)
	// FindElements returns all matches, possibly none.
	FindElements(ctx context.Context, q Query) ([]Element, error)

	// ImplicitWait is the lookup wait currently configured on the session.
	ImplicitWait() time.Duration
	SetImplicitWait(ctx context.Context, d time.Duration) error

	// ExecuteScript runs script as a function body with args bound to
	// `arguments` and returns the JSON encoded result.
	ExecuteScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error)
	Windows(ctx context.Context) ([]Window, error)
	Screenshot(ctx context.Context) ([]byte, error)
	PageSource(ctx context.Context) (string, error)
	// MaxZIndex returns the highest z-index declared anywhere in the page,
	// never less than BaselineZIndex.
	MaxZIndex(ctx context.Context) (int, error)

	Close(ctx context.Context) error
}

// BaselineZIndex is the effective z-index of elements without a declaring ancestor.
const BaselineZIndex = 0

// Scripts shared by the JavaScript capable drivers. They are function
// declarations evaluated with the element bound to `this`.
const (
	ZIndexFunction = `function() {
	for (var el = this; el && el.nodeType === 1; el = el.parentElement) {
		var z = window.getComputedStyle(el).zIndex;
		if (z && z !== 'auto') { return parseInt(z, 10) || 0; }
	}
	return 0;
}`

	HighlightFunction = `function() {
	this.style.outline = '3px solid #f00';
	return true;
}`

	// MaxZIndexScript is a plain expression. Prefix it with "return " to use
	// it as an ExecuteScript body.
	MaxZIndexScript = `(function() {
	var max = 0;
	var all = document.getElementsByTagName('*');
	for (var i = 0; i < all.length; i++) {
		var z = parseInt(window.getComputedStyle(all[i]).zIndex, 10);
		if (!isNaN(z) && z > max) { max = z; }
	}
	return max;
})()`
)

// LocalEndpoint asks a factory for a browser on this host instead of a remote one.
const LocalEndpoint = "local"

// Factory starts a driver session against one host endpoint.
type Factory interface {
	Start(ctx context.Context, endpoint string) (Driver, error)
}

// ProxySource hands out proxy addresses, one per browser.
type ProxySource interface {
	Acquire(ctx context.Context) (string, error)
	Release(addr string) error
}

// XPathLiteral quotes s for use inside an XPath 1.0 expression.
func XPathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
