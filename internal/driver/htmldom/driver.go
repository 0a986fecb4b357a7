// Package htmldom is a driver over static HTML documents. It has no layout or
// script engine; visibility, enablement and stacking are derived from
// attributes and inline styles. Replacing or mutating the document starts a new
// generation and turns every previously returned handle stale.
package htmldom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aludratest/aludra/internal/driver"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// ErrClosed aliases driver.ErrClosed.
var ErrClosed = driver.ErrClosed

type window struct {
	handle string
	title  string
	doc    *html.Node
}

// Driver implements driver.Driver over parsed HTML.
type Driver struct {
	logger *zap.Logger

	mu           sync.RWMutex
	windows      []*window
	current      int
	generation   uint64
	implicitWait time.Duration
	focused      *html.Node
	clicks       []string
	closed       bool
}

var _ driver.Driver = (*Driver)(nil)

// New creates a driver with one empty window.
func New(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	doc, _ := html.Parse(strings.NewReader("<html><head></head><body></body></html>"))
	return &Driver{
		logger:  logger.Named("htmldom"),
		windows: []*window{{handle: uuid.NewString(), doc: doc}},
	}
}

// Load replaces the document of the current window.
func (d *Driver) Load(r io.Reader) error {
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	w := d.windows[d.current]
	w.doc = doc
	w.title = titleOf(doc)
	d.focused = nil
	d.generation++
	d.logger.Debug("Document loaded.", zap.String("title", w.title), zap.Uint64("generation", d.generation))
	return nil
}

// LoadString is Load for an in-memory document.
func (d *Driver) LoadString(s string) error {
	return d.Load(strings.NewReader(s))
}

// LoadFile is Load for a document on disk.
func (d *Driver) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()
	return d.Load(f)
}

// OpenWindow parses doc into a new window and returns its handle. The current
// window is unchanged.
func (d *Driver) OpenWindow(doc string) (string, error) {
	root, err := htmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("failed to parse window document: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrClosed
	}
	w := &window{handle: uuid.NewString(), title: titleOf(root), doc: root}
	d.windows = append(d.windows, w)
	return w.handle, nil
}

// Mutate runs fn against the current document and starts a new generation.
func (d *Driver) Mutate(fn func(doc *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.windows[d.current].doc)
	d.windows[d.current].title = titleOf(d.windows[d.current].doc)
	d.generation++
}

// Clicks returns a description of every click performed, in order.
func (d *Driver) Clicks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.clicks...)
}

// Generation returns the current document generation.
func (d *Driver) Generation() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.generation
}

// FindElement implements driver.Driver.
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

// FindElements implements driver.Driver.
func (d *Driver) FindElements(ctx context.Context, q driver.Query) ([]driver.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	nodes, err := query(d.windows[d.current].doc, q)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Element, len(nodes))
	for i, n := range nodes {
		out[i] = &Element{d: d, node: n, gen: d.generation}
	}
	return out, nil
}

func query(root *html.Node, q driver.Query) ([]*html.Node, error) {
	switch q.Strategy {
	case driver.StrategyCSS:
		sel, err := cascadia.Parse(q.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid css selector %q: %w", q.Value, err)
		}
		return cascadia.QueryAll(root, sel), nil
	case driver.StrategyXPath:
		nodes, err := htmlquery.QueryAll(root, q.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", q.Value, err)
		}
		elements := nodes[:0]
		for _, n := range nodes {
			if n.Type == html.ElementNode {
				elements = append(elements, n)
			}
		}
		return elements, nil
	case driver.StrategyLinkText:
		var links []*html.Node
		for _, a := range htmlquery.Find(root, "//a") {
			if normalizeSpace(htmlquery.InnerText(a)) == q.Value {
				links = append(links, a)
			}
		}
		return links, nil
	default:
		return nil, fmt.Errorf("%w: strategy %q", driver.ErrUnsupported, q.Strategy)
	}
}

// ImplicitWait implements driver.Driver. Lookups here never wait; the value is
// only recorded.
func (d *Driver) ImplicitWait() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.implicitWait
}

// SetImplicitWait implements driver.Driver.
func (d *Driver) SetImplicitWait(_ context.Context, w time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.implicitWait = w
	return nil
}

// ExecuteScript is not available without a script engine.
func (d *Driver) ExecuteScript(context.Context, string, ...interface{}) (json.RawMessage, error) {
	return nil, driver.ErrUnsupported
}

// Screenshot is not available without a layout engine.
func (d *Driver) Screenshot(context.Context) ([]byte, error) {
	return nil, driver.ErrUnsupported
}

// Windows implements driver.Driver.
func (d *Driver) Windows(context.Context) ([]driver.Window, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	out := make([]driver.Window, len(d.windows))
	for i, w := range d.windows {
		out[i] = driver.Window{Handle: w.handle, Title: w.title}
	}
	return out, nil
}

// PageSource implements driver.Driver.
func (d *Driver) PageSource(context.Context) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrClosed
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, d.windows[d.current].doc); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

// MaxZIndex implements driver.Driver using inline z-index declarations.
func (d *Driver) MaxZIndex(context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, ErrClosed
	}
	max := driver.BaselineZIndex
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if z, ok := declaredZIndex(n); ok && z > max {
				max = z
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.windows[d.current].doc)
	return max, nil
}

// Close implements driver.Driver.
func (d *Driver) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func titleOf(doc *html.Node) string {
	if t := htmlquery.FindOne(doc, "//title"); t != nil {
		return strings.TrimSpace(htmlquery.InnerText(t))
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
