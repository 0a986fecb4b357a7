package htmldom

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aludratest/aludra/internal/driver"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// HighlightAttr is set on elements passed to Highlight.
const HighlightAttr = "data-aludra-highlight"

// Element is a handle into one document generation.
type Element struct {
	d    *Driver
	node *html.Node
	gen  uint64
}

var _ driver.Element = (*Element)(nil)

// check must be called with d.mu held.
func (e *Element) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.d.closed {
		return ErrClosed
	}
	if e.gen != e.d.generation {
		return fmt.Errorf("%w: <%s> belongs to generation %d, document is at %d", driver.ErrStaleElement, e.node.Data, e.gen, e.d.generation)
	}
	return nil
}

func (e *Element) read(ctx context.Context) (func(), error) {
	e.d.mu.RLock()
	if err := e.check(ctx); err != nil {
		e.d.mu.RUnlock()
		return nil, err
	}
	return e.d.mu.RUnlock, nil
}

func (e *Element) write(ctx context.Context) (func(), error) {
	e.d.mu.Lock()
	if err := e.check(ctx); err != nil {
		e.d.mu.Unlock()
		return nil, err
	}
	return e.d.mu.Unlock, nil
}

// Click toggles checkboxes, selects radios and options, and records the click.
func (e *Element) Click(ctx context.Context) error {
	unlock, err := e.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	n := e.node
	e.d.clicks = append(e.d.clicks, describe(n))
	e.d.focused = n

	switch tag(n) {
	case "input":
		switch strings.ToLower(htmlquery.SelectAttr(n, "type")) {
		case "checkbox":
			if hasAttr(n, "checked") {
				removeAttr(n, "checked")
			} else {
				setAttr(n, "checked", "checked")
			}
		case "radio":
			selectRadio(n)
		}
	case "option":
		if sel := ancestor(n, "select"); sel != nil {
			selectOption(sel, n)
		}
	}
	return nil
}

// DoubleClick records a double click.
func (e *Element) DoubleClick(ctx context.Context) error {
	unlock, err := e.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	e.d.clicks = append(e.d.clicks, "dblclick "+describe(e.node))
	e.d.focused = e.node
	return nil
}

// SendKeys appends text to the value of an input or textarea.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	unlock, err := e.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	switch tag(e.node) {
	case "input":
		setAttr(e.node, "value", htmlquery.SelectAttr(e.node, "value")+text)
	case "textarea":
		setText(e.node, htmlquery.InnerText(e.node)+text)
	default:
		return fmt.Errorf("cannot type into <%s>", e.node.Data)
	}
	e.d.focused = e.node
	return nil
}

// Clear empties the value of an input or textarea.
func (e *Element) Clear(ctx context.Context) error {
	unlock, err := e.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	switch tag(e.node) {
	case "input":
		setAttr(e.node, "value", "")
	case "textarea":
		setText(e.node, "")
	default:
		return fmt.Errorf("cannot clear <%s>", e.node.Data)
	}
	return nil
}

// Focus makes the element the focused one.
func (e *Element) Focus(ctx context.Context) error {
	unlock, err := e.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	e.d.focused = e.node
	return nil
}

// SelectByLabel selects the option whose normalized text equals label.
func (e *Element) SelectByLabel(ctx context.Context, label string) error {
	unlock, err := e.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if tag(e.node) != "select" {
		return fmt.Errorf("<%s> is not a select element", e.node.Data)
	}
	for _, opt := range htmlquery.Find(e.node, ".//option") {
		if normalizeSpace(htmlquery.InnerText(opt)) == label {
			selectOption(e.node, opt)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", driver.ErrNoSuchOption, label)
}

// Highlight marks the element with HighlightAttr.
func (e *Element) Highlight(ctx context.Context) error {
	unlock, err := e.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	setAttr(e.node, HighlightAttr, "true")
	return nil
}

// IsDisplayed reports false when the element or an ancestor is hidden by the
// hidden attribute or an inline display:none / visibility:hidden, and for
// hidden inputs and non-rendered elements.
func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	unlock, err := e.read(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	if tag(e.node) == "input" && strings.EqualFold(htmlquery.SelectAttr(e.node, "type"), "hidden") {
		return false, nil
	}
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		switch tag(n) {
		case "head", "script", "style", "template", "title", "noscript":
			return false, nil
		}
		if hasAttr(n, "hidden") {
			return false, nil
		}
		style := inlineStyle(n)
		if style["display"] == "none" || style["visibility"] == "hidden" {
			return false, nil
		}
	}
	return true, nil
}

// IsEnabled reports false for disabled form controls, controls inside a
// disabled fieldset and options of a disabled select or optgroup.
func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	unlock, err := e.read(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	if hasAttr(e.node, "disabled") {
		return false, nil
	}
	for n := e.node.Parent; n != nil && n.Type == html.ElementNode; n = n.Parent {
		switch tag(n) {
		case "fieldset", "select", "optgroup":
			if hasAttr(n, "disabled") {
				return false, nil
			}
		}
	}
	return true, nil
}

// IsSelected reports checked checkboxes and radios and selected options.
func (e *Element) IsSelected(ctx context.Context) (bool, error) {
	unlock, err := e.read(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	switch tag(e.node) {
	case "option":
		return hasAttr(e.node, "selected"), nil
	case "input":
		return hasAttr(e.node, "checked"), nil
	}
	return false, nil
}

// Attribute returns the attribute value. The value of a textarea is its text.
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	unlock, err := e.read(ctx)
	if err != nil {
		return "", false, err
	}
	defer unlock()

	if name == "value" && tag(e.node) == "textarea" {
		return htmlquery.InnerText(e.node), true, nil
	}
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

// Text returns the whitespace-normalized text content.
func (e *Element) Text(ctx context.Context) (string, error) {
	unlock, err := e.read(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()
	return normalizeSpace(htmlquery.InnerText(e.node)), nil
}

// TagName returns the lower-case tag name.
func (e *Element) TagName(ctx context.Context) (string, error) {
	unlock, err := e.read(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()
	return tag(e.node), nil
}

// ZIndex returns the inline z-index of the nearest declaring ancestor-or-self.
func (e *Element) ZIndex(ctx context.Context) (int, error) {
	unlock, err := e.read(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if z, ok := declaredZIndex(n); ok {
			return z, nil
		}
	}
	return driver.BaselineZIndex, nil
}

// -- DOM helpers --

func tag(n *html.Node) string {
	return strings.ToLower(n.Data)
}

func describe(n *html.Node) string {
	if id := htmlquery.SelectAttr(n, "id"); id != "" {
		return tag(n) + "#" + id
	}
	if name := htmlquery.SelectAttr(n, "name"); name != "" {
		return fmt.Sprintf("%s[name=%s]", tag(n), name)
	}
	if text := normalizeSpace(htmlquery.InnerText(n)); text != "" {
		return fmt.Sprintf("%s(%s)", tag(n), text)
	}
	return tag(n)
}

func inlineStyle(n *html.Node) map[string]string {
	style := map[string]string{}
	for _, decl := range strings.Split(htmlquery.SelectAttr(n, "style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		style[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return style
}

func declaredZIndex(n *html.Node) (int, bool) {
	v, ok := inlineStyle(n)["z-index"]
	if !ok || v == "auto" {
		return 0, false
	}
	z, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return z, true
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func ancestor(n *html.Node, name string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && tag(p) == name {
			return p
		}
	}
	return nil
}

func selectOption(sel, opt *html.Node) {
	if hasAttr(sel, "multiple") {
		setAttr(opt, "selected", "selected")
		return
	}
	for _, o := range htmlquery.Find(sel, ".//option") {
		if o == opt {
			setAttr(o, "selected", "selected")
		} else {
			removeAttr(o, "selected")
		}
	}
}

func selectRadio(n *html.Node) {
	name := htmlquery.SelectAttr(n, "name")
	if name == "" {
		setAttr(n, "checked", "checked")
		return
	}
	root := ancestor(n, "form")
	if root == nil {
		root = n
		for root.Parent != nil {
			root = root.Parent
		}
	}
	for _, r := range htmlquery.Find(root, ".//input[@type='radio']") {
		if htmlquery.SelectAttr(r, "name") != name {
			continue
		}
		if r == n {
			setAttr(r, "checked", "checked")
		} else {
			removeAttr(r, "checked")
		}
	}
}
