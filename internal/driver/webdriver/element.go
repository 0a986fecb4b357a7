package webdriver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tebeka/selenium"

	"github.com/aludratest/aludra/internal/driver"
)

const (
	focusScript       = `arguments[0].focus(); return true;`
	doubleClickScript = `arguments[0].dispatchEvent(new MouseEvent('dblclick', {bubbles: true, cancelable: true, view: window})); return true;`
	attributeScript   = `var el = arguments[0], name = arguments[1];
if (name === 'value' && 'value' in el) { return {present: true, value: String(el.value)}; }
if (!el.hasAttribute(name)) { return {present: false, value: ''}; }
return {present: true, value: el.getAttribute(name)};`
)

// onElement turns a function declaration using `this` into a script body
// applied to the first argument.
func onElement(fn string) string {
	return "return (" + fn + ").call(arguments[0]);"
}

type element struct {
	d  *Driver
	we selenium.WebElement
}

var _ driver.Element = (*element)(nil)

func (e *element) script(ctx context.Context, body string, args ...interface{}) ([]byte, error) {
	return e.d.script(ctx, body, append([]interface{}{e.we}, args...))
}

func (e *element) Click(ctx context.Context) error {
	return doErr(ctx, e.we.Click)
}

func (e *element) DoubleClick(ctx context.Context) error {
	_, err := e.script(ctx, doubleClickScript)
	return err
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return doErr(ctx, func() error { return e.we.SendKeys(text) })
}

func (e *element) Clear(ctx context.Context) error {
	return doErr(ctx, e.we.Clear)
}

func (e *element) Focus(ctx context.Context) error {
	_, err := e.script(ctx, focusScript)
	return err
}

// SelectByLabel clicks the option whose normalized text equals label.
func (e *element) SelectByLabel(ctx context.Context, label string) error {
	text := driver.XPathLiteral(strings.Join(strings.Fields(label), " "))
	xpath := "./option[normalize-space(.)=" + text + "] | ./optgroup/option[normalize-space(.)=" + text + "]"
	options, err := do(ctx, func() ([]selenium.WebElement, error) { return e.we.FindElements(selenium.ByXPATH, xpath) })
	if err != nil && !errors.Is(err, driver.ErrNoSuchElement) {
		return err
	}
	if len(options) == 0 {
		return fmt.Errorf("%w: %q", driver.ErrNoSuchOption, label)
	}
	return doErr(ctx, options[0].Click)
}

func (e *element) Highlight(ctx context.Context) error {
	_, err := e.script(ctx, onElement(driver.HighlightFunction))
	return err
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	return do(ctx, e.we.IsDisplayed)
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	return do(ctx, e.we.IsEnabled)
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	return do(ctx, e.we.IsSelected)
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	raw, err := e.script(ctx, attributeScript, name)
	if err != nil {
		return "", false, err
	}
	var attr struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	if err := codec.Unmarshal(raw, &attr); err != nil {
		return "", false, fmt.Errorf("failed to decode attribute: %w", err)
	}
	return attr.Value, attr.Present, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	return do(ctx, e.we.Text)
}

func (e *element) TagName(ctx context.Context) (string, error) {
	tag, err := do(ctx, e.we.TagName)
	return strings.ToLower(tag), err
}

func (e *element) ZIndex(ctx context.Context) (int, error) {
	raw, err := e.script(ctx, onElement(driver.ZIndexFunction))
	if err != nil {
		return 0, err
	}
	z := driver.BaselineZIndex
	if err := codec.Unmarshal(raw, &z); err != nil {
		return 0, fmt.Errorf("failed to decode z-index: %w", err)
	}
	return z, nil
}
