// Package webdriver drives browsers through a Selenium/WebDriver server.
package webdriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tebeka/selenium"
	"go.uber.org/zap"

	"github.com/aludratest/aludra/internal/driver"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Legacy JSON wire protocol status codes.
const (
	legacyNoSuchElement = 7
	legacyStaleElement  = 10
)

// translate maps WebDriver errors onto the driver sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var se *selenium.Error
	if errors.As(err, &se) {
		switch {
		case se.Err == "no such element" || se.LegacyCode == legacyNoSuchElement:
			return fmt.Errorf("%w: %s", driver.ErrNoSuchElement, se.Message)
		case se.Err == "stale element reference" || se.LegacyCode == legacyStaleElement:
			return fmt.Errorf("%w: %s", driver.ErrStaleElement, se.Message)
		}
		return err
	}
	// Some servers only report the condition in the message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "stale element reference"):
		return fmt.Errorf("%w: %s", driver.ErrStaleElement, msg)
	case strings.Contains(msg, "no such element"):
		return fmt.Errorf("%w: %s", driver.ErrNoSuchElement, msg)
	}
	return err
}

// do runs a blocking WebDriver call, giving up when ctx ends. The call itself
// cannot be aborted and finishes in the background.
func do[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, translate(r.err)
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func doErr(ctx context.Context, call func() error) error {
	_, err := do(ctx, func() (struct{}, error) { return struct{}{}, call() })
	return err
}

// Driver is one WebDriver session.
type Driver struct {
	wd     selenium.WebDriver
	logger *zap.Logger
	onQuit func()

	mu           sync.Mutex
	implicitWait time.Duration
	closed       bool
}

var _ driver.Driver = (*Driver)(nil)

// New wraps an open WebDriver session. onQuit, if set, runs once after Close.
func New(wd selenium.WebDriver, logger *zap.Logger, onQuit func()) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{wd: wd, logger: logger, onQuit: onQuit}
}

func (d *Driver) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrClosed
	}
	return nil
}

func by(q driver.Query) (string, error) {
	switch q.Strategy {
	case driver.StrategyCSS:
		return selenium.ByCSSSelector, nil
	case driver.StrategyXPath:
		return selenium.ByXPATH, nil
	case driver.StrategyLinkText:
		return selenium.ByLinkText, nil
	}
	return "", fmt.Errorf("%w: strategy %q", driver.ErrUnsupported, q.Strategy)
}

func (d *Driver) FindElement(ctx context.Context, q driver.Query) (driver.Element, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	using, err := by(q)
	if err != nil {
		return nil, err
	}
	we, err := do(ctx, func() (selenium.WebElement, error) { return d.wd.FindElement(using, q.Value) })
	if err != nil {
		return nil, err
	}
	return &element{d: d, we: we}, nil
}

func (d *Driver) FindElements(ctx context.Context, q driver.Query) ([]driver.Element, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	using, err := by(q)
	if err != nil {
		return nil, err
	}
	wes, err := do(ctx, func() ([]selenium.WebElement, error) { return d.wd.FindElements(using, q.Value) })
	if errors.Is(err, driver.ErrNoSuchElement) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	els := make([]driver.Element, 0, len(wes))
	for _, we := range wes {
		els = append(els, &element{d: d, we: we})
	}
	return els, nil
}

func (d *Driver) ImplicitWait() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.implicitWait
}

func (d *Driver) SetImplicitWait(ctx context.Context, w time.Duration) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if err := doErr(ctx, func() error { return d.wd.SetImplicitWaitTimeout(w) }); err != nil {
		return err
	}
	d.mu.Lock()
	d.implicitWait = w
	d.mu.Unlock()
	return nil
}

// script runs body with args and returns the JSON encoded value of the response.
func (d *Driver) script(ctx context.Context, body string, args []interface{}) (json.RawMessage, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if args == nil {
		args = []interface{}{}
	}
	raw, err := do(ctx, func() ([]byte, error) { return d.wd.ExecuteScriptRaw(body, args) })
	if err != nil {
		return nil, err
	}
	var reply struct {
		Value json.RawMessage `json:"value"`
	}
	if err := codec.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode script response: %w", err)
	}
	if len(reply.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return reply.Value, nil
}

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error) {
	return d.script(ctx, script, args)
}

// Windows lists every window with its title. The current window is restored afterwards.
func (d *Driver) Windows(ctx context.Context) ([]driver.Window, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	return do(ctx, func() ([]driver.Window, error) {
		current, err := d.wd.CurrentWindowHandle()
		if err != nil {
			return nil, err
		}
		handles, err := d.wd.WindowHandles()
		if err != nil {
			return nil, err
		}
		windows := make([]driver.Window, 0, len(handles))
		for _, h := range handles {
			if err := d.wd.SwitchWindow(h); err != nil {
				return nil, err
			}
			title, err := d.wd.Title()
			if err != nil {
				return nil, err
			}
			windows = append(windows, driver.Window{Handle: h, Title: title})
		}
		if err := d.wd.SwitchWindow(current); err != nil {
			return nil, err
		}
		return windows, nil
	})
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	return do(ctx, d.wd.Screenshot)
}

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	if err := d.checkOpen(); err != nil {
		return "", err
	}
	return do(ctx, d.wd.PageSource)
}

func (d *Driver) MaxZIndex(ctx context.Context) (int, error) {
	raw, err := d.script(ctx, "return "+driver.MaxZIndexScript+";", nil)
	if err != nil {
		return 0, err
	}
	top := driver.BaselineZIndex
	if err := codec.Unmarshal(raw, &top); err != nil {
		return 0, fmt.Errorf("failed to decode z-index: %w", err)
	}
	if top < driver.BaselineZIndex {
		top = driver.BaselineZIndex
	}
	return top, nil
}

// Close quits the WebDriver session.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return driver.ErrClosed
	}
	d.closed = true
	d.mu.Unlock()

	err := doErr(ctx, d.wd.Quit)
	if d.onQuit != nil {
		d.onQuit()
	}
	if err != nil {
		return fmt.Errorf("failed to quit session: %w", err)
	}
	return nil
}
