package element

import (
	"context"
	"errors"
	"sync"

	"github.com/aludratest/aludra/internal/driver"
	"github.com/aludratest/aludra/internal/locator"
	"go.uber.org/zap"
)

// LiveElement decorates a driver handle. When an operation reports
// driver.ErrStaleElement the locator is looked up again and the operation
// repeated, up to maxRelocations times per operation. After that the last
// staleness error is returned.
type LiveElement struct {
	finder         *Finder
	loc            locator.Locator
	maxRelocations int

	mu          sync.Mutex
	el          driver.Element
	relocations int
}

var _ driver.Element = (*LiveElement)(nil)

// Locator returns the locator the handle was found with.
func (e *LiveElement) Locator() locator.Locator { return e.loc }

// Relocations reports how often the handle has been relocated in total.
func (e *LiveElement) Relocations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.relocations
}

func (e *LiveElement) current() driver.Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.el
}

func (e *LiveElement) relocate(ctx context.Context) (bool, error) {
	lk, err := e.finder.Lookup(ctx, e.loc)
	if err != nil || !lk.Found {
		return false, err
	}
	e.mu.Lock()
	e.el = lk.Element
	e.relocations++
	e.mu.Unlock()
	return true, nil
}

func relocating[T any](ctx context.Context, e *LiveElement, op func(driver.Element) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(e.current())
		if err == nil || !errors.Is(err, driver.ErrStaleElement) {
			return v, err
		}
		if attempt >= e.maxRelocations {
			e.finder.logger.Debug("Giving up on stale element.", zap.Stringer("locator", e.loc), zap.Int("relocations", attempt))
			return zero, err
		}

		ok, lerr := e.relocate(ctx)
		if lerr != nil {
			return zero, lerr
		}
		if !ok {
			// Gone for good, the staleness error describes it best.
			return zero, err
		}
		e.finder.logger.Debug("Relocated stale element.", zap.Stringer("locator", e.loc), zap.Int("attempt", attempt+1))
	}
}

func relocatingErr(ctx context.Context, e *LiveElement, op func(driver.Element) error) error {
	_, err := relocating(ctx, e, func(el driver.Element) (struct{}, error) {
		return struct{}{}, op(el)
	})
	return err
}

func (e *LiveElement) Click(ctx context.Context) error {
	return relocatingErr(ctx, e, func(el driver.Element) error { return el.Click(ctx) })
}

func (e *LiveElement) DoubleClick(ctx context.Context) error {
	return relocatingErr(ctx, e, func(el driver.Element) error { return el.DoubleClick(ctx) })
}

func (e *LiveElement) SendKeys(ctx context.Context, text string) error {
	return relocatingErr(ctx, e, func(el driver.Element) error { return el.SendKeys(ctx, text) })
}

func (e *LiveElement) Clear(ctx context.Context) error {
	return relocatingErr(ctx, e, func(el driver.Element) error { return el.Clear(ctx) })
}

func (e *LiveElement) Focus(ctx context.Context) error {
	return relocatingErr(ctx, e, func(el driver.Element) error { return el.Focus(ctx) })
}

func (e *LiveElement) SelectByLabel(ctx context.Context, label string) error {
	return relocatingErr(ctx, e, func(el driver.Element) error { return el.SelectByLabel(ctx, label) })
}

func (e *LiveElement) Highlight(ctx context.Context) error {
	return relocatingErr(ctx, e, func(el driver.Element) error { return el.Highlight(ctx) })
}

func (e *LiveElement) IsDisplayed(ctx context.Context) (bool, error) {
	return relocating(ctx, e, func(el driver.Element) (bool, error) { return el.IsDisplayed(ctx) })
}

func (e *LiveElement) IsEnabled(ctx context.Context) (bool, error) {
	return relocating(ctx, e, func(el driver.Element) (bool, error) { return el.IsEnabled(ctx) })
}

func (e *LiveElement) IsSelected(ctx context.Context) (bool, error) {
	return relocating(ctx, e, func(el driver.Element) (bool, error) { return el.IsSelected(ctx) })
}

type attr struct {
	val     string
	present bool
}

func (e *LiveElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	a, err := relocating(ctx, e, func(el driver.Element) (attr, error) {
		v, ok, err := el.Attribute(ctx, name)
		return attr{v, ok}, err
	})
	return a.val, a.present, err
}

func (e *LiveElement) Text(ctx context.Context) (string, error) {
	return relocating(ctx, e, func(el driver.Element) (string, error) { return el.Text(ctx) })
}

func (e *LiveElement) TagName(ctx context.Context) (string, error) {
	return relocating(ctx, e, func(el driver.Element) (string, error) { return el.TagName(ctx) })
}

func (e *LiveElement) ZIndex(ctx context.Context) (int, error) {
	return relocating(ctx, e, func(el driver.Element) (int, error) { return el.ZIndex(ctx) })
}
