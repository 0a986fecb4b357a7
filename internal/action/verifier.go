package action

import (
	"context"
	"time"

	"github.com/aludratest/aludra/internal/fault"
	"github.com/aludratest/aludra/internal/locator"
	"github.com/aludratest/aludra/internal/retry"
	"github.com/aludratest/aludra/internal/wait"
)

// Verifier asserts page state. A condition that never holds is a failure of
// the system under test, so every wait timeout surfaces as a functional fault.
type Verifier struct {
	engine *wait.Engine
}

// NewVerifier creates a verifier on top of a wait engine.
func NewVerifier(engine *wait.Engine) *Verifier {
	return &Verifier{engine: engine}
}

// AssertPresent waits until the element exists.
func (v *Verifier) AssertPresent(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	_, err := v.engine.Present(ctx, wait.Request{Locator: loc, Timeout: timeout})
	return fault.AsFunctional(err)
}

// AssertNotPresent waits until the element is gone.
func (v *Verifier) AssertNotPresent(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	return fault.AsFunctional(v.engine.NotPresent(ctx, wait.Request{Locator: loc, Timeout: timeout}))
}

// AssertVisible waits until the element is displayed.
func (v *Verifier) AssertVisible(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	return fault.AsFunctional(v.engine.Visible(ctx, wait.Request{Locator: loc, Timeout: timeout}))
}

// AssertEnabled waits until the element accepts input.
func (v *Verifier) AssertEnabled(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	return fault.AsFunctional(v.engine.Enabled(ctx, wait.Request{Locator: loc, Timeout: timeout}))
}

// AssertInForeground waits until the element's z-index reaches the page maximum.
func (v *Verifier) AssertInForeground(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	return fault.AsFunctional(v.engine.InForeground(ctx, wait.Request{Locator: loc, Timeout: timeout}))
}

// AssertWindowPresent waits until a window titled title is open.
func (v *Verifier) AssertWindowPresent(ctx context.Context, title string, timeout time.Duration) error {
	return fault.AsFunctional(v.engine.WindowPresent(ctx, title, timeout))
}

// AssertText waits until the element's text equals want.
func (v *Verifier) AssertText(ctx context.Context, loc locator.Locator, want string, timeout time.Duration) error {
	el, err := v.engine.Present(ctx, wait.Request{Locator: loc, Timeout: timeout})
	if err != nil {
		return fault.AsFunctional(err)
	}

	var got string
	ok, err := retry.Poll(ctx, v.engine.Finder().Policy().WithTimeout(timeout), func(ctx context.Context) (bool, error) {
		text, err := el.Text(ctx)
		if err != nil {
			return false, fault.Classify(err, loc)
		}
		got = text
		return got == want, nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return fault.NewFunctional(nil, "Expected text %q but found %q", want, got).WithLocator(loc)
	}
	return nil
}

// AssertChecked waits until the selection state of a checkbox, radio or option equals want.
func (v *Verifier) AssertChecked(ctx context.Context, loc locator.Locator, want bool, timeout time.Duration) error {
	el, err := v.engine.Present(ctx, wait.Request{Locator: loc, Timeout: timeout})
	if err != nil {
		return fault.AsFunctional(err)
	}

	ok, err := retry.Poll(ctx, v.engine.Finder().Policy().WithTimeout(timeout), func(ctx context.Context) (bool, error) {
		selected, err := el.IsSelected(ctx)
		if err != nil {
			return false, fault.Classify(err, loc)
		}
		return selected == want, nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return fault.NewFunctional(nil, "Expected checked state %t", want).WithLocator(loc)
	}
	return nil
}
