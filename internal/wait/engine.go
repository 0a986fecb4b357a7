// Package wait blocks until element conditions hold. Every call runs its own
// small state machine: it starts in polling and ends in satisfied or timed_out,
// and a timed_out outcome is reported as an automation fault with a condition
// specific message.
package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aludratest/aludra/internal/driver"
	"github.com/aludratest/aludra/internal/element"
	"github.com/aludratest/aludra/internal/fault"
	"github.com/aludratest/aludra/internal/locator"
	"github.com/aludratest/aludra/internal/observability"
	"github.com/aludratest/aludra/internal/retry"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	StatePolling   = "polling"
	StateSatisfied = "satisfied"
	StateTimedOut  = "timed_out"

	eventSatisfy = "satisfy"
	eventExpire  = "expire"
)

// Request describes one wait.
type Request struct {
	Locator locator.Locator
	// Timeout overrides the configured timeout when positive.
	Timeout time.Duration
	// Link marks a navigational-link context; visibility and enablement are not checked.
	Link bool
}

// Engine evaluates wait conditions against one driver session.
type Engine struct {
	finder *element.Finder
	logger *zap.Logger
}

// New creates a wait engine.
func New(finder *element.Finder, logger *zap.Logger) *Engine {
	return &Engine{finder: finder, logger: observability.ForComponent(logger, "wait")}
}

// Finder returns the element finder the engine polls with.
func (e *Engine) Finder() *element.Finder { return e.finder }

func (e *Engine) newMachine(condition string, target fmt.Stringer) *fsm.FSM {
	return fsm.NewFSM(
		StatePolling,
		fsm.Events{
			{Name: eventSatisfy, Src: []string{StatePolling}, Dst: StateSatisfied},
			{Name: eventExpire, Src: []string{StatePolling}, Dst: StateTimedOut},
		},
		fsm.Callbacks{
			"enter_" + StateTimedOut: func(context.Context, *fsm.Event) {
				e.logger.Debug("Wait timed out.", zap.String("condition", condition), zap.Stringer("target", target))
			},
		},
	)
}

// run polls check and returns the final state.
func (e *Engine) run(ctx context.Context, condition string, target fmt.Stringer, timeout time.Duration, check func(ctx context.Context) (bool, error)) (string, error) {
	machine := e.newMachine(condition, target)

	ok, err := retry.Poll(ctx, e.finder.Policy().WithTimeout(timeout), check)
	if err != nil {
		return machine.Current(), err
	}

	event := eventExpire
	if ok {
		event = eventSatisfy
	}
	if err := machine.Event(ctx, event); err != nil {
		return machine.Current(), fault.NewTechnical(err, "Wait state transition failed")
	}
	return machine.Current(), nil
}

// onElement polls loc and applies probe to the element found in each tick.
// Ticks where the element is missing or went stale count as unsatisfied.
func (e *Engine) onElement(ctx context.Context, req Request, condition, failure string, probe func(ctx context.Context, el driver.Element) (bool, error)) (driver.Element, error) {
	var last driver.Element
	state, err := e.run(ctx, condition, req.Locator, req.Timeout, func(ctx context.Context) (bool, error) {
		lk, err := e.finder.Lookup(ctx, req.Locator)
		if err != nil || !lk.Found {
			return false, err
		}
		ok, err := probe(ctx, lk.Element)
		if transient(err) {
			return false, nil
		}
		if err != nil {
			return false, fault.Classify(err, req.Locator)
		}
		if ok {
			last = lk.Element
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	if state == StateTimedOut {
		return nil, fault.NewAutomation(failure).WithLocator(req.Locator)
	}
	return last, nil
}

func transient(err error) bool {
	return errors.Is(err, driver.ErrStaleElement) || errors.Is(err, driver.ErrNoSuchElement)
}

// Present waits until the element exists and returns a relocating handle to it.
func (e *Engine) Present(ctx context.Context, req Request) (*element.LiveElement, error) {
	el, err := e.onElement(ctx, req, "present", fault.MsgNotFound, func(context.Context, driver.Element) (bool, error) {
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return e.finder.Live(req.Locator, el), nil
}

// NotPresent waits until the element no longer exists.
func (e *Engine) NotPresent(ctx context.Context, req Request) error {
	state, err := e.run(ctx, "not_present", req.Locator, req.Timeout, func(ctx context.Context) (bool, error) {
		lk, err := e.finder.Lookup(ctx, req.Locator)
		if err != nil {
			return false, err
		}
		return !lk.Found, nil
	})
	if err != nil {
		return err
	}
	if state == StateTimedOut {
		return fault.NewAutomation(fault.MsgStillPresent).WithLocator(req.Locator)
	}
	return nil
}

// Visible waits until the element is displayed. Returns immediately for links.
func (e *Engine) Visible(ctx context.Context, req Request) error {
	if req.Link {
		return nil
	}
	_, err := e.onElement(ctx, req, "visible", fault.MsgNotVisible, func(ctx context.Context, el driver.Element) (bool, error) {
		return el.IsDisplayed(ctx)
	})
	return err
}

// Enabled waits until the element is enabled and, for input-like elements,
// not read-only. Returns immediately for links.
func (e *Engine) Enabled(ctx context.Context, req Request) error {
	if req.Link {
		return nil
	}
	_, err := e.onElement(ctx, req, "enabled", fault.MsgNotEditable, Editable)
	return err
}

// Editable reports whether el accepts user input.
func Editable(ctx context.Context, el driver.Element) (bool, error) {
	enabled, err := el.IsEnabled(ctx)
	if err != nil || !enabled {
		return false, err
	}
	tag, err := el.TagName(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(tag) {
	case "input", "textarea":
		_, readonly, err := el.Attribute(ctx, "readonly")
		if err != nil {
			return false, err
		}
		return !readonly, nil
	}
	return true, nil
}

// InForeground waits until the element's effective z-index reaches the page maximum.
func (e *Engine) InForeground(ctx context.Context, req Request) error {
	_, err := e.onElement(ctx, req, "in_foreground", fault.MsgNotInForeground, e.inForeground)
	return err
}

func (e *Engine) inForeground(ctx context.Context, el driver.Element) (bool, error) {
	top, err := e.finder.Driver().MaxZIndex(ctx)
	if errors.Is(err, driver.ErrUnsupported) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	z, err := el.ZIndex(ctx)
	if errors.Is(err, driver.ErrUnsupported) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return z >= top, nil
}

type windowTitle string

func (w windowTitle) String() string { return "title:" + string(w) }

// WindowPresent waits until a window with the given title is open.
func (e *Engine) WindowPresent(ctx context.Context, title string, timeout time.Duration) error {
	target := windowTitle(title)
	state, err := e.run(ctx, "window_present", target, timeout, func(ctx context.Context) (bool, error) {
		windows, err := e.finder.Driver().Windows(ctx)
		if err != nil {
			return false, fault.Classify(err, target)
		}
		for _, w := range windows {
			if w.Title == title {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if state == StateTimedOut {
		return fault.NewAutomation(fault.MsgWindowNotFound).WithLocator(target)
	}
	return nil
}
