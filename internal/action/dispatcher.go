// Package action performs user interactions on elements. Every interaction
// first synchronizes with the page and the system under test, then invokes
// the driver primitive and finally waits for the task it triggered.
package action

import (
	"context"
	"errors"
	"time"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver"
	"github.com/aludratest/aludra/internal/element"
	"github.com/aludratest/aludra/internal/fault"
	"github.com/aludratest/aludra/internal/locator"
	"github.com/aludratest/aludra/internal/observability"
	"github.com/aludratest/aludra/internal/retry"
	"github.com/aludratest/aludra/internal/wait"
	"go.uber.org/zap"
)

// NoCompletionWait skips waiting for the task an action triggers. A
// completion timeout of 0 selects the configured default.
const NoCompletionWait time.Duration = -1

// SystemConnector reports whether the system under test is busy.
type SystemConnector interface {
	IsBusy(ctx context.Context) (bool, error)
}

// interaction tunes the synchronization steps of one action.
type interaction struct {
	name        string
	link        bool
	skipVisible bool
	skipEnabled bool
}

// Dispatcher runs interactions against one driver session.
type Dispatcher struct {
	engine    *wait.Engine
	connector SystemConnector
	cfg       config.WaitConfig
	diag      *Diagnostics
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher. connector may be nil.
func NewDispatcher(engine *wait.Engine, cfg config.WaitConfig, connector SystemConnector, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		engine:    engine,
		connector: connector,
		cfg:       cfg,
		logger:    observability.ForComponent(logger, "dispatcher"),
	}
}

// SetDiagnostics attaches failure capture. nil disables it.
func (d *Dispatcher) SetDiagnostics(diag *Diagnostics) {
	d.diag = diag
}

func (d *Dispatcher) perform(ctx context.Context, in interaction, loc locator.Locator, completion time.Duration, op func(ctx context.Context, el *element.LiveElement) error) (err error) {
	log := d.logger.With(zap.String("action", in.name), zap.Stringer("locator", loc))
	defer func() {
		if err != nil {
			log.Debug("Action failed.", zap.Error(err))
			d.diag.Capture(ctx, in.name, loc)
		}
	}()

	if err := d.awaitNotBusy(ctx, d.cfg.Timeout); err != nil {
		return err
	}

	req := wait.Request{Locator: loc, Link: in.link}
	el, err := d.engine.Present(ctx, req)
	if err != nil {
		return err
	}
	if err := d.engine.InForeground(ctx, req); err != nil {
		return err
	}
	if !in.skipVisible {
		if err := d.engine.Visible(ctx, req); err != nil {
			return err
		}
	}
	if !in.skipEnabled {
		if err := d.engine.Enabled(ctx, req); err != nil {
			return err
		}
	}

	if d.cfg.HighlightCommands {
		if herr := el.Highlight(ctx); herr != nil {
			log.Debug("Highlight failed, continuing.", zap.Error(herr))
		}
	}

	if err := op(ctx, el); err != nil {
		if errors.Is(err, driver.ErrNoSuchOption) {
			return fault.NewFunctional(err, "Option not found").WithLocator(loc)
		}
		return fault.Classify(err, loc)
	}
	log.Debug("Action performed.")

	return d.awaitCompletion(ctx, completion)
}

// awaitNotBusy waits until the connector reports idle. Without a connector it
// returns immediately.
func (d *Dispatcher) awaitNotBusy(ctx context.Context, timeout time.Duration) error {
	if d.connector == nil {
		return nil
	}
	idle, err := d.pollBusy(ctx, timeout, false)
	if err != nil {
		return err
	}
	if !idle {
		return fault.NewTechnical(nil, fault.MsgSystemNotAvailable)
	}
	return nil
}

// awaitCompletion waits for the task an action started: up to the task start
// timeout for the system to turn busy, then up to completion for it to be idle
// again. Never seeing the busy phase is fine.
func (d *Dispatcher) awaitCompletion(ctx context.Context, completion time.Duration) error {
	if d.connector == nil || completion < 0 {
		return nil
	}
	if completion == 0 {
		completion = d.cfg.TaskCompletionTimeout
	}

	if _, err := d.pollBusy(ctx, d.cfg.TaskStartTimeout, true); err != nil {
		return err
	}
	idle, err := d.pollBusy(ctx, completion, false)
	if err != nil {
		return err
	}
	if !idle {
		return fault.NewTechnical(nil, "System still busy after %s", completion)
	}
	return nil
}

func (d *Dispatcher) pollBusy(ctx context.Context, timeout time.Duration, want bool) (bool, error) {
	return retry.Poll(ctx, retry.Policy{Timeout: timeout, Pause: d.cfg.PauseBetweenRetries}, func(ctx context.Context) (bool, error) {
		busy, err := d.connector.IsBusy(ctx)
		if err != nil {
			return false, fault.NewTechnical(err, fault.MsgSystemNotAvailable)
		}
		return busy == want, nil
	})
}

// Click clicks an editable element.
func (d *Dispatcher) Click(ctx context.Context, loc locator.Locator, completion time.Duration) error {
	return d.perform(ctx, interaction{name: "click"}, loc, completion, func(ctx context.Context, el *element.LiveElement) error {
		return el.Click(ctx)
	})
}

// ClickNotEditable clicks an element that may be hidden, disabled or read-only.
// Only presence and foreground are awaited.
func (d *Dispatcher) ClickNotEditable(ctx context.Context, loc locator.Locator, completion time.Duration) error {
	return d.perform(ctx, interaction{name: "click_not_editable", skipVisible: true, skipEnabled: true}, loc, completion, func(ctx context.Context, el *element.LiveElement) error {
		return el.Click(ctx)
	})
}

// ClickLink clicks a navigational link without visibility and enablement checks.
func (d *Dispatcher) ClickLink(ctx context.Context, loc locator.Locator, completion time.Duration) error {
	return d.perform(ctx, interaction{name: "click_link", link: true}, loc, completion, func(ctx context.Context, el *element.LiveElement) error {
		return el.Click(ctx)
	})
}

// DoubleClick double-clicks an element.
func (d *Dispatcher) DoubleClick(ctx context.Context, loc locator.Locator, completion time.Duration) error {
	return d.perform(ctx, interaction{name: "double_click"}, loc, completion, func(ctx context.Context, el *element.LiveElement) error {
		return el.DoubleClick(ctx)
	})
}

// Type replaces the content of an input with text.
func (d *Dispatcher) Type(ctx context.Context, loc locator.Locator, text string, completion time.Duration) error {
	return d.perform(ctx, interaction{name: "type"}, loc, completion, func(ctx context.Context, el *element.LiveElement) error {
		if err := el.Clear(ctx); err != nil {
			return err
		}
		return el.SendKeys(ctx, text)
	})
}

// Select chooses the option with the given visible label.
func (d *Dispatcher) Select(ctx context.Context, loc locator.Locator, label string, completion time.Duration) error {
	return d.perform(ctx, interaction{name: "select"}, loc, completion, func(ctx context.Context, el *element.LiveElement) error {
		return el.SelectByLabel(ctx, label)
	})
}

// Focus moves the input focus to the element.
func (d *Dispatcher) Focus(ctx context.Context, loc locator.Locator) error {
	return d.perform(ctx, interaction{name: "focus"}, loc, NoCompletionWait, func(ctx context.Context, el *element.LiveElement) error {
		return el.Focus(ctx)
	})
}

// Text returns the text of a present element.
func (d *Dispatcher) Text(ctx context.Context, loc locator.Locator) (string, error) {
	el, err := d.engine.Present(ctx, wait.Request{Locator: loc})
	if err != nil {
		return "", err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", fault.Classify(err, loc)
	}
	return text, nil
}
