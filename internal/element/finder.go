// Package element turns locators into live element handles. Lookups are
// immediate and guarded against a driver that stops answering; handles
// relocate themselves when the document changes underneath them.
package element

import (
	"context"
	"errors"
	"time"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver"
	"github.com/aludratest/aludra/internal/fault"
	"github.com/aludratest/aludra/internal/locator"
	"github.com/aludratest/aludra/internal/observability"
	"github.com/aludratest/aludra/internal/retry"
	"go.uber.org/zap"
)

// immediateAttempts is how often a single immediate lookup is tried when the
// driver does not answer within the response timeout.
const immediateAttempts = 2

// ErrDriverHung is the cause of the technical fault raised when every
// immediate lookup attempt ran into the response timeout.
var ErrDriverHung = errors.New("driver did not respond within the response timeout")

// Lookup is the outcome of one immediate lookup. Found is false when no
// candidate matched; that is an expected result, not an error.
type Lookup struct {
	Element driver.Element
	Query   driver.Query
	Found   bool
}

// Finder locates elements through a driver.
type Finder struct {
	drv             driver.Driver
	resolver        *locator.Resolver
	policy          retry.Policy
	responseTimeout time.Duration
	maxRelocations  int
	logger          *zap.Logger
}

// NewFinder creates a finder for one driver session.
func NewFinder(drv driver.Driver, resolver *locator.Resolver, cfg config.WaitConfig, logger *zap.Logger) *Finder {
	return &Finder{
		drv:             drv,
		resolver:        resolver,
		policy:          retry.Policy{Timeout: cfg.Timeout, Pause: cfg.PauseBetweenRetries},
		responseTimeout: cfg.ResponseTimeout,
		maxRelocations:  cfg.MaxRelocations,
		logger:          observability.ForComponent(logger, "finder"),
	}
}

// Driver returns the underlying driver.
func (f *Finder) Driver() driver.Driver { return f.drv }

// Resolver returns the locator resolver.
func (f *Finder) Resolver() *locator.Resolver { return f.resolver }

// Policy returns the configured wait policy.
func (f *Finder) Policy() retry.Policy { return f.policy }

// Lookup tries each candidate query of loc once. For an unbound Alternatives
// the first matching option becomes the sticky binding. Not finding anything is
// a result; any other lookup failure is returned as a fault.
func (f *Finder) Lookup(ctx context.Context, loc locator.Locator) (Lookup, error) {
	candidates, err := f.resolver.Candidates(loc)
	if err != nil {
		return Lookup{}, err
	}

	for _, c := range candidates {
		el, err := f.FindImmediately(ctx, c.Query)
		if errors.Is(err, driver.ErrNoSuchElement) {
			continue
		}
		if err != nil {
			return Lookup{}, fault.Classify(err, loc)
		}

		if alt, ok := loc.(*locator.Alternatives); ok {
			if _, bound := f.resolver.Cache().Get(alt); !bound {
				f.resolver.Cache().Set(alt, c.Option)
				f.logger.Debug("Bound alternative.", zap.Stringer("locator", alt), zap.Int("option", c.Option))
			}
		}
		return Lookup{Element: el, Query: c.Query, Found: true}, nil
	}
	return Lookup{}, nil
}

// FindImmediately runs a single lookup with the implicit wait disabled. A
// lookup that exceeds the response timeout is retried once; a second hang is a
// technical fault.
func (f *Finder) FindImmediately(ctx context.Context, q driver.Query) (driver.Element, error) {
	restore := f.disableImplicitWait(ctx)
	defer restore()

	for attempt := 1; attempt <= immediateAttempts; attempt++ {
		el, hung, err := f.guardedFind(ctx, q)
		if !hung {
			return el, err
		}
		f.logger.Warn("Driver did not answer lookup in time.",
			zap.Stringer("query", q),
			zap.Duration("response_timeout", f.responseTimeout),
			zap.Int("attempt", attempt))
	}
	return nil, fault.NewTechnical(ErrDriverHung, fault.MsgDriverNotResponding).WithLocator(q)
}

// guardedFind reports hung when the lookup outlived the response timeout while ctx is still live.
func (f *Finder) guardedFind(ctx context.Context, q driver.Query) (el driver.Element, hung bool, err error) {
	if f.responseTimeout <= 0 {
		el, err = f.drv.FindElement(ctx, q)
		return el, false, err
	}
	callCtx, cancel := context.WithTimeout(ctx, f.responseTimeout)
	defer cancel()

	type result struct {
		el  driver.Element
		err error
	}
	done := make(chan result, 1)
	go func() {
		el, err := f.drv.FindElement(callCtx, q)
		done <- result{el, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) {
			return nil, true, nil
		}
		if r.err != nil && ctx.Err() != nil {
			return nil, false, fault.NewTechnical(ctx.Err(), fault.MsgInterrupted)
		}
		return r.el, false, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, false, fault.NewTechnical(ctx.Err(), fault.MsgInterrupted)
		}
		return nil, true, nil
	}
}

func (f *Finder) disableImplicitWait(ctx context.Context) func() {
	prev := f.drv.ImplicitWait()
	if prev == 0 {
		return func() {}
	}
	if err := f.drv.SetImplicitWait(ctx, 0); err != nil {
		f.logger.Warn("Could not disable implicit wait for lookup.", zap.Error(err))
		return func() {}
	}
	return func() {
		if err := f.drv.SetImplicitWait(context.WithoutCancel(ctx), prev); err != nil {
			f.logger.Warn("Could not restore implicit wait.", zap.Error(err), zap.Duration("implicit_wait", prev))
		}
	}
}

// FindLive polls until loc is present and returns a relocating handle. A
// timeout of 0 uses the configured timeout. Not finding the element is an
// automation fault naming the full locator.
func (f *Finder) FindLive(ctx context.Context, loc locator.Locator, timeout time.Duration) (*LiveElement, error) {
	var found Lookup
	ok, err := retry.Poll(ctx, f.policy.WithTimeout(timeout), func(ctx context.Context) (bool, error) {
		lk, err := f.Lookup(ctx, loc)
		if err != nil {
			return false, err
		}
		found = lk
		return lk.Found, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.NewAutomation(fault.MsgNotFound).WithLocator(loc)
	}
	return f.Live(loc, found.Element), nil
}

// Live wraps an already located handle.
func (f *Finder) Live(loc locator.Locator, el driver.Element) *LiveElement {
	return &LiveElement{finder: f, loc: loc, el: el, maxRelocations: f.maxRelocations}
}
