// Package fault implements the three-tier failure taxonomy every public
// operation reports through.
package fault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aludratest/aludra/internal/driver"
)

// Tier indicates who is to blame for a failure.
type Tier int

const (
	// Technical is an environment or framework defect. It carries the full cause chain.
	Technical Tier = iota + 1
	// Automation is a test-authoring or configuration defect.
	Automation
	// Functional is misbehaviour of the system under test.
	Functional
)

func (t Tier) String() string {
	switch t {
	case Technical:
		return "technical"
	case Automation:
		return "automation"
	case Functional:
		return "functional"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Messages surfaced to test authors.
const (
	MsgNotFound            = "Element not found"
	MsgStillPresent        = "Element still present"
	MsgNotVisible          = "The element is not visible."
	MsgNotEditable         = "Element not editable."
	MsgNotInForeground     = "Element not in foreground."
	MsgWindowNotFound      = "Window not found"
	MsgSystemNotAvailable  = "System not available"
	MsgUnsupportedLocator  = "Unsupported locator"
	MsgInterrupted         = "Wait interrupted"
	MsgDriverNotResponding = "Driver not responding"
)

// Fault is a tiered error. Locator is the string form of the locator the
// failing operation targeted, if any.
type Fault struct {
	Tier    Tier
	Message string
	Locator string
	Err     error
}

func (f *Fault) Error() string {
	msg := f.Message
	if f.Locator != "" || f.Err != nil {
		msg = strings.TrimSuffix(msg, ".")
	}
	if f.Locator != "" {
		msg = fmt.Sprintf("%s: %s", msg, f.Locator)
	}
	if f.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Err)
	}
	return msg
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// WithLocator returns a copy of f annotated with loc.
func (f *Fault) WithLocator(loc fmt.Stringer) *Fault {
	c := *f
	if loc != nil {
		c.Locator = loc.String()
	}
	return &c
}

// NewTechnical wraps cause as a technical fault.
func NewTechnical(cause error, format string, args ...interface{}) *Fault {
	return &Fault{Tier: Technical, Message: fmt.Sprintf(format, args...), Err: cause}
}

// NewAutomation reports a test-authoring defect.
func NewAutomation(format string, args ...interface{}) *Fault {
	return &Fault{Tier: Automation, Message: fmt.Sprintf(format, args...)}
}

// NewFunctional reports misbehaviour of the system under test.
func NewFunctional(cause error, format string, args ...interface{}) *Fault {
	return &Fault{Tier: Functional, Message: fmt.Sprintf(format, args...), Err: cause}
}

// TierOf returns the tier of the outermost Fault in err's chain.
func TierOf(err error) (Tier, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Tier, true
	}
	return 0, false
}

// IsTechnical is a convenience checker for Technical.
func IsTechnical(err error) bool {
	t, ok := TierOf(err)
	return ok && t == Technical
}

// IsAutomation is a convenience checker for Automation.
func IsAutomation(err error) bool {
	t, ok := TierOf(err)
	return ok && t == Automation
}

// IsFunctional is a convenience checker for Functional.
func IsFunctional(err error) bool {
	t, ok := TierOf(err)
	return ok && t == Functional
}

// AsFunctional reclassifies an automation fault as functional. Used by
// assertion-style verification, where a timeout means the system under test
// did not reach the asserted state. Other errors are returned unchanged.
func AsFunctional(err error) error {
	var f *Fault
	if !errors.As(err, &f) || f.Tier != Automation {
		return err
	}
	c := *f
	c.Tier = Functional
	return &c
}

// Classify maps a raw error from a driver primitive into the taxonomy.
// Faults pass through unchanged. Staleness and not-found during an action are
// functional; everything else is technical.
func Classify(err error, loc fmt.Stringer) error {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return err
	}
	var out *Fault
	switch {
	case errors.Is(err, driver.ErrNoSuchElement):
		out = NewFunctional(err, MsgNotFound)
	case errors.Is(err, driver.ErrStaleElement):
		out = NewFunctional(err, "Element became stale")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out = NewTechnical(err, MsgInterrupted)
	default:
		out = NewTechnical(err, "Driver operation failed")
	}
	return out.WithLocator(loc)
}
