// Package locator describes how a test refers to an element and resolves
// those references into driver-native queries.
package locator

import (
	"fmt"
	"strings"
)

// Locator is one of ByID, ByXPath, ByCSS, ByLabel or *Alternatives. Other
// implementations are rejected by the Resolver as unsupported.
type Locator interface {
	String() string
}

// ByID matches elements whose id ends with the given value.
type ByID string

// ByXPath is used verbatim as an XPath expression.
type ByXPath string

// ByCSS is used verbatim as a CSS selector.
type ByCSS string

// ByLabel matches a link by its visible text.
type ByLabel string

func (l ByID) String() string    { return "id:" + string(l) }
func (l ByXPath) String() string { return "xpath:" + string(l) }
func (l ByCSS) String() string   { return "css:" + string(l) }
func (l ByLabel) String() string { return "label:" + string(l) }

// Alternatives is an ordered list of leaf locators for the same element. The
// first option that matches becomes the sticky binding kept in the Resolver's
// Cache. Identity matters: bindings are keyed by the *Alternatives pointer.
type Alternatives struct {
	Name    string
	Options []Locator
}

// NewAlternatives builds an alternatives locator.
func NewAlternatives(name string, options ...Locator) *Alternatives {
	return &Alternatives{Name: name, Options: options}
}

func (a *Alternatives) String() string {
	parts := make([]string, len(a.Options))
	for i, o := range a.Options {
		parts[i] = o.String()
	}
	if a.Name == "" {
		return fmt.Sprintf("alternatives[%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s[%s]", a.Name, strings.Join(parts, ", "))
}
