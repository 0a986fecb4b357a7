// Package uimap loads named element locators from an XML document:
//
//	<uimap>
//	  <element name="save"><id>form:save</id></element>
//	  <element name="login">
//	    <alternatives>
//	      <css>#login</css>
//	      <label>Sign in</label>
//	    </alternatives>
//	  </element>
//	</uimap>
//
// Leaf tags are id, xpath, css and label.
package uimap

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/mitchellh/go-homedir"

	"github.com/aludratest/aludra/internal/fault"
	"github.com/aludratest/aludra/internal/locator"
)

const (
	rootTag         = "uimap"
	elementTag      = "element"
	alternativesTag = "alternatives"
)

// Map is an immutable set of named locators. Alternatives are created once per
// map, so their sticky bindings are shared by every Get of the same name.
type Map struct {
	entries map[string]locator.Locator
	names   []string
}

// Load parses a UI map document.
func Load(r io.Reader) (*Map, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fault.NewTechnical(err, "Failed to read UI map")
	}
	return parse(doc)
}

// LoadFile parses the UI map at path. A leading ~ is expanded.
func LoadFile(path string) (*Map, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fault.NewTechnical(err, "Failed to resolve UI map path %s", path)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(expanded); err != nil {
		return nil, fault.NewTechnical(err, "Failed to read UI map %s", expanded)
	}
	return parse(doc)
}

func parse(doc *etree.Document) (*Map, error) {
	root := doc.Root()
	if root == nil || root.Tag != rootTag {
		return nil, fault.NewAutomation("UI map root element must be <%s>", rootTag)
	}

	m := &Map{entries: make(map[string]locator.Locator)}
	for _, el := range root.ChildElements() {
		if el.Tag != elementTag {
			return nil, fault.NewAutomation("Unexpected <%s> in UI map, only <%s> is allowed", el.Tag, elementTag)
		}
		name := strings.TrimSpace(el.SelectAttrValue("name", ""))
		if name == "" {
			return nil, fault.NewAutomation("UI map element at %s has no name", el.GetPath())
		}
		if _, dup := m.entries[name]; dup {
			return nil, fault.NewAutomation("UI map element %q is defined twice", name)
		}

		defs := el.ChildElements()
		if len(defs) != 1 {
			return nil, fault.NewAutomation("UI map element %q needs exactly one locator, found %d", name, len(defs))
		}
		loc, err := definition(name, defs[0])
		if err != nil {
			return nil, err
		}
		m.entries[name] = loc
		m.names = append(m.names, name)
	}
	return m, nil
}

func definition(name string, el *etree.Element) (locator.Locator, error) {
	if el.Tag != alternativesTag {
		return leaf(name, el)
	}
	children := el.ChildElements()
	if len(children) == 0 {
		return nil, fault.NewAutomation("UI map element %q has empty alternatives", name)
	}
	options := make([]locator.Locator, 0, len(children))
	for _, child := range children {
		if child.Tag == alternativesTag {
			return nil, fault.NewAutomation("UI map element %q nests alternatives", name)
		}
		loc, err := leaf(name, child)
		if err != nil {
			return nil, err
		}
		options = append(options, loc)
	}
	return locator.NewAlternatives(name, options...), nil
}

func leaf(name string, el *etree.Element) (locator.Locator, error) {
	value := strings.TrimSpace(el.Text())
	if value == "" {
		return nil, fault.NewAutomation("UI map element %q has an empty <%s>", name, el.Tag)
	}
	switch el.Tag {
	case "id":
		return locator.ByID(value), nil
	case "xpath":
		return locator.ByXPath(value), nil
	case "css":
		return locator.ByCSS(value), nil
	case "label":
		return locator.ByLabel(value), nil
	}
	return nil, fault.NewAutomation("UI map element %q uses unknown locator kind <%s>", name, el.Tag)
}

// Get returns the locator registered under name.
func (m *Map) Get(name string) (locator.Locator, error) {
	loc, ok := m.entries[name]
	if !ok {
		return nil, fault.NewAutomation("No UI map element named %q", name)
	}
	return loc, nil
}

// Names lists the element names in document order.
func (m *Map) Names() []string {
	return append([]string(nil), m.names...)
}

// String renders a one-line summary, mostly for logs.
func (m *Map) String() string {
	return fmt.Sprintf("uimap(%d elements)", len(m.names))
}
