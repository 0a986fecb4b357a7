package uimap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aludratest/aludra/internal/fault"
	"github.com/aludratest/aludra/internal/locator"
)

const checkout = `<?xml version="1.0"?>
<uimap>
  <element name="pay"><id>form:pay</id></element>
  <element name="total"><xpath>//span[@id='total']</xpath></element>
  <element name="currency"><css>select#currency</css></element>
  <element name="help"><label>Need help?</label></element>
  <element name="submit">
    <alternatives>
      <css>#submit</css>
      <id>send</id>
    </alternatives>
  </element>
</uimap>`

func TestLoad(t *testing.T) {
	m, err := Load(strings.NewReader(checkout))
	require.NoError(t, err)
	assert.Equal(t, []string{"pay", "total", "currency", "help", "submit"}, m.Names())

	tests := []struct {
		name string
		want locator.Locator
	}{
		{"pay", locator.ByID("form:pay")},
		{"total", locator.ByXPath("//span[@id='total']")},
		{"currency", locator.ByCSS("select#currency")},
		{"help", locator.ByLabel("Need help?")},
	}
	for _, tc := range tests {
		got, err := m.Get(tc.name)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}

	got, err := m.Get("submit")
	require.NoError(t, err)
	alt, ok := got.(*locator.Alternatives)
	require.True(t, ok)
	assert.Equal(t, "submit", alt.Name)
	assert.Equal(t, []locator.Locator{locator.ByCSS("#submit"), locator.ByID("send")}, alt.Options)

	again, _ := m.Get("submit")
	assert.Same(t, alt, again, "alternatives keep their identity so sticky bindings survive")
	assert.Equal(t, "uimap(5 elements)", m.String())
}

func TestGetUnknown(t *testing.T) {
	m, err := Load(strings.NewReader(checkout))
	require.NoError(t, err)
	_, err = m.Get("cancel")
	require.Error(t, err)
	assert.True(t, fault.IsAutomation(err))
}

func TestLoadRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"wrong root", `<map/>`, "root element must be <uimap>"},
		{"stray tag", `<uimap><field name="a"><id>a</id></field></uimap>`, "Unexpected <field>"},
		{"no name", `<uimap><element><id>a</id></element></uimap>`, "has no name"},
		{"duplicate", `<uimap><element name="a"><id>a</id></element><element name="a"><id>b</id></element></uimap>`, "defined twice"},
		{"empty element", `<uimap><element name="a"/></uimap>`, "needs exactly one locator, found 0"},
		{"two locators", `<uimap><element name="a"><id>a</id><css>b</css></element></uimap>`, "found 2"},
		{"empty leaf", `<uimap><element name="a"><id>  </id></element></uimap>`, "empty <id>"},
		{"unknown kind", `<uimap><element name="a"><name>q</name></element></uimap>`, "unknown locator kind <name>"},
		{"empty alternatives", `<uimap><element name="a"><alternatives/></element></uimap>`, "empty alternatives"},
		{"nested alternatives", `<uimap><element name="a"><alternatives><alternatives><id>x</id></alternatives></alternatives></element></uimap>`, "nests alternatives"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.doc))
			require.Error(t, err)
			assert.True(t, fault.IsAutomation(err), "got %v", err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestLoadMalformedIsTechnical(t *testing.T) {
	_, err := Load(strings.NewReader(`<uimap><element`))
	require.Error(t, err)
	assert.True(t, fault.IsTechnical(err))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkout.xml")
	require.NoError(t, os.WriteFile(path, []byte(checkout), 0o600))

	m, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, m.Names(), 5)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
	assert.True(t, fault.IsTechnical(err))
}
