// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver"
	"github.com/stretchr/testify/mock"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Wait() config.WaitConfig {
	args := m.Called()
	return args.Get(0).(config.WaitConfig)
}

func (m *MockConfig) Locator() config.LocatorConfig {
	args := m.Called()
	return args.Get(0).(config.LocatorConfig)
}

func (m *MockConfig) Driver() config.DriverConfig {
	args := m.Called()
	return args.Get(0).(config.DriverConfig)
}

func (m *MockConfig) Pool() config.PoolConfig {
	args := m.Called()
	return args.Get(0).(config.PoolConfig)
}

func (m *MockConfig) Proxy() config.ProxyConfig {
	args := m.Called()
	return args.Get(0).(config.ProxyConfig)
}

// --- Setters ---

func (m *MockConfig) SetWaitTimeout(d time.Duration) {
	m.Called(d)
}

func (m *MockConfig) SetHighlightCommands(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetDriverKind(kind string) {
	m.Called(kind)
}

func (m *MockConfig) SetDriverEndpoints(endpoints []string) {
	m.Called(endpoints)
}

// -- Driver Mocks --

// MockDriver mocks the driver.Driver interface.
type MockDriver struct {
	mock.Mock
}

var _ driver.Driver = (*MockDriver)(nil)

func (m *MockDriver) FindElement(ctx context.Context, q driver.Query) (driver.Element, error) {
	args := m.Called(ctx, q)
	if el := args.Get(0); el != nil {
		return el.(driver.Element), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) FindElements(ctx context.Context, q driver.Query) ([]driver.Element, error) {
	args := m.Called(ctx, q)
	if els := args.Get(0); els != nil {
		return els.([]driver.Element), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) ImplicitWait() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockDriver) SetImplicitWait(ctx context.Context, d time.Duration) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDriver) ExecuteScript(ctx context.Context, script string, scriptArgs ...interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, script, scriptArgs)
	if raw := args.Get(0); raw != nil {
		return raw.(json.RawMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) Windows(ctx context.Context) ([]driver.Window, error) {
	args := m.Called(ctx)
	if ws := args.Get(0); ws != nil {
		return ws.([]driver.Window), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDriver) PageSource(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) MaxZIndex(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockDriver) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockElement mocks the driver.Element interface.
type MockElement struct {
	mock.Mock
}

var _ driver.Element = (*MockElement)(nil)

func (m *MockElement) Click(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) DoubleClick(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) SendKeys(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockElement) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) Focus(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) SelectByLabel(ctx context.Context, label string) error {
	return m.Called(ctx, label).Error(0)
}

func (m *MockElement) Highlight(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) IsDisplayed(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) IsEnabled(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) IsSelected(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) TagName(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) ZIndex(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockFactory mocks driver.Factory.
type MockFactory struct {
	mock.Mock
}

var _ driver.Factory = (*MockFactory)(nil)

func (m *MockFactory) Start(ctx context.Context, endpoint string) (driver.Driver, error) {
	args := m.Called(ctx, endpoint)
	if d := args.Get(0); d != nil {
		return d.(driver.Driver), args.Error(1)
	}
	return nil, args.Error(1)
}

// -- System Connector Mock --

// MockSystemConnector mocks the busy-signal collaborator consulted around actions.
type MockSystemConnector struct {
	mock.Mock
}

func (m *MockSystemConnector) IsBusy(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}
