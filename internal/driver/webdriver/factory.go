package webdriver

import (
	"context"
	"fmt"
	"strings"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"go.uber.org/zap"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver"
)

// Factory opens sessions on Selenium servers. The endpoint is the server URL,
// e.g. http://grid:4444/wd/hub; driver.LocalEndpoint means the default local server.
type Factory struct {
	cfg     config.DriverConfig
	logger  *zap.Logger
	proxies driver.ProxySource
}

var _ driver.Factory = (*Factory)(nil)

// Option configures a Factory.
type Option func(*Factory)

// WithProxies routes every session through its own proxy.
func WithProxies(src driver.ProxySource) Option {
	return func(f *Factory) { f.proxies = src }
}

func NewFactory(cfg config.DriverConfig, logger *zap.Logger, opts ...Option) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{cfg: cfg, logger: logger.Named("webdriver")}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// capabilities builds the session request for the configured browser.
func capabilities(cfg config.DriverConfig, proxy string) selenium.Capabilities {
	caps := selenium.Capabilities{"browserName": cfg.BrowserName}
	if strings.EqualFold(cfg.BrowserName, "chrome") {
		args := []string{"--no-sandbox", "--disable-dev-shm-usage"}
		if cfg.Headless {
			args = append(args, "--headless=new")
		}
		for _, arg := range cfg.Args {
			if !strings.HasPrefix(arg, "--") {
				arg = "--" + arg
			}
			args = append(args, arg)
		}
		caps.AddChrome(chrome.Capabilities{Args: args, W3C: true})
	}
	if proxy != "" {
		caps.AddProxy(selenium.Proxy{Type: selenium.Manual, HTTP: proxy, SSL: proxy})
	}
	return caps
}

func (f *Factory) Start(ctx context.Context, endpoint string) (driver.Driver, error) {
	logger := f.logger.With(zap.String("endpoint", endpoint))

	var proxy string
	if f.proxies != nil {
		addr, err := f.proxies.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire proxy: %w", err)
		}
		proxy = addr
	}
	releaseProxy := func() {
		if proxy == "" {
			return
		}
		if err := f.proxies.Release(proxy); err != nil {
			logger.Warn("Failed to release proxy.", zap.String("proxy", proxy), zap.Error(err))
		}
	}

	url := endpoint
	if endpoint == driver.LocalEndpoint {
		url = ""
	}
	caps := capabilities(f.cfg, proxy)
	wd, err := do(ctx, func() (selenium.WebDriver, error) { return selenium.NewRemote(caps, url) })
	if err != nil {
		releaseProxy()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	d := New(wd, logger, releaseProxy)
	if f.cfg.ImplicitWait > 0 {
		if err := d.SetImplicitWait(ctx, f.cfg.ImplicitWait); err != nil {
			_ = d.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("failed to set implicit wait: %w", err)
		}
	}
	logger.Info("WebDriver session started.", zap.String("browser", f.cfg.BrowserName), zap.String("proxy", proxy))
	return d, nil
}
