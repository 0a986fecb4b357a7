package cdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver"
)

// Factory starts Chrome tabs, either by launching a local browser or by
// attaching to a DevTools endpoint.
type Factory struct {
	cfg     config.DriverConfig
	logger  *zap.Logger
	proxies driver.ProxySource
}

var _ driver.Factory = (*Factory)(nil)

// Option configures a Factory.
type Option func(*Factory)

// WithProxies routes every locally launched browser through its own proxy.
func WithProxies(src driver.ProxySource) Option {
	return func(f *Factory) { f.proxies = src }
}

func NewFactory(cfg config.DriverConfig, logger *zap.Logger, opts ...Option) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{cfg: cfg, logger: logger.Named("cdp")}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// execOptions translates the driver configuration into allocator options.
func execOptions(cfg config.DriverConfig, proxy string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(key, value))
			continue
		}
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// Start opens a tab on endpoint. The browser is launched or attached with a
// background lifetime; ctx only bounds the start itself.
func (f *Factory) Start(ctx context.Context, endpoint string) (driver.Driver, error) {
	logger := f.logger.With(zap.String("endpoint", endpoint))

	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
		proxy       string
	)
	if endpoint == driver.LocalEndpoint {
		if f.proxies != nil {
			addr, err := f.proxies.Acquire(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to acquire proxy: %w", err)
			}
			proxy = addr
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), execOptions(f.cfg, proxy)...)
	} else {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), endpoint)
	}
	if proxy != "" {
		releaseAlloc := cancelAlloc
		cancelAlloc = func() {
			releaseAlloc()
			if err := f.proxies.Release(proxy); err != nil {
				logger.Warn("Failed to release proxy.", zap.String("proxy", proxy), zap.Error(err))
			}
		}
	}

	tab, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	// The first Run starts the browser and must use the tab context itself.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tab) }()

	select {
	case err := <-started:
		if err != nil {
			cancelTab()
			cancelAlloc()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-ctx.Done():
		cancelTab()
		cancelAlloc()
		<-started
		return nil, fmt.Errorf("browser start interrupted: %w", ctx.Err())
	}

	logger.Info("Browser tab started.", zap.String("proxy", proxy))
	return &Driver{
		tab:          tab,
		cancelTab:    cancelTab,
		cancelAlloc:  cancelAlloc,
		logger:       logger,
		implicitWait: f.cfg.ImplicitWait,
	}, nil
}
