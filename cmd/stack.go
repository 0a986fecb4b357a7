package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver"
	"github.com/aludratest/aludra/internal/driver/cdp"
	"github.com/aludratest/aludra/internal/driver/webdriver"
	"github.com/aludratest/aludra/internal/pool"
	"github.com/aludratest/aludra/internal/proxy"
	"github.com/aludratest/aludra/internal/session"
)

// newFactory selects the driver implementation named by cfg.Kind. proxies may be nil.
func newFactory(cfg config.DriverConfig, logger *zap.Logger, proxies driver.ProxySource) (driver.Factory, error) {
	switch cfg.Kind {
	case config.DriverCDP:
		var opts []cdp.Option
		if proxies != nil {
			opts = append(opts, cdp.WithProxies(proxies))
		}
		return cdp.NewFactory(cfg, logger, opts...), nil
	case config.DriverWebDriver:
		var opts []webdriver.Option
		if proxies != nil {
			opts = append(opts, webdriver.WithProxies(proxies))
		}
		return webdriver.NewFactory(cfg, logger, opts...), nil
	}
	return nil, fmt.Errorf("unknown driver kind %q", cfg.Kind)
}

// stack is the process wide runtime: the optional proxy pool, the endpoint
// pool and the session manager built on top of them.
type stack struct {
	proxies *proxy.Pool
	manager *session.Manager
	logger  *zap.Logger
}

// newStack wires the runtime from cfg. The caller must call shutdown.
func newStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stack, error) {
	s := &stack{logger: logger}

	var src driver.ProxySource
	if cfg.Proxy().Enabled {
		s.proxies = proxy.New(cfg.Proxy(), len(cfg.Driver().Endpoints), logger)
		if err := s.proxies.Start(ctx); err != nil {
			return nil, err
		}
		src = s.proxies
	}

	factory, err := newFactory(cfg.Driver(), logger, src)
	if err != nil {
		s.closeProxies(ctx)
		return nil, err
	}
	endpoints, err := pool.New(cfg.Driver().Endpoints, logger)
	if err != nil {
		s.closeProxies(ctx)
		return nil, err
	}
	s.manager = session.NewManager(cfg, factory, endpoints, logger)
	return s, nil
}

func (s *stack) closeProxies(ctx context.Context) {
	if s.proxies == nil {
		return
	}
	if err := s.proxies.Close(ctx); err != nil {
		s.logger.Warn("Proxy pool did not shut down cleanly.", zap.Error(err))
	}
}

// shutdown closes every open session, then the proxies.
func (s *stack) shutdown(ctx context.Context) error {
	err := s.manager.Shutdown(ctx)
	s.closeProxies(ctx)
	return err
}
