// Package proxy runs a pool of local passthrough proxies that add HTTP Basic
// credentials to every plain HTTP request, optionally chaining to an upstream proxy.
package proxy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/pool"
)

var (
	ErrAlreadyStarted = errors.New("proxy pool already started")
	ErrNotStarted     = errors.New("proxy pool not started")
)

const shutdownGracePeriod = 15 * time.Second

// Pool owns the proxy servers. Start it once from process startup and Close it on exit.
type Pool struct {
	cfg    config.ProxyConfig
	size   int
	logger *zap.Logger

	mu        sync.Mutex
	started   bool
	servers   []*http.Server
	addrs     []string
	endpoints *pool.Pool
	serving   sync.WaitGroup
}

// New prepares a pool. A configured size of 0 falls back to defaultSize.
func New(cfg config.ProxyConfig, defaultSize int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.Size
	if size <= 0 {
		size = defaultSize
	}
	if size <= 0 {
		size = 1
	}
	return &Pool{cfg: cfg, size: size, logger: logger.Named("proxy_pool")}
}

// proxyAuthorization returns the Proxy-Authorization value for an upstream URL with userinfo.
func proxyAuthorization(u *url.URL) string {
	if u.User == nil {
		return ""
	}
	pass, _ := u.User.Password()
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(u.User.Username()+":"+pass))
}

// newHandler builds one goproxy instance.
func newHandler(cfg config.ProxyConfig, logger *zap.Logger) (*goproxy.ProxyHttpServer, error) {
	gp := goproxy.NewProxyHttpServer()
	gp.Logger = zap.NewStdLog(logger.Named("goproxy"))

	if cfg.Upstream != "" {
		upstream, err := url.Parse(cfg.Upstream)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream proxy %q: %w", cfg.Upstream, err)
		}
		gp.Tr = &http.Transport{Proxy: http.ProxyURL(upstream)}
		auth := proxyAuthorization(upstream)
		gp.ConnectDial = gp.NewConnectDialToProxyWithHandler(upstream.String(), func(req *http.Request) {
			if auth != "" {
				req.Header.Set("Proxy-Authorization", auth)
			}
		})
	}

	gp.OnRequest().DoFunc(func(r *http.Request, _ *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		if cfg.Username != "" && r.Header.Get("Authorization") == "" {
			r.SetBasicAuth(cfg.Username, cfg.Password)
		}
		logger.Debug("Forwarding request.", zap.String("method", r.Method), zap.String("url", r.URL.String()))
		return r, nil
	})
	return gp, nil
}

// Start binds every proxy and begins serving. Ports are BasePort, BasePort+1, ...
// or free ports when BasePort is 0.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	listeners := make([]net.Listener, 0, p.size)
	closeAll := func() {
		for _, ln := range listeners {
			_ = ln.Close()
		}
	}

	for i := 0; i < p.size; i++ {
		port := 0
		if p.cfg.BasePort > 0 {
			port = p.cfg.BasePort + i
		}
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(p.cfg.ListenHost, strconv.Itoa(port)))
		if err != nil {
			closeAll()
			return fmt.Errorf("failed to bind proxy %d: %w", i, err)
		}
		listeners = append(listeners, ln)
	}

	servers := make([]*http.Server, 0, p.size)
	addrs := make([]string, 0, p.size)
	for _, ln := range listeners {
		addr := ln.Addr().String()
		logger := p.logger.With(zap.String("address", addr))
		handler, err := newHandler(p.cfg, logger)
		if err != nil {
			closeAll()
			return err
		}
		servers = append(servers, &http.Server{
			Handler:     handler,
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
			ErrorLog:    zap.NewStdLog(logger.Named("http_server")),
		})
		addrs = append(addrs, addr)
	}

	endpoints, err := pool.New(addrs, p.logger)
	if err != nil {
		closeAll()
		return err
	}

	for i, srv := range servers {
		ln := listeners[i]
		p.serving.Add(1)
		go func() {
			defer p.serving.Done()
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.logger.Error("Proxy server stopped with an error.", zap.String("address", ln.Addr().String()), zap.Error(err))
			}
		}()
	}

	p.servers, p.addrs, p.endpoints, p.started = servers, addrs, endpoints, true
	p.logger.Info("Proxy pool started.", zap.Strings("addresses", addrs), zap.Bool("upstream", p.cfg.Upstream != ""))
	return nil
}

// Addrs lists the proxy addresses in port order.
func (p *Pool) Addrs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.addrs...)
}

func (p *Pool) active() (*pool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil, ErrNotStarted
	}
	return p.endpoints, nil
}

// Acquire hands out an idle proxy address, blocking while all are in use.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	endpoints, err := p.active()
	if err != nil {
		return "", err
	}
	return endpoints.Acquire(ctx)
}

// Release returns a proxy address taken by Acquire.
func (p *Pool) Release(addr string) error {
	endpoints, err := p.active()
	if err != nil {
		return err
	}
	return endpoints.Release(addr)
}

// Close shuts every proxy down and waits for the serving goroutines.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	servers := p.servers
	p.servers, p.addrs, p.endpoints, p.started = nil, nil, nil, false
	p.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()

	var g errgroup.Group
	for _, srv := range servers {
		g.Go(func() error { return srv.Shutdown(shutdownCtx) })
	}
	err := g.Wait()
	p.serving.Wait()
	if err != nil {
		return fmt.Errorf("failed to shut proxy pool down: %w", err)
	}
	p.logger.Info("Proxy pool stopped.")
	return nil
}
