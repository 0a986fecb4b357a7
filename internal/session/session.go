// Package session binds a pooled endpoint and a started driver into a ready
// interaction stack: resolver, finder, wait engine, dispatcher and verifier.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aludratest/aludra/internal/action"
	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/driver"
	"github.com/aludratest/aludra/internal/element"
	"github.com/aludratest/aludra/internal/fault"
	"github.com/aludratest/aludra/internal/locator"
	"github.com/aludratest/aludra/internal/pool"
	"github.com/aludratest/aludra/internal/wait"
)

// ErrManagerClosed is returned by Open after Shutdown.
var ErrManagerClosed = errors.New("session manager is shut down")

const cleanupTimeout = 10 * time.Second

// Session is one driver on one endpoint. It is meant to be used by a single test worker.
type Session struct {
	id       string
	endpoint string
	drv      driver.Driver
	logger   *zap.Logger

	resolver   *locator.Resolver
	finder     *element.Finder
	engine     *wait.Engine
	dispatcher *action.Dispatcher
	verifier   *action.Verifier

	onClose   func()
	closeOnce sync.Once
	closeErr  error
}

func (s *Session) ID() string                      { return s.id }
func (s *Session) Endpoint() string                { return s.endpoint }
func (s *Session) Driver() driver.Driver           { return s.drv }
func (s *Session) Resolver() *locator.Resolver     { return s.resolver }
func (s *Session) Finder() *element.Finder         { return s.finder }
func (s *Session) Waits() *wait.Engine             { return s.engine }
func (s *Session) Actions() *action.Dispatcher     { return s.dispatcher }
func (s *Session) Verifications() *action.Verifier { return s.verifier }

// Close quits the driver and returns the endpoint to the pool. It is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if err := s.drv.Close(ctx); err != nil && !errors.Is(err, driver.ErrClosed) {
			s.logger.Warn("Driver did not close cleanly.", zap.Error(err))
			s.closeErr = fault.NewTechnical(err, "Failed to close driver")
		}
		if s.onClose != nil {
			s.onClose()
		}
		s.logger.Info("Session closed.")
	})
	return s.closeErr
}

// Manager opens sessions against a pool of endpoints.
type Manager struct {
	cfg       config.Interface
	factory   driver.Factory
	endpoints *pool.Pool
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager. The pool is owned by the caller.
func NewManager(cfg config.Interface, factory driver.Factory, endpoints *pool.Pool, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		factory:   factory,
		endpoints: endpoints,
		logger:    logger.Named("session_manager"),
		sessions:  make(map[string]*Session),
	}
}

// Open acquires an endpoint, starts a driver on it and assembles a session.
// The endpoint is released again if the driver cannot be started.
// connector may be nil when the system under test has no busy signal.
func (m *Manager) Open(ctx context.Context, connector action.SystemConnector) (*Session, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, fault.NewTechnical(ErrManagerClosed, "Cannot open session")
	}

	acquireCtx := ctx
	if timeout := m.cfg.Pool().AcquireTimeout; timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	endpoint, err := m.endpoints.Acquire(acquireCtx)
	if err != nil {
		return nil, err
	}

	drv, err := m.start(ctx, endpoint)
	if err != nil {
		if relErr := m.endpoints.Release(endpoint); relErr != nil {
			m.logger.Error("Failed to release endpoint after start failure.", zap.String("endpoint", endpoint), zap.Error(relErr))
		}
		return nil, fault.NewTechnical(err, "Failed to start driver on %s", endpoint)
	}

	s := m.assemble(endpoint, drv, connector)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		_ = s.Close(cleanupCtx)
		return nil, fault.NewTechnical(ErrManagerClosed, "Cannot open session")
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	s.logger.Info("New session opened.")
	return s, nil
}

func (m *Manager) start(ctx context.Context, endpoint string) (driver.Driver, error) {
	startCtx := ctx
	if timeout := m.cfg.Driver().StartTimeout; timeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	drv, err := m.factory.Start(startCtx, endpoint)
	if err != nil {
		return nil, err
	}
	if drv == nil {
		return nil, fmt.Errorf("factory returned no driver for %s", endpoint)
	}
	return drv, nil
}

func (m *Manager) assemble(endpoint string, drv driver.Driver, connector action.SystemConnector) *Session {
	id := uuid.New().String()
	logger := m.logger.With(zap.String("session_id", id), zap.String("endpoint", endpoint))
	waitCfg := m.cfg.Wait()

	resolver := locator.NewResolver(m.cfg.Locator(), locator.NewCache())
	finder := element.NewFinder(drv, resolver, waitCfg, logger)
	engine := wait.New(finder, logger)
	dispatcher := action.NewDispatcher(engine, waitCfg, connector, logger)
	if diag := action.NewDiagnostics(waitCfg.DebugCaptureDir, drv, logger); diag != nil {
		dispatcher.SetDiagnostics(diag)
	}

	s := &Session{
		id:         id,
		endpoint:   endpoint,
		drv:        drv,
		logger:     logger,
		resolver:   resolver,
		finder:     finder,
		engine:     engine,
		dispatcher: dispatcher,
		verifier:   action.NewVerifier(engine),
	}
	s.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, s.id)
		m.mu.Unlock()
		if err := m.endpoints.Release(endpoint); err != nil {
			logger.Error("Failed to release endpoint.", zap.Error(err))
		}
	}
	return s
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every live session concurrently and rejects further Opens.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down session manager.", zap.Int("sessions", len(live)))

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range live {
		g.Go(func() error {
			if err := s.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("session %s: %w", s.ID(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
