// Package pool hands out a fixed set of host endpoints, one holder at a time.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aludratest/aludra/internal/fault"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrNotAcquired is the cause of the technical fault returned when
	// releasing an endpoint that is not currently held.
	ErrNotAcquired = errors.New("endpoint is not acquired")
	// ErrEmpty is returned when a pool is created without endpoints.
	ErrEmpty = errors.New("pool needs at least one endpoint")
)

// Pool is a blocking pool of endpoints. Acquire blocks while every endpoint is held.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	logger *zap.Logger

	mu   sync.Mutex
	free []string
	held map[string]int
}

// New creates a pool over endpoints. Duplicates are separate slots.
func New(endpoints []string, logger *zap.Logger) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, ErrEmpty
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(len(endpoints))),
		size:   len(endpoints),
		logger: logger.Named("pool"),
		free:   append([]string(nil), endpoints...),
		held:   make(map[string]int),
	}, nil
}

// Acquire takes the longest-idle endpoint, blocking until one is free or ctx ends.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", fault.NewTechnical(err, "No endpoint became available")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	endpoint := p.free[0]
	p.free = p.free[1:]
	p.held[endpoint]++
	p.logger.Debug("Endpoint acquired.", zap.String("endpoint", endpoint), zap.Int("free", len(p.free)))
	return endpoint, nil
}

// Release returns an endpoint. Releasing an endpoint that is not held is a
// technical fault and leaves the pool unchanged.
func (p *Pool) Release(endpoint string) error {
	p.mu.Lock()
	if p.held[endpoint] == 0 {
		p.mu.Unlock()
		return fault.NewTechnical(fmt.Errorf("%w: %s", ErrNotAcquired, endpoint), "Cannot release endpoint")
	}
	p.held[endpoint]--
	if p.held[endpoint] == 0 {
		delete(p.held, endpoint)
	}
	p.free = append(p.free, endpoint)
	free := len(p.free)
	p.mu.Unlock()

	p.sem.Release(1)
	p.logger.Debug("Endpoint released.", zap.String("endpoint", endpoint), zap.Int("free", free))
	return nil
}

// Size is the total number of endpoints.
func (p *Pool) Size() int { return p.size }

// Available is the number of endpoints not currently held.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
