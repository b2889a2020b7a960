// Package health reports liveness and dependency readiness for the API.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProbeFunc checks one dependency. A nil error means healthy.
type ProbeFunc func(ctx context.Context) error

// Checker runs named dependency probes on demand for the /healthz endpoint.
type Checker struct {
	mu      sync.Mutex
	probes  map[string]ProbeFunc
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Checker. timeout bounds each individual probe; zero defaults
// to 2 seconds.
func New(timeout time.Duration, logger *zap.Logger) *Checker {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		probes:  make(map[string]ProbeFunc),
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a named probe. Registering the same name twice replaces the
// earlier probe.
func (c *Checker) Register(name string, probe ProbeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Status is the result of one health check run.
type Status struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks"`
}

// Check runs all probes concurrently and aggregates results. Any failing
// probe makes the overall status unhealthy; the per-check map carries "ok"
// or the error text.
func (c *Checker) Check(ctx context.Context) Status {
	c.mu.Lock()
	probes := make(map[string]ProbeFunc, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.Unlock()

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		status  = Status{Healthy: true, Checks: make(map[string]string, len(probes))}
	)

	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe ProbeFunc) {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			err := probe(pctx)

			resMu.Lock()
			defer resMu.Unlock()
			if err != nil {
				c.logger.Warn("health probe failed", zap.String("check", name), zap.Error(err))
				status.Healthy = false
				status.Checks[name] = err.Error()
				return
			}
			status.Checks[name] = "ok"
		}(name, probe)
	}
	wg.Wait()

	return status
}
