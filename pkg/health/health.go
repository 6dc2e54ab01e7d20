// Package health runs liveness and readiness checks and serves them over HTTP.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lewisedginton/aiboy_relay/pkg/logger"
)

// Check represents a single health check that can succeed or fail.
type Check interface {
	Name() string
	// Check returns nil when healthy.
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function to the Check interface.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc creates a new CheckFunc with the given name and function.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the name of this check.
func (c *CheckFunc) Name() string {
	return c.name
}

// Check executes the check function.
func (c *CheckFunc) Check(ctx context.Context) error {
	return c.fn(ctx)
}

// CheckResult represents the result of a single health check execution.
type CheckResult struct {
	Name    string
	Healthy bool
	Error   string
	Latency time.Duration
}

// Status represents the aggregated result of a probe.
type Status struct {
	Healthy bool
	Checks  []CheckResult
}

// Checker manages and executes health checks for liveness and readiness probes.
// A check is only reported unhealthy after failureThreshold consecutive failures.
type Checker struct {
	livenessChecks   []Check
	readinessChecks  []Check
	timeout          time.Duration
	failureThreshold int
	logger           logger.Logger

	mu           sync.Mutex
	failureCount map[string]int
}

// Option is a functional option for configuring Checker.
type Option func(*Checker)

// WithTimeout sets the timeout for individual health checks. Default is 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(h *Checker) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithLogger sets the logger for health check operations.
func WithLogger(l logger.Logger) Option {
	return func(h *Checker) {
		h.logger = l
	}
}

// WithFailureThreshold sets the number of consecutive failures before a check is
// considered unhealthy. Default is 3; non-positive values are ignored.
func WithFailureThreshold(threshold int) Option {
	return func(h *Checker) {
		if threshold > 0 {
			h.failureThreshold = threshold
		}
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	h := &Checker{
		timeout:          5 * time.Second,
		failureThreshold: 3,
		failureCount:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddLivenessCheck adds a check that decides whether the process should be restarted.
// Checks must be registered before the checker starts serving.
func (h *Checker) AddLivenessCheck(check Check) {
	h.livenessChecks = append(h.livenessChecks, check)
}

// AddReadinessCheck adds a check that decides whether the relay can take traffic.
// Checks must be registered before the checker starts serving.
func (h *Checker) AddReadinessCheck(check Check) {
	h.readinessChecks = append(h.readinessChecks, check)
}

// CheckLiveness executes all liveness checks.
func (h *Checker) CheckLiveness(ctx context.Context) (*Status, error) {
	return h.executeChecks(ctx, h.livenessChecks)
}

// CheckReadiness executes all readiness checks.
func (h *Checker) CheckReadiness(ctx context.Context) (*Status, error) {
	return h.executeChecks(ctx, h.readinessChecks)
}

// executeChecks runs all checks concurrently and aggregates the results.
func (h *Checker) executeChecks(ctx context.Context, checks []Check) (*Status, error) {
	status := &Status{Healthy: true, Checks: make([]CheckResult, len(checks))}
	if len(checks) == 0 {
		return status, nil
	}

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(idx int, chk Check) {
			defer wg.Done()
			status.Checks[idx] = h.executeCheck(ctx, chk)
		}(i, check)
	}
	wg.Wait()

	var failed []string
	for _, result := range status.Checks {
		if !result.Healthy {
			status.Healthy = false
			failed = append(failed, result.Name)
		}
	}
	if !status.Healthy {
		sort.Strings(failed)
		return status, fmt.Errorf("health checks failed: %v", failed)
	}
	return status, nil
}

func (h *Checker) executeCheck(parentCtx context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(parentCtx, h.timeout)
	defer cancel()

	start := time.Now()
	err := check.Check(ctx)
	latency := time.Since(start)

	result := CheckResult{Name: check.Name(), Healthy: true, Latency: latency}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err == nil {
		h.failureCount[check.Name()] = 0
		return result
	}

	h.failureCount[check.Name()]++
	failures := h.failureCount[check.Name()]
	if failures < h.failureThreshold {
		if h.logger != nil {
			h.logger.Debug("Health check failed but below threshold",
				logger.StringField("check", check.Name()),
				logger.ErrorField(err),
				logger.IntField("failures", failures),
			)
		}
		return result
	}

	result.Healthy = false
	result.Error = err.Error()
	if h.logger != nil {
		h.logger.Warn("Health check failed",
			logger.StringField("check", check.Name()),
			logger.ErrorField(err),
			logger.IntField("failures", failures),
			logger.DurationField("latency", latency),
		)
	}
	return result
}
