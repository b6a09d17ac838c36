package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"mindpalace/backend/pkg/logger"
)

// ErrOpen is returned without calling the wrapped function while the breaker
// is open.
var ErrOpen = errors.New("circuit open")

// State is the current state of a circuit breaker
type State string

const (
	// StateClosed lets every call through
	StateClosed State = "closed"
	// StateOpen short-circuits calls until the retry timeout passes
	StateOpen State = "open"
	// StateHalfOpen lets a limited number of probe calls through
	StateHalfOpen State = "half-open"
)

// Config holds configuration for a circuit breaker
type Config struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	// Timeout bounds each call. Zero means no bound beyond the caller's ctx.
	Timeout      time.Duration
	RetryTimeout time.Duration
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          5 * time.Second,
		RetryTimeout:     30 * time.Second,
	}
}

// Stats is a snapshot of breaker counters.
type Stats struct {
	Name           string    `json:"name"`
	State          State     `json:"state"`
	TotalRequests  uint64    `json:"total_requests"`
	TotalFailures  uint64    `json:"total_failures"`
	TotalSuccesses uint64    `json:"total_successes"`
	Rejected       uint64    `json:"rejected"`
	OpenCount      uint64    `json:"open_count"`
	LastFailure    time.Time `json:"last_failure_time"`
}

// CircuitBreaker stops calling a failing dependency for a while after
// FailureThreshold consecutive failures.
type CircuitBreaker struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu              sync.Mutex
	state           State
	failureCount    uint
	successCount    uint
	inFlightProbes  uint
	nextAttemptTime time.Time
	stats           Stats
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CircuitBreaker{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		state: StateClosed,
		stats: Stats{Name: cfg.Name},
	}
}

// Execute runs fn through the breaker, applying the configured timeout to
// the context fn receives.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		return ErrOpen
	}

	if cb.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.cfg.Timeout)
		defer cancel()
	}

	start := cb.now()
	err := fn(ctx)
	if err != nil {
		cb.recordFailure()
		cb.log.Warn("circuit breaker recorded failure",
			"name", cb.cfg.Name,
			"error", err.Error(),
			"duration", time.Since(start).String(),
		)
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.nextAttemptTime) {
			cb.stats.Rejected++
			return false
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.inFlightProbes = 0
		cb.log.Info("circuit breaker half-open", "name", cb.cfg.Name)
		fallthrough
	case StateHalfOpen:
		if cb.inFlightProbes >= cb.cfg.SuccessThreshold {
			cb.stats.Rejected++
			return false
		}
		cb.inFlightProbes++
	}
	cb.stats.TotalRequests++
	return true
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalSuccesses++
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.log.Info("circuit breaker closed", "name", cb.cfg.Name)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalFailures++
	cb.stats.LastFailure = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.open()
		}
	case StateHalfOpen:
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.stats.OpenCount++
	cb.nextAttemptTime = cb.now().Add(cb.cfg.RetryTimeout)
	cb.log.Warn("circuit breaker opened",
		"name", cb.cfg.Name,
		"failures", cb.failureCount,
		"next_attempt", cb.nextAttemptTime.Format(time.RFC3339),
	)
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.State = cb.state
	return s
}
