package health

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/metrics"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Name identifies the checked dependency in logs
	Name() string
}

// Config contains common configuration for all health checks
type Config struct {
	// Interval is the time between health checks
	Interval time.Duration

	// Timeout is the maximum time to wait for a health check to complete
	Timeout time.Duration

	// Retries is the number of consecutive failures before marking as unhealthy
	Retries int

	// StartPeriod is a grace period during which failures are not counted
	StartPeriod time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		Retries:     3,
		StartPeriod: 0,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Retries <= 0 {
		c.Retries = d.Retries
	}
	return c
}

// Status tracks the current health of one checked dependency
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed checks
	ConsecutiveFailures int

	// ConsecutiveSuccesses tracks the number of consecutive successful checks
	ConsecutiveSuccesses int

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time

	// LastResult is the result of the last health check
	LastResult Result

	// Healthy indicates if the dependency is currently considered healthy
	Healthy bool

	// StartedAt is when monitoring started
	StartedAt time.Time
}

// NewStatus creates a new Status with default values
func NewStatus(startedAt time.Time) *Status {
	return &Status{
		Healthy:   true, // Assume healthy until proven otherwise
		StartedAt: startedAt,
	}
}

// Update updates the status based on a new health check result
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0

		// Mark as healthy after first success
		s.Healthy = true
		return
	}

	s.ConsecutiveSuccesses = 0
	if s.InStartPeriod(config, result.CheckedAt) {
		return
	}
	s.ConsecutiveFailures++

	// Mark as unhealthy after reaching retry threshold
	if s.ConsecutiveFailures >= config.Retries {
		s.Healthy = false
	}
}

// InStartPeriod returns true if now is still in the startup grace period
func (s *Status) InStartPeriod(config Config, now time.Time) bool {
	if config.StartPeriod == 0 {
		return false
	}
	return now.Sub(s.StartedAt) < config.StartPeriod
}

// Monitor runs one Checker on an interval and mirrors its status into the
// metrics health registry under a component name.
type Monitor struct {
	component string
	checker   Checker
	config    Config
	clock     clockwork.Clock
	logger    zerolog.Logger

	mu     sync.RWMutex
	status *Status

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  bool
}

// NewMonitor creates a monitor; a nil clock uses the wall clock
func NewMonitor(component string, checker Checker, config Config, clk clockwork.Clock) *Monitor {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Monitor{
		component: component,
		checker:   checker,
		config:    config.withDefaults(),
		clock:     clk,
		logger:    log.WithComponent("health").With().Str("check", checker.Name()).Logger(),
		status:    NewStatus(clk.Now()),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs a first check immediately, then one per interval
func (m *Monitor) Start() {
	m.started = true
	metrics.RegisterComponent(m.component, true, "")
	go m.run()
}

// Stop stops the monitor and waits for an in-flight check
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	if m.started {
		<-m.done
	}
}

// Status returns a copy of the current status
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.status
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := m.clock.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.checkOnce()
	for {
		select {
		case <-ticker.Chan():
			m.checkOnce()
		case <-m.stopCh:
			return
		}
	}
}

// checkOnce runs the checker with a timeout and records the result
func (m *Monitor) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()

	result := m.checker.Check(ctx)
	result.CheckedAt = m.clock.Now()

	m.mu.Lock()
	wasHealthy := m.status.Healthy
	m.status.Update(result, m.config)
	healthy := m.status.Healthy
	failures := m.status.ConsecutiveFailures
	m.mu.Unlock()

	message := ""
	if !healthy {
		message = result.Message
	}
	metrics.UpdateComponent(m.component, healthy, message)

	switch {
	case wasHealthy && !healthy:
		m.logger.Warn().Str("message", result.Message).Int("failures", failures).Msg("Dependency became unhealthy")
	case !wasHealthy && healthy:
		m.logger.Info().Msg("Dependency recovered")
	case !result.Healthy:
		m.logger.Debug().Str("message", result.Message).Int("failures", failures).Msg("Health check failed")
	}
}
