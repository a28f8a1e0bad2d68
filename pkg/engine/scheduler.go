package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/metrics"
)

// SchedulerState is the visibility state of the refresh timer
type SchedulerState int

const (
	// Suspended means the refresh timer is stopped
	Suspended SchedulerState = iota
	// Active means the refresh timer is running
	Active
)

func (s SchedulerState) String() string {
	if s == Active {
		return "active"
	}
	return "suspended"
}

// RefreshFunc performs one authoritative refresh
type RefreshFunc func(ctx context.Context)

// Scheduler owns the refresh timer. It refreshes once on start, then on every
// tick while Active, and once immediately when regaining foreground.
type Scheduler struct {
	clock    clockwork.Clock
	interval time.Duration
	refresh  RefreshFunc
	logger   zerolog.Logger

	mu         sync.Mutex
	state      SchedulerState
	foreground bool
	started    bool

	visibility chan bool
	stopCh     chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

// NewScheduler creates a scheduler; foreground selects the initial state
func NewScheduler(clk clockwork.Clock, interval time.Duration, refresh RefreshFunc, foreground bool) *Scheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Scheduler{
		clock:      clk,
		interval:   interval,
		refresh:    refresh,
		logger:     log.WithComponent("scheduler"),
		foreground: foreground,
		visibility: make(chan bool, 1),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// WithLogger replaces the scheduler's logger
func (s *Scheduler) WithLogger(logger zerolog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Start launches the scheduler loop; it runs until ctx is done or Stop
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	foreground := s.foreground
	s.mu.Unlock()

	go s.run(ctx, foreground)
}

// Stop stops the loop and waits for an in-progress refresh to return
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// State returns the current state
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetForeground reports a visibility change of the client
func (s *Scheduler) SetForeground(foreground bool) {
	s.mu.Lock()
	if !s.started {
		s.foreground = foreground
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case s.visibility <- foreground:
	case <-s.done:
	}
}

func (s *Scheduler) setState(state SchedulerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	if state == Active {
		metrics.SchedulerActive.Set(1)
	} else {
		metrics.SchedulerActive.Set(0)
	}
	metrics.SchedulerTransitionsTotal.WithLabelValues(state.String()).Inc()
	s.logger.Debug().Str("state", state.String()).Msg("Scheduler state changed")
}

func (s *Scheduler) run(ctx context.Context, foreground bool) {
	defer close(s.done)

	var ticker clockwork.Ticker
	var tick <-chan time.Time
	startTimer := func() {
		ticker = s.clock.NewTicker(s.interval)
		tick = ticker.Chan()
		s.setState(Active)
	}
	stopTimer := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		s.setState(Suspended)
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		metrics.SchedulerActive.Set(0)
	}()

	// Initial refresh for the newly activated pair
	s.refresh(ctx)

	if foreground {
		startTimer()
	}

	for {
		select {
		case <-tick:
			s.refresh(ctx)

		case fg := <-s.visibility:
			switch {
			case fg && ticker == nil:
				s.refresh(ctx)
				startTimer()
			case !fg && ticker != nil:
				stopTimer()
			}

		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}
