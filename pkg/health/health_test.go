package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cuemby/notifsync/pkg/metrics"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakePinger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *fakePinger) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *fakePinger) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestStoreChecker(t *testing.T) {
	p := &fakePinger{}
	checker := NewStoreChecker(p, "")

	if checker.Name() != "store" {
		t.Errorf("Expected default name 'store', got %q", checker.Name())
	}

	result := checker.Check(context.Background())
	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}

	p.setErr(errors.New("database is locked"))
	result = checker.Check(context.Background())
	if result.Healthy {
		t.Error("Expected unhealthy result for failing ping")
	}
	if result.Message != "ping failed: database is locked" {
		t.Errorf("Unexpected message: %s", result.Message)
	}
}

func TestStatusUpdate_RetryThreshold(t *testing.T) {
	cfg := Config{Retries: 3}
	s := NewStatus(t0)
	fail := Result{Healthy: false, CheckedAt: t0}

	s.Update(fail, cfg)
	s.Update(fail, cfg)
	if !s.Healthy {
		t.Error("Expected healthy below the retry threshold")
	}

	s.Update(fail, cfg)
	if s.Healthy {
		t.Error("Expected unhealthy at the retry threshold")
	}
	if s.ConsecutiveFailures != 3 {
		t.Errorf("Expected 3 consecutive failures, got %d", s.ConsecutiveFailures)
	}

	s.Update(Result{Healthy: true, CheckedAt: t0}, cfg)
	if !s.Healthy || s.ConsecutiveFailures != 0 || s.ConsecutiveSuccesses != 1 {
		t.Errorf("Expected recovery after one success, got %+v", s)
	}
}

func TestStatusUpdate_StartPeriod(t *testing.T) {
	cfg := Config{Retries: 1, StartPeriod: time.Minute}
	s := NewStatus(t0)

	s.Update(Result{Healthy: false, CheckedAt: t0.Add(30 * time.Second)}, cfg)
	if !s.Healthy || s.ConsecutiveFailures != 0 {
		t.Errorf("Failures inside the start period must not count, got %+v", s)
	}

	s.Update(Result{Healthy: false, CheckedAt: t0.Add(2 * time.Minute)}, cfg)
	if s.Healthy {
		t.Error("Expected unhealthy after the start period")
	}
}

func TestMonitor_ReportsToHealthRegistry(t *testing.T) {
	const component = "test-store"
	defer metrics.UnregisterComponent(component)

	p := &fakePinger{}
	clk := clockwork.NewFakeClockAt(t0)
	m := NewMonitor(component, NewStoreChecker(p, "sqlite"), Config{Interval: time.Second, Retries: 2}, clk)
	m.Start()
	defer m.Stop()

	waitUntil(t, func() bool { return p.Calls() == 1 })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("Monitor ticker never started: %v", err)
	}
	if health, ok := metrics.Component(component); !ok || !health.Healthy {
		t.Fatalf("Expected healthy component after first check, got %+v", health)
	}

	p.setErr(errors.New("disk I/O error"))
	for i := 2; i <= 3; i++ {
		clk.Advance(time.Second)
		calls := i
		waitUntil(t, func() bool { return p.Calls() == calls })
	}
	waitUntil(t, func() bool {
		health, _ := metrics.Component(component)
		return !health.Healthy
	})

	health, _ := metrics.Component(component)
	if m.Status().Healthy {
		t.Error("Expected unhealthy status after two failures")
	}
	if health.Message != "ping failed: disk I/O error" {
		t.Errorf("Unexpected message: %s", health.Message)
	}

	p.setErr(nil)
	clk.Advance(time.Second)
	waitUntil(t, func() bool { return m.Status().Healthy })
	waitUntil(t, func() bool {
		health, _ := metrics.Component(component)
		return health.Healthy
	})
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	m := NewMonitor("unused", NewStoreChecker(&fakePinger{}, ""), Config{}, clockwork.NewFakeClockAt(t0))
	m.Stop()
	m.Stop()
}
