package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger is the part of storage.Store a StoreChecker needs
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker checks that the backing store answers a trivial query
type StoreChecker struct {
	store Pinger
	name  string
}

// NewStoreChecker creates a checker for store; name labels it in logs
func NewStoreChecker(store Pinger, name string) *StoreChecker {
	if name == "" {
		name = "store"
	}
	return &StoreChecker{store: store, name: name}
}

// Name returns the checker label
func (c *StoreChecker) Name() string {
	return c.name
}

// Check pings the store
func (c *StoreChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if err := c.store.Ping(ctx); err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("ping failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   "ok",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
