package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/notifsync/pkg/types"
)

// CountsSource exposes the counts of the currently active pair.
// ok is false when no pair is active.
type CountsSource interface {
	CollectCounts() (counts types.NotificationCounts, feedUnread int, ok bool)
}

// Collector samples a CountsSource into the count cache gauges
type Collector struct {
	source   CountsSource
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source CountsSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer close(c.done)
		defer ticker.Stop()

		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector and waits for the sampling goroutine to exit
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.done
}

func (c *Collector) collect() {
	counts, feedUnread, ok := c.source.CollectCounts()
	if !ok {
		UnreadMessages.Set(0)
		FeedUnread.Set(0)
		UnseenFeatures.Reset()
		return
	}

	UnreadMessages.Set(float64(counts.Messages))
	FeedUnread.Set(float64(feedUnread))

	for _, f := range types.AllFeatures {
		if f.IsNumeric() {
			continue
		}
		v := 0.0
		if counts.HasUnseen(f) {
			v = 1
		}
		UnseenFeatures.WithLabelValues(string(f)).Set(v)
	}
}
