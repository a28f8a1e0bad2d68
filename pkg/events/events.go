package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/metrics"
	"github.com/cuemby/notifsync/pkg/types"
)

// ErrBrokerStopped is returned by Publish and Subscribe after Stop
var ErrBrokerStopped = errors.New("event broker stopped")

const (
	// DefaultBuffer is the broker's inbound event buffer
	DefaultBuffer = 100
	// DefaultSubscriberBuffer is the per-subscription buffer
	DefaultSubscriberBuffer = 50
)

// Broker is an in-process SubscriptionProvider. Published events are fanned
// out to every subscription of the event's hub.
type Broker struct {
	subscribers map[*subscription]bool
	mu          sync.RWMutex
	eventCh     chan *types.ChangeEvent
	stopCh      chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
	subBuffer   int
}

// subscription is one (user, hub) channel plus the pump feeding its handler
type subscription struct {
	broker  *Broker
	userID  string
	hubID   string
	handler EventHandler
	ch      chan *types.ChangeEvent
	done    chan struct{}
}

// NewBroker creates a new event broker; non-positive sizes use the defaults
func NewBroker(buffer, subscriberBuffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if subscriberBuffer <= 0 {
		subscriberBuffer = DefaultSubscriberBuffer
	}
	return &Broker{
		subscribers: make(map[*subscription]bool),
		eventCh:     make(chan *types.ChangeEvent, buffer),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		subBuffer:   subscriberBuffer,
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the distribution loop and closes every subscription
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})

	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Wait blocks until the distribution loop has exited
func (b *Broker) Wait() {
	<-b.done
}

func (b *Broker) stopped() bool {
	select {
	case <-b.stopCh:
		return true
	default:
		return false
	}
}

// Subscribe registers handler for events of hubID. The subscription closes
// itself when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, userID, hubID string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	if b.stopped() {
		b.mu.Unlock()
		return nil, ErrBrokerStopped
	}
	sub := &subscription{
		broker:  b,
		userID:  userID,
		hubID:   hubID,
		handler: handler,
		ch:      make(chan *types.ChangeEvent, b.subBuffer),
		done:    make(chan struct{}),
	}
	b.subscribers[sub] = true
	metrics.ActiveSubscriptions.Set(float64(len(b.subscribers)))
	b.mu.Unlock()

	go sub.pump()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	logger := log.WithPair("broker", userID, hubID)
	logger.Debug().Msg("Subscription opened")
	return sub, nil
}

// unsubscribe removes sub and closes its channel; safe to call twice
func (b *Broker) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.subscribers[sub] {
		return
	}
	delete(b.subscribers, sub)
	close(sub.ch)
	metrics.ActiveSubscriptions.Set(float64(len(b.subscribers)))
}

// Publish queues an event for distribution
func (b *Broker) Publish(event *types.ChangeEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if b.stopped() {
		return ErrBrokerStopped
	}
	select {
	case b.eventCh <- event:
		return nil
	case <-b.stopCh:
		return ErrBrokerStopped
	}
}

func (b *Broker) run() {
	defer close(b.done)
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *types.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.hubID != event.HubID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber buffer full; the next refresh reconciles
			metrics.EventsDropped.Inc()
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (s *subscription) pump() {
	defer close(s.done)
	logger := log.WithPair("broker", s.userID, s.hubID)
	for ev := range s.ch {
		if err := Dispatch(s.handler, ev); err != nil {
			metrics.EventsTotal.WithLabelValues(string(ev.Topic), "unknown_topic").Inc()
			logger.Debug().Err(err).Str("event_id", ev.ID).Msg("Ignoring event")
		}
	}
}

// Close unregisters the subscription and waits for in-flight delivery to finish
func (s *subscription) Close() {
	s.broker.unsubscribe(s)
	<-s.done
}
