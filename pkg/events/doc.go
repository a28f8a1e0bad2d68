/*
Package events provides the live change subscription used by notifsync.

The package defines the transport-neutral contract (EventHandler,
Subscription, SubscriptionProvider and Dispatch) and an in-memory Broker that
implements it. Any other transport only needs to turn its wire messages into
types.ChangeEvent values and call Dispatch.

# Architecture

	┌──────────────────── EVENT BROKER ──────────────────────────┐
	│                                                              │
	│  Publish(ChangeEvent)                                        │
	│       │                                                      │
	│       ▼                                                      │
	│  eventCh (buffer: events.buffer, default 100)                │
	│       │                                                      │
	│       ▼                                                      │
	│  broadcast loop ── filter by HubID ──┐                       │
	│                                      ▼                       │
	│          subscription channel (events.subscriber_buffer)    │
	│                                      │                       │
	│                                      ▼                       │
	│                     pump goroutine ─► Dispatch(handler, ev)  │
	│                                      │                       │
	│                  OnChatMessage / OnSkill / OnAssignment ...  │
	└──────────────────────────────────────────────────────────────┘

# Delivery

Delivery is at-least-once from the publisher's point of view and ordered per
subscription. A subscriber whose buffer is full loses the event rather than
stalling the broadcast loop; lost events are counted in
notifsync_broker_events_dropped_total and the periodic refresh repairs counts.

Events are scoped by hub only. Self-authorship and recipient filtering
(ChangeEvent.RecipientID, empty for hub-wide rows) belong to the handler,
since only the handler knows who the viewer is.

# Lifecycle

Subscription.Close is synchronous. It unregisters the channel, lets the pump
drain what was already buffered, and returns only after the last handler call
finished. Callers that swap subscriptions therefore never see an event from
the old subscription after the new one is opened. Close must not be called
from inside a handler.

A subscription also closes itself when the context passed to Subscribe is
done. Broker.Stop closes every open subscription.

# Usage

	broker := events.NewBroker(cfg.Events.Buffer, cfg.Events.SubscriberBuffer)
	broker.Start()
	defer broker.Stop()

	sub, err := broker.Subscribe(ctx, userID, hubID, ingester)
	if err != nil {
		return err
	}
	defer sub.Close()

	broker.Publish(&types.ChangeEvent{
		Topic:    types.TopicAssignments,
		HubID:    hubID,
		AuthorID: staffID,
	})
*/
package events
