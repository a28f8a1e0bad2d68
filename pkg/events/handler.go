package events

import (
	"context"
	"fmt"

	"github.com/cuemby/notifsync/pkg/types"
)

// EventHandler receives live change events, one method per topic
type EventHandler interface {
	OnChatMessage(ev *types.ChangeEvent)
	OnCalendarEvent(ev *types.ChangeEvent)
	OnCompetition(ev *types.ChangeEvent)
	OnCompetitionScore(ev *types.ChangeEvent)
	OnSkill(ev *types.ChangeEvent)
	OnAssignment(ev *types.ChangeEvent)
	OnMarketplaceListing(ev *types.ChangeEvent)
	OnSharedResource(ev *types.ChangeEvent)
	OnStaffTask(ev *types.ChangeEvent)
}

// Subscription is one live channel for a (user, hub) pair.
// Close is synchronous: once it returns, the handler is never called again.
type Subscription interface {
	Close()
}

// SubscriptionProvider opens live subscriptions
type SubscriptionProvider interface {
	Subscribe(ctx context.Context, userID, hubID string, handler EventHandler) (Subscription, error)
}

// Dispatch routes an event to the handler method for its topic
func Dispatch(h EventHandler, ev *types.ChangeEvent) error {
	switch ev.Topic {
	case types.TopicChatMessages:
		h.OnChatMessage(ev)
	case types.TopicCalendarEvents:
		h.OnCalendarEvent(ev)
	case types.TopicCompetitions:
		h.OnCompetition(ev)
	case types.TopicCompetitionScores:
		h.OnCompetitionScore(ev)
	case types.TopicSkills:
		h.OnSkill(ev)
	case types.TopicAssignments:
		h.OnAssignment(ev)
	case types.TopicMarketplaceListings:
		h.OnMarketplaceListing(ev)
	case types.TopicSharedResources:
		h.OnSharedResource(ev)
	case types.TopicStaffTasks:
		h.OnStaffTask(ev)
	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownTopic, ev.Topic)
	}
	return nil
}
