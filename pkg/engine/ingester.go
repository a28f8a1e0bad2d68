package engine

import (
	"github.com/rs/zerolog"

	"github.com/cuemby/notifsync/pkg/events"
	"github.com/cuemby/notifsync/pkg/log"
	"github.com/cuemby/notifsync/pkg/metrics"
	"github.com/cuemby/notifsync/pkg/types"
)

// Event outcomes recorded in notifsync_events_total
const (
	outcomeApplied      = "applied"
	outcomeSelfAuthored = "self_authored"
	outcomeFiltered     = "filtered"
	outcomeOtherHub     = "other_hub"
	outcomeOtherUser    = "other_recipient"
	outcomeUnknownTopic = "unknown_topic"
)

// Ingester turns live change events into CountCache deltas for one pair
type Ingester struct {
	cache  *CountCache
	epoch  uint64
	userID string
	hubID  string
	logger zerolog.Logger
}

var _ events.EventHandler = (*Ingester)(nil)

// NewIngester creates an ingester for the pair's viewer
func NewIngester(cache *CountCache, userID, hubID string) *Ingester {
	return &Ingester{
		cache:  cache,
		epoch:  cache.Epoch(),
		userID: userID,
		hubID:  hubID,
		logger: log.WithPair("ingester", userID, hubID),
	}
}

func (i *Ingester) OnChatMessage(ev *types.ChangeEvent)        { i.ingest(ev) }
func (i *Ingester) OnCalendarEvent(ev *types.ChangeEvent)      { i.ingest(ev) }
func (i *Ingester) OnCompetition(ev *types.ChangeEvent)        { i.ingest(ev) }
func (i *Ingester) OnCompetitionScore(ev *types.ChangeEvent)   { i.ingest(ev) }
func (i *Ingester) OnSkill(ev *types.ChangeEvent)              { i.ingest(ev) }
func (i *Ingester) OnAssignment(ev *types.ChangeEvent)         { i.ingest(ev) }
func (i *Ingester) OnMarketplaceListing(ev *types.ChangeEvent) { i.ingest(ev) }
func (i *Ingester) OnSharedResource(ev *types.ChangeEvent)     { i.ingest(ev) }
func (i *Ingester) OnStaffTask(ev *types.ChangeEvent)          { i.ingest(ev) }

// ingest applies one event. Events authored by the viewer, events of another
// hub or addressed to another user, and events of disabled features change nothing.
func (i *Ingester) ingest(ev *types.ChangeEvent) {
	outcome := i.apply(ev)
	metrics.EventsTotal.WithLabelValues(string(ev.Topic), outcome).Inc()

	i.logger.Debug().
		Str("event_id", ev.ID).
		Str("topic", string(ev.Topic)).
		Str("outcome", outcome).
		Msg("Event ingested")
}

func (i *Ingester) apply(ev *types.ChangeEvent) string {
	f, err := ev.Topic.Feature()
	if err != nil {
		return outcomeUnknownTopic
	}
	if ev.HubID != "" && ev.HubID != i.hubID {
		return outcomeOtherHub
	}
	if ev.RecipientID != "" && ev.RecipientID != i.userID {
		return outcomeOtherUser
	}
	// An event without an author is never self-authored
	if ev.AuthorID != "" && ev.AuthorID == i.userID {
		return outcomeSelfAuthored
	}
	if !i.cache.ApplyEventAt(i.epoch, f) {
		return outcomeFiltered
	}
	return outcomeApplied
}
