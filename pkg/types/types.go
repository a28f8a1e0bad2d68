package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrUnknownFeature is returned when a feature name is not in the catalogue
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrUnknownTopic is returned when a topic name is not in the catalogue
	ErrUnknownTopic = errors.New("unknown topic")
)

// Feature identifies one notification category
type Feature string

const (
	FeatureMessages        Feature = "messages"
	FeatureCalendarEvents  Feature = "calendar_events"
	FeatureCompetitions    Feature = "competitions"
	FeatureScores          Feature = "scores"
	FeatureSkills          Feature = "skills"
	FeatureAssignments     Feature = "assignments"
	FeatureMarketplace     Feature = "marketplace"
	FeatureSharedResources Feature = "shared_resources"
	FeatureStaffTasks      Feature = "staff_tasks"
)

// AllFeatures lists every feature in display order
var AllFeatures = []Feature{
	FeatureMessages,
	FeatureCalendarEvents,
	FeatureCompetitions,
	FeatureScores,
	FeatureSkills,
	FeatureAssignments,
	FeatureMarketplace,
	FeatureSharedResources,
	FeatureStaffTasks,
}

// IsNumeric reports whether the feature accumulates a count.
// Only messages does; every other feature is a has-unseen flag.
func (f Feature) IsNumeric() bool {
	return f == FeatureMessages
}

// Valid reports whether f is part of the catalogue
func (f Feature) Valid() bool {
	for _, known := range AllFeatures {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFeature converts a name into a Feature
func ParseFeature(name string) (Feature, error) {
	f := Feature(name)
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	return f, nil
}

// NotificationCounts holds the unread signal of every feature.
// Every boolean feature always has a key in Unseen.
type NotificationCounts struct {
	Messages int
	Unseen   map[Feature]bool
}

// NewNotificationCounts returns the all-zero/false counts
func NewNotificationCounts() NotificationCounts {
	c := NotificationCounts{Unseen: make(map[Feature]bool, len(AllFeatures)-1)}
	for _, f := range AllFeatures {
		if !f.IsNumeric() {
			c.Unseen[f] = false
		}
	}
	return c
}

// Clone returns a deep copy with every key present
func (c NotificationCounts) Clone() NotificationCounts {
	out := NewNotificationCounts()
	out.Messages = c.Messages
	for f, v := range c.Unseen {
		if _, ok := out.Unseen[f]; ok {
			out.Unseen[f] = v
		}
	}
	return out
}

// Value returns the feature's signal as an integer (0/1 for boolean features)
func (c NotificationCounts) Value(f Feature) int {
	if f.IsNumeric() {
		return c.Messages
	}
	if c.Unseen[f] {
		return 1
	}
	return 0
}

// HasUnseen reports whether the feature currently signals anything
func (c NotificationCounts) HasUnseen(f Feature) bool {
	return c.Value(f) > 0
}

// Clear resets one feature to its zero/false state
func (c *NotificationCounts) Clear(f Feature) {
	if f.IsNumeric() {
		c.Messages = 0
		return
	}
	if c.Unseen == nil {
		*c = c.Clone()
	}
	c.Unseen[f] = false
}

// FeedTally counts unread feed entries per feature
type FeedTally map[Feature]int

// Total sums every feature's entries
func (t FeedTally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// Clone returns a copy without zero or negative entries
func (t FeedTally) Clone() FeedTally {
	out := make(FeedTally, len(t))
	for f, n := range t {
		if n > 0 {
			out[f] = n
		}
	}
	return out
}

// MarshalJSON renders the counts as a flat feature map
func (c NotificationCounts) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(AllFeatures))
	for _, f := range AllFeatures {
		if f.IsNumeric() {
			out[string(f)] = c.Messages
		} else {
			out[string(f)] = c.Unseen[f]
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the flat feature map produced by MarshalJSON
func (c *NotificationCounts) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := NewNotificationCounts()
	for name, value := range raw {
		f, err := ParseFeature(name)
		if err != nil {
			return err
		}
		if f.IsNumeric() {
			if err := json.Unmarshal(value, &out.Messages); err != nil {
				return fmt.Errorf("decoding %s: %w", f, err)
			}
			continue
		}
		var flag bool
		if err := json.Unmarshal(value, &flag); err != nil {
			return fmt.Errorf("decoding %s: %w", f, err)
		}
		out.Unseen[f] = flag
	}
	*c = out
	return nil
}

// UserNotificationPreferences holds the per-feature enable flags of one
// (user, hub) pair. A nil *UserNotificationPreferences means every feature
// is enabled, and so does a feature with no entry in Enabled.
type UserNotificationPreferences struct {
	UserID    string           `json:"user_id" yaml:"user_id"`
	HubID     string           `json:"hub_id" yaml:"hub_id"`
	Enabled   map[Feature]bool `json:"enabled" yaml:"enabled"`
	UpdatedAt time.Time        `json:"updated_at" yaml:"updated_at"`
}

// IsEnabled reports whether the feature contributes to counts and feed
func (p *UserNotificationPreferences) IsEnabled(f Feature) bool {
	if p == nil {
		return true
	}
	enabled, ok := p.Enabled[f]
	return !ok || enabled
}

// EnabledFeatures returns the enabled features in catalogue order.
// A nil receiver returns nil, meaning "no filter".
func (p *UserNotificationPreferences) EnabledFeatures() []Feature {
	if p == nil {
		return nil
	}
	out := make([]Feature, 0, len(AllFeatures))
	for _, f := range AllFeatures {
		if p.IsEnabled(f) {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a deep copy; nil stays nil
func (p *UserNotificationPreferences) Clone() *UserNotificationPreferences {
	if p == nil {
		return nil
	}
	out := *p
	out.Enabled = make(map[Feature]bool, len(p.Enabled))
	for f, v := range p.Enabled {
		out.Enabled[f] = v
	}
	return &out
}

// Merge applies a partial update on top of p and returns the result.
// Merging into nil starts from the fail-open record.
func (p *UserNotificationPreferences) Merge(userID, hubID string, update PreferenceUpdate, at time.Time) *UserNotificationPreferences {
	out := p.Clone()
	if out == nil {
		out = &UserNotificationPreferences{UserID: userID, HubID: hubID}
	}
	if out.Enabled == nil {
		out.Enabled = make(map[Feature]bool, len(AllFeatures))
	}
	for _, f := range AllFeatures {
		if _, ok := out.Enabled[f]; !ok {
			out.Enabled[f] = true
		}
	}
	for f, v := range update {
		out.Enabled[f] = v
	}
	out.UpdatedAt = at
	return out
}

// PreferenceUpdate is a partial set of feature flags
type PreferenceUpdate map[Feature]bool

// Validate rejects features outside the catalogue
func (u PreferenceUpdate) Validate() error {
	for f := range u {
		if !f.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownFeature, f)
		}
	}
	return nil
}

// ActivityNotification is one feed entry. Only Read ever changes, false to true.
type ActivityNotification struct {
	ID         string    `json:"id" yaml:"id"`
	UserID     string    `json:"user_id" yaml:"user_id"`
	HubID      string    `json:"hub_id" yaml:"hub_id"`
	Type       Feature   `json:"type" yaml:"type"`
	EntityType string    `json:"entity_type" yaml:"entity_type"`
	EntityID   string    `json:"entity_id" yaml:"entity_id"`
	Title      string    `json:"title" yaml:"title"`
	Body       string    `json:"body" yaml:"body"`
	ActorID    string    `json:"actor_id" yaml:"actor_id"`
	Read       bool      `json:"read" yaml:"read"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Validate checks the fields every store requires
func (n *ActivityNotification) Validate() error {
	if n.UserID == "" || n.HubID == "" {
		return errors.New("notification requires user_id and hub_id")
	}
	if !n.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, n.Type)
	}
	return nil
}

// SortNewestFirst orders entries by creation time descending, ties by id
func SortNewestFirst(entries []*ActivityNotification) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

// Topic names one live-subscription channel; each maps onto one record category
type Topic string

const (
	TopicChatMessages        Topic = "chat_messages"
	TopicCalendarEvents      Topic = "calendar_events"
	TopicCompetitions        Topic = "competitions"
	TopicCompetitionScores   Topic = "competition_scores"
	TopicSkills              Topic = "skills"
	TopicAssignments         Topic = "assignments"
	TopicMarketplaceListings Topic = "marketplace_listings"
	TopicSharedResources     Topic = "shared_resources"
	TopicStaffTasks          Topic = "staff_tasks"
)

// topicFeatures is the topic catalogue; each topic fans into exactly one feature
var topicFeatures = map[Topic]Feature{
	TopicChatMessages:        FeatureMessages,
	TopicCalendarEvents:      FeatureCalendarEvents,
	TopicCompetitions:        FeatureCompetitions,
	TopicCompetitionScores:   FeatureScores,
	TopicSkills:              FeatureSkills,
	TopicAssignments:         FeatureAssignments,
	TopicMarketplaceListings: FeatureMarketplace,
	TopicSharedResources:     FeatureSharedResources,
	TopicStaffTasks:          FeatureStaffTasks,
}

// AllTopics lists every topic in catalogue order
var AllTopics = []Topic{
	TopicChatMessages,
	TopicCalendarEvents,
	TopicCompetitions,
	TopicCompetitionScores,
	TopicSkills,
	TopicAssignments,
	TopicMarketplaceListings,
	TopicSharedResources,
	TopicStaffTasks,
}

// Feature returns the feature the topic fans into
func (t Topic) Feature() (Feature, error) {
	f, ok := topicFeatures[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopic, t)
	}
	return f, nil
}

// TopicFor returns the topic that carries changes for a feature
func TopicFor(f Feature) (Topic, error) {
	for _, t := range AllTopics {
		if topicFeatures[t] == f {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: no topic for feature %q", ErrUnknownTopic, f)
}

// ChangeEvent is one row change delivered on a topic. RecipientID names the
// user the change is addressed to; empty means every member of the hub.
type ChangeEvent struct {
	ID          string            `json:"id"`
	Topic       Topic             `json:"topic"`
	HubID       string            `json:"hub_id"`
	AuthorID    string            `json:"author_id,omitempty"`
	RecipientID string            `json:"recipient_id,omitempty"`
	RecordID    string            `json:"record_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
