package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cuemby/notifsync/pkg/types"
)

type stubSource struct {
	mu     sync.Mutex
	counts types.NotificationCounts
	feed   int
	active bool
}

func (s *stubSource) CollectCounts() (types.NotificationCounts, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts.Clone(), s.feed, s.active
}

func TestCollector_SamplesActivePair(t *testing.T) {
	counts := types.NewNotificationCounts()
	counts.Messages = 4
	counts.Unseen[types.FeatureCompetitions] = true

	c := NewCollector(&stubSource{counts: counts, feed: 7, active: true}, time.Hour)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(UnreadMessages) == 4
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(7), testutil.ToFloat64(FeedUnread))
	assert.Equal(t, float64(1), testutil.ToFloat64(UnseenFeatures.WithLabelValues(string(types.FeatureCompetitions))))
	assert.Equal(t, float64(0), testutil.ToFloat64(UnseenFeatures.WithLabelValues(string(types.FeatureSkills))))
}

func TestCollector_NoActivePairZeroes(t *testing.T) {
	UnreadMessages.Set(9)
	FeedUnread.Set(9)

	c := NewCollector(&stubSource{}, time.Hour)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(UnreadMessages) == 0 && testutil.ToFloat64(FeedUnread) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCollector_StopIsIdempotent(t *testing.T) {
	c := NewCollector(&stubSource{}, 0)
	c.Start()
	c.Stop()
	c.Stop()
}
