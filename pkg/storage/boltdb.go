package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/notifsync/pkg/types"
)

var (
	// Bucket names
	bucketNotifications = []byte("notifications")
	bucketLastViewed    = []byte("last_viewed")
	bucketPreferences   = []byte("preferences")
)

// keySep separates the parts of composite keys
const keySep = "\x00"

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	return OpenBoltStore(filepath.Join(dataDir, "notifsync.db"))
}

// OpenBoltStore opens the BoltDB file at dbPath
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNotifications,
			bucketLastViewed,
			bucketPreferences,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping opens a read transaction and checks every bucket is present
func (s *BoltStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketNotifications, bucketLastViewed, bucketPreferences} {
			if tx.Bucket(name) == nil {
				return fmt.Errorf("bucket %s missing", name)
			}
		}
		return nil
	})
}

func pairKey(userID, hubID string) []byte {
	return []byte(userID + keySep + hubID + keySep)
}

func markerKey(userID, hubID string, f types.Feature) []byte {
	return append(pairKey(userID, hubID), f...)
}

// forEachPairNotification calls fn for every notification of (userID, hubID)
func forEachPairNotification(tx *bolt.Tx, userID, hubID string, fn func(n *types.ActivityNotification) error) error {
	return tx.Bucket(bucketNotifications).ForEach(func(k, v []byte) error {
		var n types.ActivityNotification
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("decoding notification %s: %w", k, err)
		}
		if n.UserID != userID || n.HubID != hubID {
			return nil
		}
		return fn(&n)
	})
}

func lastViewedTx(tx *bolt.Tx, userID, hubID string) (map[types.Feature]time.Time, error) {
	markers := make(map[types.Feature]time.Time)
	prefix := pairKey(userID, hubID)
	c := tx.Bucket(bucketLastViewed).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var lv LastViewed
		if err := json.Unmarshal(v, &lv); err != nil {
			return nil, fmt.Errorf("decoding marker %q: %w", k, err)
		}
		markers[lv.Feature] = lv.ViewedAt
	}
	return markers, nil
}

// Aggregate operations

func (s *BoltStore) AggregateCounts(ctx context.Context, userID, hubID string) (types.NotificationCounts, error) {
	unread := make(map[types.Feature]int)
	total := make(map[types.Feature]int)

	err := s.db.View(func(tx *bolt.Tx) error {
		markers, err := lastViewedTx(tx, userID, hubID)
		if err != nil {
			return err
		}
		return forEachPairNotification(tx, userID, hubID, func(n *types.ActivityNotification) error {
			if n.ActorID == userID {
				return nil
			}
			if viewed, ok := markers[n.Type]; ok && !n.CreatedAt.After(viewed) {
				return nil
			}
			total[n.Type]++
			if !n.Read {
				unread[n.Type]++
			}
			return nil
		})
	})
	if err != nil {
		return types.NotificationCounts{}, err
	}
	return countsFromTallies(unread, total), ctx.Err()
}

func (s *BoltStore) UnreadFeedTotal(ctx context.Context, userID, hubID string, allowed []types.Feature) (int, error) {
	tally, err := s.UnreadFeedByFeature(ctx, userID, hubID, allowed)
	if err != nil {
		return 0, err
	}
	return tally.Total(), nil
}

func (s *BoltStore) UnreadFeedByFeature(ctx context.Context, userID, hubID string, allowed []types.Feature) (types.FeedTally, error) {
	tally := types.FeedTally{}
	set := allowedSet(allowed)
	if set != nil && len(set) == 0 {
		return tally, nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachPairNotification(tx, userID, hubID, func(n *types.ActivityNotification) error {
			if n.Read || n.ActorID == userID {
				return nil
			}
			if set != nil && !set[n.Type] {
				return nil
			}
			tally[n.Type]++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tally, nil
}

// Feed operations

func (s *BoltStore) ListFeed(ctx context.Context, q FeedQuery) ([]*types.ActivityNotification, error) {
	set := allowedSet(q.Types)
	if set != nil && len(set) == 0 {
		return []*types.ActivityNotification{}, nil
	}

	var entries []*types.ActivityNotification
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachPairNotification(tx, q.UserID, q.HubID, func(n *types.ActivityNotification) error {
			if set != nil && !set[n.Type] {
				return nil
			}
			entries = append(entries, n)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	types.SortNewestFirst(entries)

	if q.Offset >= len(entries) {
		return []*types.ActivityNotification{}, nil
	}
	entries = entries[q.Offset:]
	if q.Limit > 0 && q.Limit < len(entries) {
		entries = entries[:q.Limit]
	}
	return entries, nil
}

func (s *BoltStore) CreateNotification(ctx context.Context, n *types.ActivityNotification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		if b.Get([]byte(n.ID)) != nil {
			return fmt.Errorf("notification %s: %w", n.ID, ErrAlreadyExists)
		}
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return b.Put([]byte(n.ID), data)
	})
}

func (s *BoltStore) MarkRead(ctx context.Context, userID, id string) (*types.ActivityNotification, bool, error) {
	var n types.ActivityNotification
	changed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("notification %s: %w", id, ErrNotFound)
		}
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		if n.UserID != userID {
			return fmt.Errorf("notification %s: %w", id, ErrNotFound)
		}
		if n.Read {
			return nil
		}
		n.Read = true
		changed = true
		updated, err := json.Marshal(&n)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
	if err != nil {
		return nil, false, err
	}
	return &n, changed, nil
}

func (s *BoltStore) MarkAllRead(ctx context.Context, userID, hubID string) (int64, error) {
	var updated int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var pending []*types.ActivityNotification
		err := forEachPairNotification(tx, userID, hubID, func(n *types.ActivityNotification) error {
			if !n.Read {
				pending = append(pending, n)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Writes happen after ForEach; bbolt forbids mutating during iteration
		b := tx.Bucket(bucketNotifications)
		for _, n := range pending {
			n.Read = true
			data, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(n.ID), data); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Last-viewed operations

func (s *BoltStore) UpsertLastViewed(ctx context.Context, userID, hubID string, f types.Feature, at time.Time) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownFeature, f)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(LastViewed{UserID: userID, HubID: hubID, Feature: f, ViewedAt: at.UTC()})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLastViewed).Put(markerKey(userID, hubID, f), data)
	})
}

func (s *BoltStore) GetLastViewed(ctx context.Context, userID, hubID string) (map[types.Feature]time.Time, error) {
	var markers map[types.Feature]time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		markers, err = lastViewedTx(tx, userID, hubID)
		return err
	})
	return markers, err
}

// Preference operations

func getPreferencesTx(tx *bolt.Tx, userID, hubID string) (*types.UserNotificationPreferences, error) {
	data := tx.Bucket(bucketPreferences).Get(pairKey(userID, hubID))
	if data == nil {
		return nil, nil
	}
	var prefs types.UserNotificationPreferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("decoding preferences: %w", err)
	}
	return &prefs, nil
}

func putPreferencesTx(tx *bolt.Tx, prefs *types.UserNotificationPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketPreferences).Put(pairKey(prefs.UserID, prefs.HubID), data)
}

func (s *BoltStore) GetPreferences(ctx context.Context, userID, hubID string) (*types.UserNotificationPreferences, error) {
	var prefs *types.UserNotificationPreferences
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		prefs, err = getPreferencesTx(tx, userID, hubID)
		return err
	})
	return prefs, err
}

func (s *BoltStore) UpsertPreferences(ctx context.Context, userID, hubID string, update types.PreferenceUpdate, at time.Time) (*types.UserNotificationPreferences, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	var merged *types.UserNotificationPreferences
	err := s.db.Update(func(tx *bolt.Tx) error {
		current, err := getPreferencesTx(tx, userID, hubID)
		if err != nil {
			return err
		}
		merged = current.Merge(userID, hubID, update, at.UTC())
		return putPreferencesTx(tx, merged)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *BoltStore) PutPreferences(ctx context.Context, prefs *types.UserNotificationPreferences) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putPreferencesTx(tx, prefs)
	})
}

// Export operations used by notifsync-migrate

// ForEachNotification calls fn for every stored notification
func (s *BoltStore) ForEachNotification(fn func(n *types.ActivityNotification) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNotifications).ForEach(func(k, v []byte) error {
			var n types.ActivityNotification
			if err := json.Unmarshal(v, &n); err != nil {
				return fmt.Errorf("decoding notification %s: %w", k, err)
			}
			return fn(&n)
		})
	})
}

// ForEachLastViewed calls fn for every stored last-viewed marker
func (s *BoltStore) ForEachLastViewed(fn func(lv LastViewed) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLastViewed).ForEach(func(k, v []byte) error {
			var lv LastViewed
			if err := json.Unmarshal(v, &lv); err != nil {
				return fmt.Errorf("decoding marker %q: %w", k, err)
			}
			return fn(lv)
		})
	})
}

// ForEachPreferences calls fn for every stored preference record
func (s *BoltStore) ForEachPreferences(fn func(p *types.UserNotificationPreferences) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPreferences).ForEach(func(k, v []byte) error {
			var p types.UserNotificationPreferences
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decoding preferences %q: %w", k, err)
			}
			return fn(&p)
		})
	})
}
