package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuemby/notifsync/pkg/engine"
	"github.com/cuemby/notifsync/pkg/types"
)

// activateRequest binds the engine to a (user, hub) pair
type activateRequest struct {
	UserID string `json:"user_id"`
	HubID  string `json:"hub_id"`
	// Foreground defaults to true
	Foreground *bool `json:"foreground"`
}

type visibilityRequest struct {
	Foreground bool `json:"foreground"`
}

// preferencesResponse carries a nil record when no preferences are stored,
// which means every feature is enabled
type preferencesResponse struct {
	Preferences *types.UserNotificationPreferences `json:"preferences"`
	Error       string                             `json:"error,omitempty"`
}

type feedResponse struct {
	*engine.FeedPage
	NextOffset int `json:"next_offset"`
}

// createNotificationRequest is the upstream ingress for new activity
type createNotificationRequest struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	HubID      string        `json:"hub_id"`
	Type       types.Feature `json:"type"`
	EntityType string        `json:"entity_type"`
	EntityID   string        `json:"entity_id"`
	Title      string        `json:"title"`
	Body       string        `json:"body"`
	ActorID    string        `json:"actor_id"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (s *Server) handleActivate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req activateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
		if req.UserID == "" || req.HubID == "" {
			badRequest(c, "user_id and hub_id are required")
			return
		}
		foreground := true
		if req.Foreground != nil {
			foreground = *req.Foreground
		}

		if err := s.engine.Activate(c.Request.Context(), req.UserID, req.HubID, foreground); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.engine.Snapshot())
	}
}

func (s *Server) handleDeactivate() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.engine.Deactivate()
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleVisibility() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req visibilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
		if err := s.engine.SetForeground(req.Foreground); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleCounts() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.engine.Snapshot())
	}
}

func (s *Server) handleGetPreferences() gin.HandlerFunc {
	return func(c *gin.Context) {
		prefs, err := s.engine.Preferences()
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, preferencesResponse{Preferences: prefs})
	}
}

func (s *Server) handleSetPreferences() gin.HandlerFunc {
	return func(c *gin.Context) {
		var update types.PreferenceUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}

		prefs, err := s.engine.SetPreferences(c.Request.Context(), update)
		if err != nil {
			if prefs == nil {
				abortWithError(c, err)
				return
			}
			// Applied locally, not persisted
			_ = c.Error(err)
			c.JSON(statusFor(err), preferencesResponse{Preferences: prefs, Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, preferencesResponse{Preferences: prefs})
	}
}

func (s *Server) handleFeatureViewed() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := types.ParseFeature(c.Param("feature"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		if err := s.engine.MarkFeatureViewed(c.Request.Context(), f); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleFeed() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit")
		if err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
		offset, err := queryInt(c, "offset")
		if err != nil {
			badRequest(c, "offset must be an integer")
			return
		}

		page, err := s.engine.FetchFeedPage(c.Request.Context(), limit, offset)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, feedResponse{FeedPage: page, NextOffset: page.NextOffset()})
	}
}

func (s *Server) handleMarkEntryRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.engine.MarkEntryRead(c.Request.Context(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.engine.MarkAllRead(c.Request.Context()); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleCreateNotification() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createNotificationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}

		n := &types.ActivityNotification{
			ID:         req.ID,
			UserID:     req.UserID,
			HubID:      req.HubID,
			Type:       req.Type,
			EntityType: req.EntityType,
			EntityID:   req.EntityID,
			Title:      req.Title,
			Body:       req.Body,
			ActorID:    req.ActorID,
			CreatedAt:  req.CreatedAt,
		}
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		if err := n.Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}

		if err := s.store.CreateNotification(c.Request.Context(), n); err != nil {
			abortWithError(c, err)
			return
		}

		if s.publisher != nil {
			if err := s.publish(n); err != nil {
				// Stored; subscribers catch up on the next refresh
				s.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("Failed to publish change event")
			}
		}
		c.JSON(http.StatusCreated, n)
	}
}

func (s *Server) publish(n *types.ActivityNotification) error {
	topic, err := types.TopicFor(n.Type)
	if err != nil {
		return err
	}
	recordID := n.EntityID
	if recordID == "" {
		recordID = n.ID
	}
	return s.publisher.Publish(&types.ChangeEvent{
		Topic:       topic,
		HubID:       n.HubID,
		AuthorID:    n.ActorID,
		RecipientID: n.UserID,
		RecordID:    recordID,
		Timestamp:   n.CreatedAt,
		Metadata: map[string]string{
			"notification_id": n.ID,
			"user_id":         n.UserID,
		},
	})
}

// queryInt parses an optional integer query parameter; absent means 0
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}
