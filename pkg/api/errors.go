package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/notifsync/pkg/engine"
	"github.com/cuemby/notifsync/pkg/storage"
	"github.com/cuemby/notifsync/pkg/types"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps engine and store errors onto HTTP status codes. Anything
// unrecognised came from the backing store.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNoActivePair):
		return http.StatusConflict
	case errors.Is(err, engine.ErrAcknowledgementInFlight), errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrUnknownFeature), errors.Is(err, engine.ErrInvalidPage):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func messageFor(err error) string {
	if errors.Is(err, engine.ErrAcknowledgementInFlight) {
		return "acknowledgement already in progress"
	}
	return err.Error()
}

// abortWithError writes the mapped status and records the error on the context
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), errorResponse{Error: messageFor(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: msg})
}
