package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLimiter_PerClientBudget(t *testing.T) {
	l := newClientLimiter(0.001, 2)

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"), "burst exhausted")
	assert.True(t, l.allow("10.0.0.2"), "other clients keep their own budget")
	assert.Equal(t, 2, l.size())
}

func TestClientLimiter_TableIsBounded(t *testing.T) {
	l := newClientLimiter(1, 1)
	for i := 0; i < maxLimiters; i++ {
		l.allow(strconv.Itoa(i))
	}
	require.Equal(t, maxLimiters, l.size())

	l.allow("one-more")
	assert.Equal(t, 1, l.size())
}

func TestServer_RateLimit(t *testing.T) {
	ts := setupTestServer(t)
	limited := NewServer(ts.engine, ts.store, ts.broker, WithRateLimit(0.001, 1))

	get := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.10:4000"
		w := httptest.NewRecorder()
		limited.Handler().ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("/api/v1/counts"))
	assert.Equal(t, http.StatusTooManyRequests, get("/api/v1/counts"))
	assert.Equal(t, http.StatusOK, get("/health"), "probes are not limited")
}

func TestWithRateLimit_DisabledByDefault(t *testing.T) {
	ts := setupTestServer(t)
	assert.Nil(t, ts.server.limiter)

	s := NewServer(ts.engine, ts.store, ts.broker, WithRateLimit(0, 5))
	assert.Nil(t, s.limiter)
}
