package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagwatch/tagwatch/internal/api/middleware"
	"github.com/tagwatch/tagwatch/internal/api/models"
	"github.com/tagwatch/tagwatch/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{RequestLimit: 3, WindowLength: time.Minute})(okHandler())

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send("10.0.0.1:5000").Code, "request %d", i+1)
	}

	rec := send("10.0.0.1:5000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeTooManyRequests, problem.Type)
	assert.Equal(t, "/v1/ops/status", problem.Instance)

	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000").Code)
}

func TestRateLimitByOperator(t *testing.T) {
	svc := newJWT()
	alice, _, err := svc.GenerateToken("alice", auth.RoleOperator, time.Hour)
	require.NoError(t, err)
	bob, _, err := svc.GenerateToken("bob", auth.RoleOperator, time.Hour)
	require.NoError(t, err)

	limit := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	handler := middleware.OperatorAuth(svc)(middleware.RateLimitByOperator(limit)(okHandler()))

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/devices/tag-1/commands", http.NoBody)
		req.RemoteAddr = "10.0.0.9:5000"
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send(alice))
	assert.Equal(t, http.StatusOK, send(alice))
	assert.Equal(t, http.StatusTooManyRequests, send(alice))

	// Same address, different operator.
	assert.Equal(t, http.StatusOK, send(bob))
}

func TestRateLimitByOperator_FallsBackToIP(t *testing.T) {
	handler := middleware.RateLimitByOperator(middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute})(okHandler())

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		req.RemoteAddr = "10.0.0.3:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 20, middleware.CommandRateLimit.RequestLimit)
	assert.Equal(t, 30, middleware.StreamRateLimit.RequestLimit)
	assert.Equal(t, 100, middleware.StandardRateLimit.RequestLimit)
	for _, cfg := range []middleware.RateLimitConfig{middleware.CommandRateLimit, middleware.StreamRateLimit, middleware.StandardRateLimit} {
		assert.Equal(t, time.Minute, cfg.WindowLength)
	}
}
