package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagwatch/tagwatch/internal/api/middleware"
	"github.com/tagwatch/tagwatch/internal/auth"
)

func newJWT() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "middleware-test-key",
		Issuer:     "tagwatch",
		Audience:   "tagwatch-ops",
	})
}

func protected(t *testing.T, validator middleware.TokenValidator) (http.Handler, *string) {
	t.Helper()
	var operator string
	h := middleware.OperatorAuth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator = middleware.GetOperator(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))
	return h, &operator
}

func TestOperatorAuth_Rejects(t *testing.T) {
	svc := newJWT()
	viewer, _, err := svc.GenerateToken("viewer", "viewer", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		detail string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "invalid authorization header format"},
		{"bare token", "eyJhbGciOi", http.StatusUnauthorized, "invalid authorization header format"},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, "missing bearer token"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, "invalid operator token"},
		{"wrong role", "Bearer " + viewer, http.StatusForbidden, "operator role required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, operator := protected(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/v1/devices/tag-1/commands", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.detail)
			assert.Empty(t, *operator)
		})
	}
}

func TestOperatorAuth_AcceptsOperator(t *testing.T) {
	svc := newJWT()
	token, _, err := svc.GenerateToken("ops@example.com", auth.RoleOperator, time.Hour)
	require.NoError(t, err)

	for _, scheme := range []string{"Bearer ", "bearer ", "BEARER "} {
		handler, operator := protected(t, svc)

		req := httptest.NewRequest(http.MethodPost, "/v1/devices/tag-1/commands", http.NoBody)
		req.Header.Set("Authorization", scheme+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code, scheme)
		assert.Equal(t, "ops@example.com", *operator)
	}
}

func TestOperatorAuth_DisabledWithoutValidator(t *testing.T) {
	handler, operator := protected(t, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/devices/tag-1/commands", http.NoBody))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, *operator)
}
