package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tagwatch/tagwatch/internal/api/models"
	"github.com/tagwatch/tagwatch/internal/auth"
)

// operatorKey is the context key for the authenticated operator subject.
type operatorKey struct{}

// TokenValidator validates operator bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// OperatorAuth requires a valid operator bearer token. A nil validator
// disables the check, which is how the service runs when no signing key is
// configured.
func OperatorAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if validator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "operator token has expired")
				case errors.Is(err, auth.ErrForbidden):
					problem := models.NewForbidden(GetRequestID(r.Context()), "operator role required")
					problem.Instance = r.URL.Path
					problem.Write(w)
				case errors.Is(err, auth.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid operator token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 problem. It lives here rather than in the
// response package to avoid an import cycle.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tagwatch"`)
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetOperator returns the authenticated operator subject, or "" when the
// request was not authenticated.
func GetOperator(ctx context.Context) string {
	if sub, ok := ctx.Value(operatorKey{}).(string); ok {
		return sub
	}
	return ""
}
