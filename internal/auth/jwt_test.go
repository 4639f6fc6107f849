package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagwatch/tagwatch/internal/auth"
)

func testService(key, issuer, audience string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Issuer:     issuer,
		Audience:   audience,
	})
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := testService("test-secret-key-for-testing-only", "tagwatch", "tagwatch-ops")

	token, expiresAt, err := svc.GenerateToken("ops@example.com", auth.RoleOperator, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, auth.RoleOperator, claims.Role)
	assert.Equal(t, "tagwatch", claims.Issuer)
}

func TestJWTService_DefaultTTL(t *testing.T) {
	svc := testService("k", "tagwatch", "tagwatch-ops")

	_, expiresAt, err := svc.GenerateToken("ops", auth.RoleOperator, 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenTTL), expiresAt, 5*time.Second)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := testService("k", "tagwatch", "tagwatch-ops")

	for _, token := range []string{"", "not.a.valid.jwt", "xxx.yyy.zzz"} {
		_, err := svc.ValidateToken(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken, "token %q", token)
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	token, _, err := testService("key-one", "tagwatch", "tagwatch-ops").GenerateToken("ops", auth.RoleOperator, time.Hour)
	require.NoError(t, err)

	_, err = testService("key-two", "tagwatch", "tagwatch-ops").ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTService_WrongIssuerOrAudience(t *testing.T) {
	token, _, err := testService("k", "tagwatch", "tagwatch-ops").GenerateToken("ops", auth.RoleOperator, time.Hour)
	require.NoError(t, err)

	_, err = testService("k", "someone-else", "tagwatch-ops").ValidateToken(token)
	assert.Error(t, err)

	_, err = testService("k", "tagwatch", "other-audience").ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_Expired(t *testing.T) {
	svc := testService("k", "tagwatch", "tagwatch-ops")

	token, _, err := svc.GenerateToken("ops", auth.RoleOperator, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestJWTService_RequiresOperatorRole(t *testing.T) {
	svc := testService("k", "tagwatch", "tagwatch-ops")

	token, _, err := svc.GenerateToken("viewer", "viewer", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	require.NotNil(t, claims)
	assert.Equal(t, "viewer", claims.Subject)
}
