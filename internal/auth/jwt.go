// Package auth issues and validates operator bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Operator tokens are HS256 JWTs signed with a shared secret. They gate
// endpoints that act on tags, such as publishing commands. There is no refresh
// flow: tokens are minted out of band with a fixed lifetime.

// DefaultTokenTTL is the lifetime of tokens minted without an explicit TTL.
const DefaultTokenTTL = 12 * time.Hour

// RoleOperator is the only role accepted by the command endpoints.
const RoleOperator = "operator"

var (
	ErrInvalidToken = errors.New("invalid operator token")
	ErrTokenExpired = errors.New("operator token has expired")
	ErrForbidden    = errors.New("token lacks operator role")
)

// Claims are the claims carried by operator tokens.
type Claims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// JWTService mints and validates operator tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        time.Now,
	}
}

// GenerateToken mints a token for subject. A non-positive ttl uses DefaultTokenTTL.
func (s *JWTService) GenerateToken(subject, role string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        newTokenID(),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing operator token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses tokenString and requires the operator role.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleOperator {
		return claims, ErrForbidden
	}
	return claims, nil
}

func newTokenID() string {
	return uuid.NewString()
}
