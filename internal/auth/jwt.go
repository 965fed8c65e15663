// Package auth validates the dashboard-issued caller tokens. Token
// issuance happens at dashboard login and is out of scope; the relay
// only verifies and extracts the caller context.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/penzjakof/anchat-relay/internal/models"
)

// Validation errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the relay's view of a dashboard token.
type Claims struct {
	TenantID   string `json:"tenantId"`
	CallerCode string `json:"callerCode"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager verifies caller tokens with a shared HMAC secret.
type JWTManager struct {
	secret        []byte
	tokenDuration time.Duration
}

// NewJWTManager creates a manager for the given secret.
func NewJWTManager(secret string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
	}
}

// Generate signs a token for the given caller. Used by tests and local
// tooling; production tokens come from the dashboard.
func (m *JWTManager) Generate(caller models.CallerContext) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID:   caller.TenantID,
		CallerCode: caller.CallerCode,
		Role:       caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.CallerCode,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate verifies a token and returns the embedded caller context.
func (m *JWTManager) Validate(tokenString string) (models.CallerContext, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.CallerContext{}, ErrTokenExpired
		}
		return models.CallerContext{}, ErrInvalidToken
	}
	if !token.Valid || claims.CallerCode == "" {
		return models.CallerContext{}, ErrInvalidToken
	}
	return models.CallerContext{
		TenantID:   claims.TenantID,
		CallerCode: claims.CallerCode,
		Role:       claims.Role,
	}, nil
}
