package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/solvahq/realtime-gateway/internal/core/domain"
)

// Claims defines the structured data we consume from the JWT. Token
// issuance is owned by the platform's auth service; the gateway only
// validates.
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Role     string    `json:"role"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the domain identity carried by a
// connection.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{
		UserID:   c.UserID,
		TenantID: c.TenantID,
		Role:     domain.Role(c.Role),
	}
}

type TokenManager struct {
	secretKey []byte
	tokenTTL  time.Duration
}

func NewTokenManager(secret string, tokenTTL time.Duration) *TokenManager {
	return &TokenManager{secretKey: []byte(secret), tokenTTL: tokenTTL}
}

// GenerateToken creates a new JWT access token. Used by tests and local
// tooling; production tokens come from the external auth service signed
// with the shared secret.
func (tm *TokenManager) GenerateToken(userID, tenantID uuid.UUID, role domain.Role) (string, error) {
	expirationTime := time.Now().Add(tm.tokenTTL)
	claims := &Claims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			Subject:   userID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
