package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the authorization context for an API client: its tier
// gates features, its jurisdiction grants gate which documents it may
// force-refresh or subscribe to.
type Claims struct {
	ClientID      string   `json:"client_id"`
	Email         string   `json:"email"`
	Tier          string   `json:"tier"`
	Jurisdictions []string `json:"jurisdictions"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates client tokens
type TokenManager struct {
	secret string
	issuer string
}

// NewTokenManager creates a token manager
func NewTokenManager(secret, issuer string) *TokenManager {
	if secret == "" {
		secret = "change-me-in-production"
	}
	if issuer == "" {
		issuer = "formwatch"
	}
	return &TokenManager{secret: secret, issuer: issuer}
}

// GenerateToken issues a signed token for a client
func (tm *TokenManager) GenerateToken(clientID, email, tier string, jurisdictions []string, expiresIn time.Duration) (string, error) {
	if clientID == "" {
		return "", fmt.Errorf("client_id required")
	}
	now := time.Now()
	claims := Claims{
		ClientID:      clientID,
		Email:         email,
		Tier:          tier,
		Jurisdictions: jurisdictions,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			Issuer:    tm.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(tm.secret))
}

// ValidateToken parses and verifies a token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token failed: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// ExtractToken pulls the bearer token out of an Authorization header
func ExtractToken(authHeader string) (string, error) {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}
