// Package auth issues and validates the JWTs that authenticate websocket
// connections. The token carries the full display identity so the
// coordinator never needs a user directory lookup.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gameroom-lab/domain"
)

// TokenService signs and verifies identity tokens with a shared HMAC key.
type TokenService struct {
	key      []byte
	issuer   string
	lifetime time.Duration
}

func NewTokenService(key []byte, issuer string, lifetime time.Duration) *TokenService {
	return &TokenService{key: key, issuer: issuer, lifetime: lifetime}
}

// IdentityClaims is the JWT payload: the user's id plus the display fields
// shown on the roster.
type IdentityClaims struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
	jwt.RegisteredClaims
}

// Generate creates a signed token for one identity.
func (s *TokenService) Generate(id domain.Identity) (string, error) {
	now := time.Now()
	claims := &IdentityClaims{
		UserID:    id.UserID,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Email:     id.Email,
		Avatar:    id.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Validate parses the token, checks signature and expiry, and returns the
// embedded identity.
func (s *TokenService) Validate(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Identity{}, err
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return domain.Identity{}, jwt.ErrSignatureInvalid
	}

	return domain.Identity{
		UserID:    claims.UserID,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		Email:     claims.Email,
		Avatar:    claims.Avatar,
	}, nil
}
