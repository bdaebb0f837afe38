// Package auth mints and verifies HMAC-signed JWTs. Tokens authenticate
// webhook deliveries and let embedding hosts resolve a caller identity from a
// bearer token.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/flagkeeper/internal/common"
)

// Claims carries the standard registered claims plus the acting user id.
type Claims struct {
	jwt.RegisteredClaims
	UID string
}

// GenerateToken signs a token for uid with HS256, valid for validityDuration.
func GenerateToken(uid string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UID: uid,
	})

	return token.SignedString(secretKey)
}

// UIDFromToken verifies tokenString and returns the embedded user id.
// An expired token yields common.ErrTokenExpired; any other verification
// failure yields common.ErrInvalidToken.
func UIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.UID, nil
}
