// Package auth issues and verifies the connect-time bearer credential.
// The token is validated once, during the websocket handshake or on an API
// request; it is not re-checked per event.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/peertutor/tutorchat/internal/common"
)

// Claims carries the standard registered claims plus the authenticated
// identity and a per-login session id. The session id scopes the PIN
// verification flag: a freshly issued token is a fresh session.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string
	SessionID string
}

// GenerateToken mints an HS256 token for the given identity and session.
func GenerateToken(userID, sessionID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID:    userID,
		SessionID: sessionID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies the signature and expiry and returns the embedded
// identity and session id. Any failure maps to common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (userID, sessionID string, err error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", "", common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return "", "", common.ErrInvalidToken
	}

	return claims.UserID, claims.SessionID, nil
}
