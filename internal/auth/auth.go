package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Caller identifies the authenticated user behind a request. User ids are
// opaque strings issued by the identity provider.
type Caller struct {
	UserID string
}

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoSubject    = errors.New("token has no user id claim")
)

// ParseToken verifies an HMAC-signed bearer token and extracts the caller.
func ParseToken(tokenString, secret string) (Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Caller{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Caller{}, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		// Some issuers put the user id in the standard subject claim.
		userID, ok = claims["sub"].(string)
		if !ok || userID == "" {
			return Caller{}, ErrNoSubject
		}
	}

	return Caller{UserID: userID}, nil
}
