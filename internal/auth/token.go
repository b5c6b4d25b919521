package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/parlorlabs/parlor/internal/config"
)

// Claims binds a bearer to a user and to the opaque session token that was
// written to the user document at login. The session stays valid only while
// that stored token matches; clearing it (logout, or a later login elsewhere)
// invalidates every bearer that embeds it.
type Claims struct {
	SessionToken string `json:"tok"`
	jwt.RegisteredClaims
}

// NewSessionToken issues the opaque per-login token stored on the user record.
func NewSessionToken() string {
	return uuid.NewString()
}

func GenerateJWT(userID, sessionToken string) (string, error) {
	claims := &Claims{
		SessionToken: sessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * 24 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.Cfg.JWTSecret))
}

func ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
