package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	defaultSecret = "confetti-secret-change-me"
	mountAudience = "confetti-host"
)

var secret = []byte(defaultSecret)

// SetSecret configures the JWT signing secret (call on startup).
func SetSecret(s string) {
	if s != "" {
		secret = []byte(s)
	}
}

// Claims is the mount token payload handed to a host widget.
type Claims struct {
	ControlID string `json:"cid"`
	jwtlib.RegisteredClaims
}

// Sign creates a mount token allowing a host widget to attach to controlID.
func Sign(controlID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ControlID: controlID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Audience: jwtlib.ClaimStrings{mountAudience},
			IssuedAt: jwtlib.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwtlib.NewNumericDate(now.Add(ttl))
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Parse validates a mount token and returns its claims.
func Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwtlib.WithAudience(mountAudience))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ControlID == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
