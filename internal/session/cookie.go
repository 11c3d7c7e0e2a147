package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the session cookie carried by the browser
const CookieName = "SESSION"

// Error message constants
const (
	ErrInvalidTokenClaims = "invalid token claims"
	ErrMissingSessionID   = "session id missing from token"
	ErrTokenParseFailed   = "failed to parse token: %w"
)

// cookieClaims is the JWT payload, only the session id is trusted
type cookieClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// CookieCodec signs and verifies session ids with HS256
type CookieCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCookieCodec(secret string, ttl time.Duration) *CookieCodec {
	return &CookieCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Encode returns a signed token holding sid
func (c *CookieCodec) Encode(sid string) (string, error) {
	now := c.now()
	claims := cookieClaims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies the signature and expiry and returns the session id
func (c *CookieCodec) Decode(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &cookieClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf(ErrTokenParseFailed, err)
	}

	claims, ok := parsed.Claims.(*cookieClaims)
	if !ok || !parsed.Valid {
		return "", errors.New(ErrInvalidTokenClaims)
	}
	if claims.SID == "" {
		return "", errors.New(ErrMissingSessionID)
	}
	return claims.SID, nil
}
