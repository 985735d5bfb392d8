package token

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/specranking-client/internal/errors"
)

// Claims are the access token fields the client relies on.
// The token is decoded, never verified: verification is the issuing server's job.
type Claims struct {
	UserID    int64     // Authenticated user, from "userId" (or "sub" as a fallback)
	ExpiresAt time.Time // Expiry, from "exp"
	IssuedAt  time.Time // Issued at, from "iat" when present
}

// Decode extracts the claims from a raw bearer token without checking its signature.
func Decode(rawToken string) (*Claims, error) {
	rawToken = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rawToken), "Bearer "))
	if rawToken == "" {
		return nil, errors.ErrInvalidToken
	}

	unverifiedToken, _, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "token.Decode %v", err)
	}

	claims, ok := unverifiedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "token.Decode error extracting claims")
	}

	userID, ok := claimInt(claims, "userId")
	if !ok {
		if userID, ok = claimInt(claims, "sub"); !ok {
			return nil, errors.Wrapf(errors.ErrInvalidToken, "token.Decode missing userId claim")
		}
	}

	exp, ok := claimInt(claims, "exp")
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "token.Decode missing exp claim")
	}

	c := &Claims{
		UserID:    userID,
		ExpiresAt: time.Unix(exp, 0),
	}
	if iat, ok := claimInt(claims, "iat"); ok {
		c.IssuedAt = time.Unix(iat, 0)
	}
	return c, nil
}

// ExpiresIn returns the time left before the token expires, negative once it has.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// Expired reports whether the token is past its expiry at now.
func (c *Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// claimInt accepts numeric claims encoded either as JSON numbers or numeric strings.
func claimInt(claims jwt.MapClaims, name string) (int64, bool) {
	switch v := claims[name].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
