// Publisher tokens of the order-creation workflow.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Scope a token must carry to publish order notifications.
const PublishScope = "orders:publish"

// Issuer stamped into every publisher token.
const issuer = "menuboard"

var (
	// ErrEmptySecret is returned when asked to sign or verify without a shared secret.
	ErrEmptySecret = errors.New("auth: publish secret is empty")
	// ErrInvalidScope is returned for a valid token which isn't allowed to publish.
	ErrInvalidScope = errors.New("auth: token scope doesn't allow publishing")
)

// PublishClaims are the JWT claims the order-creation workflow presents to the publish endpoint.
type PublishClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// NewPublishToken signs a HS256 token for subject, valid for ttl from now.
func NewPublishToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	claims := PublishClaims{
		Scope: PublishScope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParsePublishToken verifies signature, expiry and scope of token and returns its claims.
func ParsePublishToken(secret, token string) (*PublishClaims, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	claims := &PublishClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		// Check the signing method
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method found: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("auth: token is invalid")
	}
	if claims.Scope != PublishScope {
		return nil, ErrInvalidScope
	}
	return claims, nil
}
