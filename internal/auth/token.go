package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultAccessTTL = 15 * time.Minute

// TokenCodec mints and verifies HS256 access tokens. The secret and TTL are
// fixed at construction; rotating the secret invalidates every outstanding
// token, which is acceptable here.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenCodec(secret string, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl}
}

func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Encode signs a token for the given subject. Expiry is always attached;
// a token without one never stops authenticating.
func (c *TokenCodec) Encode(subject string) (string, int64, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(c.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(c.secret)
	if err != nil {
		return "", 0, err
	}
	return encoded, int64(c.ttl.Seconds()), nil
}

// Decode verifies signature and expiry and returns the subject. Failures are
// one of ErrSignatureInvalid, ErrTokenExpired, or ErrClaimsMalformed.
func (c *TokenCodec) Decode(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrSignatureInvalid
		default:
			return "", ErrClaimsMalformed
		}
	}
	if !token.Valid {
		return "", ErrSignatureInvalid
	}
	if claims.Subject == "" {
		return "", ErrClaimsMalformed
	}
	return claims.Subject, nil
}
