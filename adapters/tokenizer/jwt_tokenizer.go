package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/ports"
)

const AudienceSession = "converse:session"

// DefaultSessionExpiry is how long an issued credential stays valid.
const DefaultSessionExpiry = 24 * time.Hour

// JWTTokenizer implements the Tokenizer interface using HS256-signed JWTs.
// It is stateless; expiry and integrity are enforced entirely by the token.
type JWTTokenizer struct {
	secret []byte
	expiry time.Duration
}

// NewJWTTokenizer creates a new JWT tokenizer signing with secret.
func NewJWTTokenizer(secret []byte, expiry time.Duration) ports.Tokenizer {
	if expiry == 0 {
		expiry = DefaultSessionExpiry
	}
	return &JWTTokenizer{secret: secret, expiry: expiry}
}

// Issue creates a signed, time-boxed credential asserting address.
func (j *JWTTokenizer) Issue(address string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{AudienceSession},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a credential and returns the asserted address.
func (j *JWTTokenizer) Verify(credential string) (string, error) {
	token, err := jwt.ParseWithClaims(credential, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithAudience(AudienceSession))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", core.ErrTokenExpired
		}
		return "", core.ErrInvalidToken
	}
	if !token.Valid {
		return "", core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.Subject == "" {
		return "", core.ErrInvalidToken
	}

	return claims.Subject, nil
}
