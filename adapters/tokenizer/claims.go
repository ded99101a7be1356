package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the claims carried by a session credential. The subject
// is the verified wallet address.
type SessionClaims struct {
	jwt.RegisteredClaims
}
