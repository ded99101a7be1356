package core

import "errors"

var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNonceMismatch    = errors.New("nonce missing or does not match")
	ErrInvalidAddress   = errors.New("invalid ethereum address")
	ErrKeyNotFound      = errors.New("key not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrStreamClosed     = errors.New("stream closed")
	ErrStoreFailed      = errors.New("store operation failed")
)
