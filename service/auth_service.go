package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/internal/eth"
	"github.com/layer-3/converse/ports"
)

// DefaultNonceTTL is how long a signing challenge stays consumable.
const DefaultNonceTTL = 5 * time.Minute

const noncePrefix = "nonce:"

// AuthService implements the nonce-based wallet-signature authentication
// protocol: it issues single-use signing challenges, verifies signatures
// against them and exchanges a verified signature for a bearer credential.
type AuthService struct {
	nonces    ports.KVStore
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher

	nonceTTL time.Duration
}

// NewAuthService creates a new authentication service. eventPub may be nil
// when lifecycle events are not wanted (tests); a zero nonceTTL falls back
// to DefaultNonceTTL.
func NewAuthService(nonces ports.KVStore, tokenizer ports.Tokenizer, eventPub ports.EventPublisher, nonceTTL time.Duration) *AuthService {
	if nonceTTL <= 0 {
		nonceTTL = DefaultNonceTTL
	}
	return &AuthService{
		nonces:    nonces,
		tokenizer: tokenizer,
		eventPub:  eventPub,
		nonceTTL:  nonceTTL,
	}
}

// Challenge issues a fresh signing challenge for address, overwriting any
// previous one. The entry self-expires after the nonce TTL.
func (s *AuthService) Challenge(ctx context.Context, address string) (core.Challenge, error) {
	if !eth.IsValidAddress(address) {
		return core.Challenge{}, core.ErrInvalidAddress
	}

	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return core.Challenge{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now().UTC()
	message := fmt.Sprintf("Signing nonce %s for converse chat. Timestamp: %s",
		hex.EncodeToString(nonceBytes), now.Format(time.RFC3339))

	if err := s.nonces.Set(ctx, s.nonceKey(address), message, s.nonceTTL); err != nil {
		return core.Challenge{}, fmt.Errorf("failed to store nonce: %w", err)
	}

	return core.Challenge{
		Address:  eth.Normalize(address),
		Message:  message,
		IssuedAt: now,
	}, nil
}

// Verify consumes the challenge for address and, when the signature over it
// checks out, issues a session credential. A challenge is deleted the moment
// its exact message is presented, even if the signature then fails; a
// mismatched message leaves the stored challenge untouched.
func (s *AuthService) Verify(ctx context.Context, address, signature, message string) (string, error) {
	if !eth.IsValidAddress(address) {
		return "", core.ErrInvalidAddress
	}

	key := s.nonceKey(address)
	stored, err := s.nonces.Get(ctx, key)
	if err != nil || stored != message {
		return "", core.ErrNonceMismatch
	}
	if err := s.nonces.Delete(ctx, key); err != nil {
		return "", fmt.Errorf("failed to consume nonce: %w", err)
	}

	if !eth.VerifySignature(signature, message, address) {
		return "", core.ErrInvalidSignature
	}

	credential, err := s.tokenizer.Issue(eth.Normalize(address))
	if err != nil {
		return "", fmt.Errorf("failed to issue credential: %w", err)
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogin(ctx, eth.Normalize(address)); err != nil {
			log.Warn().Err(err).Str("address", address).Msg("failed to publish login event")
		}
	}

	return credential, nil
}

// Authenticate validates a credential and returns the identity it asserts.
func (s *AuthService) Authenticate(ctx context.Context, credential string) (core.Identity, error) {
	address, err := s.tokenizer.Verify(credential)
	if err != nil {
		return core.Identity{}, err
	}
	return core.Identity{Address: address}, nil
}

// Logout publishes the logout event. The credential itself is stateless;
// the transport clears the cookie.
func (s *AuthService) Logout(ctx context.Context, identity core.Identity) {
	if s.eventPub == nil {
		return
	}
	if err := s.eventPub.PublishLogout(ctx, identity.Address); err != nil {
		log.Warn().Err(err).Str("address", identity.Address).Msg("failed to publish logout event")
	}
}

func (s *AuthService) nonceKey(address string) string {
	return noncePrefix + strings.ToLower(address)
}
