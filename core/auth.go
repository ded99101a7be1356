package core

import "time"

// Challenge is a single-use signing challenge issued to a wallet address.
// At most one challenge is active per address; issuing a new one overwrites
// the previous entry.
type Challenge struct {
	Address  string    `json:"address"`  // Ethereum address the challenge was issued to
	Message  string    `json:"message"`  // Human-readable message the wallet signs
	IssuedAt time.Time `json:"issuedAt"` // When the challenge was created
}

// Identity is the authenticated caller, recovered from a verified credential.
// It is threaded explicitly through handlers rather than attached to shared
// request state.
type Identity struct {
	Address string
}
