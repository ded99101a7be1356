package ports

// Tokenizer issues and verifies the bearer credential that asserts a
// verified wallet address. Credentials are time-boxed and stateless.
type Tokenizer interface {
	// Issue creates a signed credential for address.
	Issue(address string) (string, error)

	// Verify returns the address asserted by the credential. It returns
	// core.ErrTokenExpired for expired credentials and core.ErrInvalidToken
	// for everything else that fails verification.
	Verify(credential string) (string, error)
}
