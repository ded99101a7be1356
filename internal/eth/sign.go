package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// IsValidAddress reports whether address parses as a hex Ethereum address.
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// Normalize returns the EIP-55 checksummed form of address.
func Normalize(address string) string {
	return common.HexToAddress(address).Hex()
}

// RecoverAddress recovers the signing address from an EIP-191 personal-sign
// signature over message. The signature is the 65-byte R || S || V hex string
// produced by eth_sign / personal_sign; V may be 0/1 or 27/28.
func RecoverAddress(signature, message string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	// go-ethereum expects the recovery id in the last byte as 0/1
	recovered := make([]byte, crypto.SignatureLength)
	copy(recovered, sig)
	if recovered[crypto.RecoveryIDOffset] >= 27 {
		recovered[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(message))
	pubKey, err := crypto.SigToPub(hash, recovered)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifySignature reports whether signature over message was produced by the
// key controlling claimedAddress. The address comparison is checksum
// normalized, so casing of the input does not matter.
func VerifySignature(signature, message, claimedAddress string) bool {
	if !common.IsHexAddress(claimedAddress) {
		return false
	}
	recovered, err := RecoverAddress(signature, message)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered.Hex(), common.HexToAddress(claimedAddress).Hex())
}
