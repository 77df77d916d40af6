package tron

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds a secp256k1 private key and serializes every signature made with it.
// Share one Signer between sessions that use the same key; concurrent Sign calls
// on different clients then queue on the same lock.
type Signer struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address Address
}

// NewSigner parses a 64-character hex private key (an optional 0x prefix is accepted).
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %v", ErrSigning, err)
	}
	return &Signer{
		key:     key,
		address: AddressFromPublicKey(&key.PublicKey),
	}, nil
}

// AddressFromPublicKey derives the Tron address controlled by a public key.
func AddressFromPublicKey(pub *ecdsa.PublicKey) Address {
	return addressFromBytes(crypto.PubkeyToAddress(*pub).Bytes())
}

// Address returns the account controlled by this key.
func (s *Signer) Address() Address {
	return s.address
}

// SignDigest returns the 65-byte recoverable signature [R || S || V] of a 32-byte digest.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return sig, nil
}

// RecoverAddress returns the address whose key produced sig over digest.
func RecoverAddress(digest, sig []byte) (Address, error) {
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return AddressFromPublicKey(pub), nil
}
