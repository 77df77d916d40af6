package tron

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// AddressPrefix is the version byte of every Tron account address.
const AddressPrefix byte = 0x41

// AddressLength is the length of the base58check form of an address.
const AddressLength = 34

// Address is a 21-byte Tron account address: the 0x41 prefix followed by the
// last 20 bytes of the Keccak-256 hash of the account's public key.
type Address [21]byte

// ParseAddress accepts either the base58check form ("T...") or the hex form ("41...").
func ParseAddress(s string) (Address, error) {
	var addr Address
	s = strings.TrimSpace(s)

	if len(s) == 2*len(addr) {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return addr, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
		}
		if raw[0] != AddressPrefix {
			return addr, fmt.Errorf("%w: %q: prefix 0x%02x", ErrInvalidAddress, s, raw[0])
		}
		copy(addr[:], raw)
		return addr, nil
	}

	if len(s) != AddressLength {
		return addr, fmt.Errorf("%w: %q: length %d", ErrInvalidAddress, s, len(s))
	}
	payload, version, err := base58.CheckDecode(s)
	if err != nil {
		return addr, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if version != AddressPrefix || len(payload) != len(addr)-1 {
		return addr, fmt.Errorf("%w: %q: version 0x%02x", ErrInvalidAddress, s, version)
	}
	addr[0] = version
	copy(addr[1:], payload)
	return addr, nil
}

// MustParseAddress is like ParseAddress but panics on error. Intended for tests and constants.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// addressFromBytes builds an address from the 20-byte account hash.
func addressFromBytes(b []byte) Address {
	var addr Address
	addr[0] = AddressPrefix
	copy(addr[1:], b)
	return addr
}

// String returns the base58check form.
func (a Address) String() string {
	return base58.CheckEncode(a[1:], a[0])
}

// Hex returns the hex form including the 0x41 prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address was never set.
func (a Address) IsZero() bool {
	return a == Address{}
}
