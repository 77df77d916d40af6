package network

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownNetwork is returned when a network name matches none of the fixed set.
var ErrUnknownNetwork = errors.New("unknown network")

// Name identifies one of the supported Tron network environments.
// The set is closed; there is no way to register new networks at runtime.
type Name int

const (
	Local Name = iota + 1
	Nile
	Shasta
	Mainnet
)

// String returns the canonical lowercase name used in config and metrics labels.
func (n Name) String() string {
	switch n {
	case Local:
		return "local"
	case Nile:
		return "nile"
	case Shasta:
		return "shasta"
	case Mainnet:
		return "mainnet"
	default:
		return fmt.Sprintf("network(%d)", int(n))
	}
}

// Profile holds the connection parameters for a network.
// Profiles are values; WithAPIKey returns a modified copy.
type Profile struct {
	Name        Name
	RPCEndpoint string // full node HTTP API
	AuxEndpoint string // solidity node HTTP API, used for confirmed-state queries
	APIKey      string // TronGrid API key, only required for mainnet
}

// RequiresAPIKey reports whether the network rejects unauthenticated requests.
func (p Profile) RequiresAPIKey() bool {
	return p.Name == Mainnet
}

// WithAPIKey returns a copy of the profile carrying the given API key.
func (p Profile) WithAPIKey(key string) Profile {
	p.APIKey = key
	return p
}

// SolidityEndpoint returns the endpoint for confirmed-state queries, falling back
// to the full node when no separate solidity node is configured.
func (p Profile) SolidityEndpoint() string {
	if p.AuxEndpoint != "" {
		return p.AuxEndpoint
	}
	return p.RPCEndpoint
}

var profiles = map[Name]Profile{
	Local: {
		Name:        Local,
		RPCEndpoint: "http://127.0.0.1:8090",
		AuxEndpoint: "http://127.0.0.1:8091",
	},
	Nile: {
		Name:        Nile,
		RPCEndpoint: "https://nile.trongrid.io",
	},
	Shasta: {
		Name:        Shasta,
		RPCEndpoint: "https://api.shasta.trongrid.io",
	},
	Mainnet: {
		Name:        Mainnet,
		RPCEndpoint: "https://api.trongrid.io",
	},
}

// aliases maps accepted spellings to networks. TestnetA/TestnetB are the
// environment-neutral names for Nile and Shasta.
var aliases = map[string]Name{
	"local":    Local,
	"nile":     Nile,
	"testneta": Nile,
	"shasta":   Shasta,
	"testnetb": Shasta,
	"mainnet":  Mainnet,
	"main":     Mainnet,
}

// ParseName converts a user-supplied network name into a Name.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseName(s string) (Name, error) {
	n, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
	}
	return n, nil
}

// Resolve returns the profile for the named network. It performs no I/O.
func Resolve(name string) (Profile, error) {
	n, err := ParseName(name)
	if err != nil {
		return Profile{}, err
	}
	return Lookup(n)
}

// Lookup returns the profile for an already-parsed network name.
func Lookup(n Name) (Profile, error) {
	p, ok := profiles[n]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, n)
	}
	return p, nil
}

// Names returns every supported network in a stable order.
func Names() []Name {
	return []Name{Local, Nile, Shasta, Mainnet}
}
