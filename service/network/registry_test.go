package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_KnownNetworks(t *testing.T) {
	tests := []struct {
		input    string
		expected Name
		endpoint string
	}{
		{"local", Local, "http://127.0.0.1:8090"},
		{"LOCAL", Local, "http://127.0.0.1:8090"},
		{"nile", Nile, "https://nile.trongrid.io"},
		{"TestnetA", Nile, "https://nile.trongrid.io"},
		{"shasta", Shasta, "https://api.shasta.trongrid.io"},
		{"TestnetB", Shasta, "https://api.shasta.trongrid.io"},
		{" mainnet ", Mainnet, "https://api.trongrid.io"},
		{"Main", Mainnet, "https://api.trongrid.io"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := Resolve(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p.Name)
			assert.Equal(t, tt.endpoint, p.RPCEndpoint)
		})
	}
}

func TestResolve_UnknownNetwork(t *testing.T) {
	for _, name := range []string{"", "devnet", "mainnet-beta", "nile2"} {
		_, err := Resolve(name)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownNetwork)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	for _, n := range Names() {
		first, err := Resolve(n.String())
		require.NoError(t, err)
		second, err := Resolve(n.String())
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestProfile_WithAPIKeyDoesNotMutateRegistry(t *testing.T) {
	p, err := Resolve("mainnet")
	require.NoError(t, err)

	keyed := p.WithAPIKey("secret")
	assert.Equal(t, "secret", keyed.APIKey)
	assert.Empty(t, p.APIKey)

	again, err := Resolve("mainnet")
	require.NoError(t, err)
	assert.Empty(t, again.APIKey)
}

func TestProfile_RequiresAPIKey(t *testing.T) {
	for _, n := range Names() {
		p, err := Lookup(n)
		require.NoError(t, err)
		assert.Equal(t, n == Mainnet, p.RequiresAPIKey(), n.String())
	}
}

func TestProfile_SolidityEndpoint(t *testing.T) {
	local, err := Lookup(Local)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8091", local.SolidityEndpoint())

	nile, err := Lookup(Nile)
	require.NoError(t, err)
	assert.Equal(t, nile.RPCEndpoint, nile.SolidityEndpoint())
}

func TestLookup_InvalidName(t *testing.T) {
	_, err := Lookup(Name(42))
	assert.ErrorIs(t, err, ErrUnknownNetwork)
	assert.Equal(t, "network(42)", Name(42).String())
}
