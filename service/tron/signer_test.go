package tron

import (
	"crypto/sha256"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivateKey  = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	otherPrivateKey = "8e812436a0e3323166e1f0e8ba79e19e217b2c4a53c970d4cca0cfb1078979df"
)

func TestNewSigner(t *testing.T) {
	plain, err := NewSigner(testPrivateKey)
	require.NoError(t, err)

	prefixed, err := NewSigner("0x" + testPrivateKey)
	require.NoError(t, err)
	assert.Equal(t, plain.Address(), prefixed.Address())

	other, err := NewSigner(otherPrivateKey)
	require.NoError(t, err)
	assert.NotEqual(t, plain.Address(), other.Address())
}

func TestNewSigner_Invalid(t *testing.T) {
	for _, key := range []string{"", "abc", "zz1c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"} {
		_, err := NewSigner(key)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSigning)
	}
}

func TestSigner_SignDigestRecoversAddress(t *testing.T) {
	signer, err := NewSigner(testPrivateKey)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("raw transaction bytes"))
	sig, err := signer.SignDigest(digest[:])
	require.NoError(t, err)
	assert.Len(t, sig, 65)

	recovered, err := RecoverAddress(digest[:], sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestSigner_SignDigestRejectsBadDigest(t *testing.T) {
	signer, err := NewSigner(testPrivateKey)
	require.NoError(t, err)

	_, err = signer.SignDigest([]byte("short"))
	assert.ErrorIs(t, err, ErrSigning)
}

func TestSigner_ConcurrentUse(t *testing.T) {
	signer, err := NewSigner(testPrivateKey)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			digest := sha256.Sum256([]byte{byte(i)})
			sig, err := signer.SignDigest(digest[:])
			assert.NoError(t, err)
			recovered, err := RecoverAddress(digest[:], sig)
			assert.NoError(t, err)
			assert.Equal(t, signer.Address(), recovered)
		}(i)
	}
	wg.Wait()
}
