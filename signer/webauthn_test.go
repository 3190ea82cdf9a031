package signer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebAuthnSigner(t *testing.T) (*WebAuthnSigner, *SoftwareAuthenticator) {
	t.Helper()
	auth, err := GenerateSoftwareAuthenticator("sign.example.com", "https://sign.example.com")
	require.Nil(t, err)
	x, y := auth.PublicKey()
	s, err := NewWebAuthnSigner(auth, x, y)
	require.Nil(t, err)
	return s, auth
}

func TestWebAuthnSignHash(t *testing.T) {
	s, _ := newTestWebAuthnSigner(t)
	h := crypto.Keccak256Hash([]byte("user op"))

	encoded, err := s.SignHash(context.Background(), h)
	require.Nil(t, err)

	x, y := s.PublicKey()
	require.Nil(t, VerifyWebAuthnSignature(x, y, h, encoded))

	sig, err := DecodeWebAuthnSignature(encoded)
	require.Nil(t, err)
	assert.EqualValues(t, 1, sig.TypeIndex.Int64())
	assert.EqualValues(t, 23, sig.ChallengeIndex.Int64())
	assert.Len(t, sig.AuthenticatorData, 37)

	// wrong challenge
	assert.ErrorIs(t, VerifyWebAuthnSignature(x, y, common.Hash{1}, encoded), ErrInvalidWebAuthnSignature)
}

func TestWebAuthnSignMessage(t *testing.T) {
	s, _ := newTestWebAuthnSigner(t)
	encoded, err := s.SignMessage(context.Background(), []byte("hi"))
	require.Nil(t, err)

	x, y := s.PublicKey()
	require.Nil(t, VerifyWebAuthnSignature(x, y, common.BytesToHash(accounts.TextHash([]byte("hi"))), encoded))
}

func TestWebAuthnSignerFromCOSE(t *testing.T) {
	_, auth := newTestWebAuthnSigner(t)
	cose, err := auth.COSEPublicKey()
	require.Nil(t, err)

	s, err := NewWebAuthnSignerFromCOSE(auth, cose)
	require.Nil(t, err)
	x, y := s.PublicKey()
	ax, ay := auth.PublicKey()
	assert.Equal(t, 0, x.Cmp(ax))
	assert.Equal(t, 0, y.Cmp(ay))

	_, err = NewWebAuthnSignerFromCOSE(auth, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestNewWebAuthnSignerRejectsOffCurve(t *testing.T) {
	_, err := NewWebAuthnSigner(nil, big.NewInt(1), big.NewInt(2))
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestWebAuthnStubSignatureDecodes(t *testing.T) {
	s, _ := newTestWebAuthnSigner(t)
	assert.Equal(t, KindWebAuthn, s.Kind())
	_, ok := PrefixOf(s)
	assert.False(t, ok)

	sig, err := DecodeWebAuthnSignature(s.StubSignature())
	require.Nil(t, err)
	assert.EqualValues(t, 23, sig.ChallengeIndex.Int64())
	assert.EqualValues(t, 1, sig.TypeIndex.Int64())
	assert.Contains(t, sig.ClientDataJSON, `"type":"webauthn.get"`)
}
