package signer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mailTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Person": {
				{Name: "name", Type: "string"},
				{Name: "wallet", Type: "address"},
			},
			"Mail": {
				{Name: "from", Type: "Person"},
				{Name: "to", Type: "Person"},
				{Name: "contents", Type: "string"},
			},
		},
		PrimaryType: "Mail",
		Domain: apitypes.TypedDataDomain{
			Name:              "Ether Mail",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1),
			VerifyingContract: "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC",
		},
		Message: apitypes.TypedDataMessage{
			"from": map[string]interface{}{
				"name":   "Cow",
				"wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826",
			},
			"to": map[string]interface{}{
				"name":   "Bob",
				"wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB",
			},
			"contents": "Hello, Bob!",
		},
	}
}

func TestTypedDataHash(t *testing.T) {
	td := mailTypedData()
	h, err := TypedDataHash(td)
	require.Nil(t, err)
	assert.Equal(t, common.HexToHash("0xbe609aee343fb3c4b28e1df9e632fca64fcfaede20f02e86244efddf30957bd2"), h)

	// the domain type is derived when missing
	delete(td.Types, "EIP712Domain")
	derived, err := TypedDataHash(td)
	require.Nil(t, err)
	assert.Equal(t, h, derived)
	_, ok := td.Types["EIP712Domain"]
	assert.False(t, ok, "caller's types must not be mutated")
}

func TestPrivateKeySigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.Nil(t, err)
	s := NewPrivateKeySigner(key)
	ctx := context.Background()

	assert.Equal(t, KindLocal, s.Kind())
	prefix, ok := PrefixOf(s)
	assert.True(t, ok)
	assert.Equal(t, PrefixEOA, prefix)

	msg := []byte("hello")
	sig, err := s.SignMessage(ctx, msg)
	require.Nil(t, err)
	require.Len(t, sig, 65)
	assert.True(t, sig[64] == 27 || sig[64] == 28)
	assert.Equal(t, s.Address(), recoverSigner(t, accounts.TextHash(msg), sig))

	td := mailTypedData()
	sig, err = s.SignTypedData(ctx, td)
	require.Nil(t, err)
	h, err := TypedDataHash(td)
	require.Nil(t, err)
	assert.Equal(t, s.Address(), recoverSigner(t, h[:], sig))

	assert.Len(t, s.StubSignature(), 65)
}

func TestHexToPrivateKeySigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.Nil(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	s, err := HexToPrivateKeySigner(hexKey)
	require.Nil(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	s, err = HexToPrivateKeySigner(hexKey[2:])
	require.Nil(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	_, err = HexToPrivateKeySigner("0x1234")
	assert.NotNil(t, err)
}

type walletService struct {
	key *PrivateKeySigner
}

func (w *walletService) Sign(data hexutil.Bytes, addr common.Address) (hexutil.Bytes, error) {
	return w.key.SignMessage(context.Background(), data)
}

//nolint:revive,stylecheck
func (w *walletService) SignTypedData_v4(addr common.Address, td apitypes.TypedData) (hexutil.Bytes, error) {
	return w.key.SignTypedData(context.Background(), td)
}

func TestRPCSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.Nil(t, err)
	wallet := &walletService{key: NewPrivateKeySigner(key)}

	server := rpc.NewServer()
	require.Nil(t, server.RegisterName("personal", wallet))
	require.Nil(t, server.RegisterName("eth", wallet))
	defer server.Stop()
	client := rpc.DialInProc(server)
	defer client.Close()

	s := NewRPCSigner(client, wallet.key.Address())
	assert.Equal(t, KindJSONRPC, s.Kind())
	ctx := context.Background()

	sig, err := s.SignMessage(ctx, []byte("hello"))
	require.Nil(t, err)
	assert.Equal(t, s.Address(), recoverSigner(t, accounts.TextHash([]byte("hello")), sig))

	td := mailTypedData()
	delete(td.Types, "EIP712Domain")
	sig, err = s.SignTypedData(ctx, td)
	require.Nil(t, err)
	h, err := TypedDataHash(td)
	require.Nil(t, err)
	assert.Equal(t, s.Address(), recoverSigner(t, h[:], sig))
}

type fakeSmartAccount struct {
	address common.Address
	calls   []string
}

func (f *fakeSmartAccount) Address() common.Address { return f.address }

func (f *fakeSmartAccount) SignMessage(context.Context, []byte) ([]byte, error) {
	f.calls = append(f.calls, "message")
	return []byte{0xaa}, nil
}

func (f *fakeSmartAccount) SignTypedData(context.Context, apitypes.TypedData) ([]byte, error) {
	f.calls = append(f.calls, "typed")
	return []byte{0xbb}, nil
}

func TestContractSigner(t *testing.T) {
	inner := &fakeSmartAccount{address: common.HexToAddress("0x1234")}
	s := NewContractSigner(inner)
	prefix, ok := PrefixOf(s)
	assert.True(t, ok)
	assert.Equal(t, PrefixContract, prefix)
	assert.Equal(t, inner.address, s.Address())

	sig, err := s.SignMessage(context.Background(), []byte("x"))
	require.Nil(t, err)
	assert.Equal(t, []byte{0xaa}, sig)
	sig, err = s.SignTypedData(context.Background(), mailTypedData())
	require.Nil(t, err)
	assert.Equal(t, []byte{0xbb}, sig)
	assert.Equal(t, []string{"message", "typed"}, inner.calls)

	stub := s.StubSignature()
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x00}, stub[:7])
	assert.Len(t, stub, 72)
}

func recoverSigner(t *testing.T, hash, sig []byte) common.Address {
	t.Helper()
	sig = common.CopyBytes(sig)
	sig[64] -= 27
	pub, err := crypto.SigToPub(hash, sig)
	require.Nil(t, err)
	return crypto.PubkeyToAddress(*pub)
}
