package account

import (
	"encoding/binary"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

func testDeferredNonce(t *testing.T, id EntityID, global bool) *big.Int {
	key, err := BuildFullNonceKey(NonceKey{EntityID: id, IsGlobalValidation: global, IsDeferredAction: true})
	require.Nil(t, err)
	return firstNonce(key)
}

func TestPreSignatureDigestLayout(t *testing.T) {
	call := hexutil.MustDecode("0xdeadbeef")
	td := NewDeferredActionTypedData(big.NewInt(1), testAccount, call, 0x010203040506, testDeferredNonce(t, 2, true))

	digest, err := BuildPreSignatureDeferredActionDigest(OwnerSignerEntity(), td)
	require.Nil(t, err)
	require.Len(t, digest, 4+21+6+4)
	assert.EqualValues(t, 31, binary.BigEndian.Uint32(digest[:4]))
	// owner entity 0 with the global bit
	assert.Equal(t, append(make([]byte, 20), 0x01), digest[4:25])
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, digest[25:31])
	assert.Equal(t, call, digest[31:])

	other, err := BuildPreSignatureDeferredActionDigest(SignerEntity{EntityID: 9}, td)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x09, 0x00}, other[23:25])
}

func TestDeferredActionRoundTrip(t *testing.T) {
	call := hexutil.MustDecode("0x1234")
	nonce := testDeferredNonce(t, 5, false)
	td := NewDeferredActionTypedData(big.NewInt(8453), testAccount, call, 0, nonce)

	pre, err := BuildPreSignatureDeferredActionDigest(OwnerSignerEntity(), td)
	require.Nil(t, err)
	full := BuildFullPreSignatureDeferredActionDigest(true, nonce, pre)
	assert.Equal(t, byte(0x01), full[0])
	assert.Equal(t, common.LeftPadBytes(nonce.Bytes(), 32), full[1:33])

	sig := append([]byte{0x00}, make([]byte, 65)...)
	blob := BuildDeferredActionDigest(full, sig)

	da, err := ParseDeferredAction(blob)
	require.Nil(t, err)
	assert.Equal(t, 0, nonce.Cmp(da.Nonce))
	assert.Equal(t, EntityID(5), da.EntityID)
	assert.False(t, da.IsGlobalValidation)
	assert.True(t, da.HasAssociatedExecHooks)
	assert.Equal(t, blob[33:], da.Data)
	assert.Equal(t, blob, da.Encode())

	data, err := DecodeDeferredActionData(da.Data)
	require.Nil(t, err)
	assert.Equal(t, OwnerSignerEntity(), data.Signer)
	assert.EqualValues(t, 0, data.Deadline)
	assert.Equal(t, call, data.Call)
	assert.Equal(t, sig, data.Signature)

	userOpSig := PrependDeferredAction(da.Data, PackUserOpSignature([]byte{0x00}, []byte{0xaa}))
	prefix, rest, err := SplitDeferredAction(userOpSig)
	require.Nil(t, err)
	assert.Equal(t, da.Data, prefix)
	assert.Equal(t, []byte{0xff, 0x00, 0xaa}, rest)
}

func TestParseDeferredActionRejectsMalformed(t *testing.T) {
	_, err := ParseDeferredAction(make([]byte, 32))
	assert.ErrorIs(t, err, ErrInvalidDeferredAction)

	bad := make([]byte, 33)
	bad[0] = 0x02
	_, err = ParseDeferredAction(bad)
	assert.ErrorIs(t, err, ErrInvalidDeferredAction)

	// length prefix pointing past the end
	truncated := append(make([]byte, 33), 0, 0, 0, 40, 1, 2)
	_, err = ParseDeferredAction(truncated)
	assert.ErrorIs(t, err, ErrInvalidDeferredAction)
}

func TestDeferredActionMessageAfterJSON(t *testing.T) {
	td := NewDeferredActionTypedData(big.NewInt(1), testAccount, []byte{0xab}, 1700000000, big.NewInt(77))
	raw, err := json.Marshal(td)
	require.Nil(t, err)
	var decoded apitypes.TypedData
	require.Nil(t, json.Unmarshal(raw, &decoded))

	nonce, deadline, call, err := DeferredActionMessage(decoded)
	require.Nil(t, err)
	assert.EqualValues(t, 77, nonce.Int64())
	assert.EqualValues(t, 1700000000, deadline)
	assert.Equal(t, []byte{0xab}, call)

	h1, err := DeferredActionHash(td)
	require.Nil(t, err)
	h2, err := DeferredActionHash(decoded)
	require.Nil(t, err)
	assert.Equal(t, h1, h2)

	assert.True(t, IsDeferredActionFor(decoded, testAccount))
	assert.False(t, IsDeferredActionFor(decoded, common.Address{}))
}

func TestDeferredActionMessageDeadlineRange(t *testing.T) {
	td := NewDeferredActionTypedData(big.NewInt(1), testAccount, nil, MaxUint48+1, big.NewInt(0))
	_, err := BuildPreSignatureDeferredActionDigest(OwnerSignerEntity(), td)
	assert.ErrorIs(t, err, ErrInvalidDeferredAction)
}
