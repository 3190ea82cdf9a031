package signer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEntryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

func testUserOperation() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Nonce:                (*hexutil.Big)(big.NewInt(7)),
		CallData:             hexutil.MustDecode("0xb61d27f6"),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(100_000)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(200_000)),
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(50_000)),
		MaxFeePerGas:         (*hexutil.Big)(big.NewInt(2_000_000_000)),
		MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(1_000_000_000)),
	}
}

func TestUserOperationPacking(t *testing.T) {
	op := testUserOperation()
	assert.Empty(t, op.InitCode())
	assert.Empty(t, op.PaymasterAndData())

	limits := op.AccountGasLimits()
	assert.Equal(t, 0, new(big.Int).SetBytes(limits[:16]).Cmp(big.NewInt(200_000)))
	assert.Equal(t, 0, new(big.Int).SetBytes(limits[16:]).Cmp(big.NewInt(100_000)))

	fees := op.GasFees()
	assert.Equal(t, 0, new(big.Int).SetBytes(fees[:16]).Cmp(big.NewInt(1_000_000_000)))
	assert.Equal(t, 0, new(big.Int).SetBytes(fees[16:]).Cmp(big.NewInt(2_000_000_000)))

	factory := common.HexToAddress("0x00000000000017c61b5bEe81050EC8eFc9c6fecd")
	op.Factory = &factory
	op.FactoryData = []byte{0xde, 0xad}
	assert.Equal(t, append(factory.Bytes(), 0xde, 0xad), op.InitCode())

	paymaster := common.HexToAddress("0x0000000000001aA7A7F7E29abe0be06c72FE3B3D")
	op.Paymaster = &paymaster
	op.PaymasterVerificationGasLimit = (*hexutil.Big)(big.NewInt(1))
	op.PaymasterPostOpGasLimit = (*hexutil.Big)(big.NewInt(2))
	op.PaymasterData = []byte{0xff}
	pnd := op.PaymasterAndData()
	require.Len(t, pnd, 20+16+16+1)
	assert.Equal(t, paymaster.Bytes(), pnd[:20])
	assert.Equal(t, byte(1), pnd[35])
	assert.Equal(t, byte(2), pnd[51])
	assert.Equal(t, byte(0xff), pnd[52])
}

func TestUserOperationHash(t *testing.T) {
	op := testUserOperation()
	chainID := big.NewInt(11155111)

	h1, err := op.Hash(testEntryPoint, chainID)
	require.Nil(t, err)

	op.Signature = []byte{1, 2, 3}
	h2, err := op.Hash(testEntryPoint, chainID)
	require.Nil(t, err)
	assert.Equal(t, h1, h2, "signature is not part of the hash")

	h3, err := op.Hash(testEntryPoint, big.NewInt(1))
	require.Nil(t, err)
	assert.NotEqual(t, h1, h3)

	op.Nonce = (*hexutil.Big)(big.NewInt(8))
	h4, err := op.Hash(testEntryPoint, chainID)
	require.Nil(t, err)
	assert.NotEqual(t, h1, h4)
}

func TestUserOperationHashNilFields(t *testing.T) {
	op := &UserOperation{Sender: common.HexToAddress("0x01")}
	_, err := op.Hash(testEntryPoint, big.NewInt(1))
	assert.Nil(t, err)
}
