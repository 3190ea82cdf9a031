package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is an ERC-4337 v0.7 user operation in its RPC form.
type UserOperation struct {
	Sender                        common.Address  `json:"sender"                                  mapstructure:"sender"                        validate:"required"`
	Nonce                         *hexutil.Big    `json:"nonce"                                   mapstructure:"nonce"                         validate:"required"`
	Factory                       *common.Address `json:"factory,omitempty"                       mapstructure:"factory"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"                   mapstructure:"factoryData"`
	CallData                      hexutil.Bytes   `json:"callData"                                mapstructure:"callData"                      validate:"required"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"                            mapstructure:"callGasLimit"                  validate:"required"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"                    mapstructure:"verificationGasLimit"          validate:"required"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"                      mapstructure:"preVerificationGas"            validate:"required"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"                            mapstructure:"maxFeePerGas"                  validate:"required"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"                    mapstructure:"maxPriorityFeePerGas"          validate:"required"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"                     mapstructure:"paymaster"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty" mapstructure:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"       mapstructure:"paymasterPostOpGasLimit"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"                 mapstructure:"paymasterData"`
	Signature                     hexutil.Bytes   `json:"signature"                               mapstructure:"signature"`
}

// InitCode is factory || factoryData, empty when there is no factory.
func (op *UserOperation) InitCode() []byte {
	if op.Factory == nil {
		return nil
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

// PaymasterAndData is paymaster || uint128 verificationGas || uint128 postOpGas || data.
func (op *UserOperation) PaymasterAndData() []byte {
	if op.Paymaster == nil {
		return nil
	}
	out := op.Paymaster.Bytes()
	out = append(out, common.LeftPadBytes(toInt(op.PaymasterVerificationGasLimit).Bytes(), 16)...)
	out = append(out, common.LeftPadBytes(toInt(op.PaymasterPostOpGasLimit).Bytes(), 16)...)
	return append(out, op.PaymasterData...)
}

// AccountGasLimits packs verificationGasLimit and callGasLimit into one word.
func (op *UserOperation) AccountGasLimits() [32]byte {
	return packUint128Pair(toInt(op.VerificationGasLimit), toInt(op.CallGasLimit))
}

// GasFees packs maxPriorityFeePerGas and maxFeePerGas into one word.
func (op *UserOperation) GasFees() [32]byte {
	return packUint128Pair(toInt(op.MaxPriorityFeePerGas), toInt(op.MaxFeePerGas))
}

// Hash returns the v0.7 user operation hash the entrypoint computes for op.
// The signature field does not take part in it.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	address, _ := abi.NewType("address", "", nil)
	uint256, _ := abi.NewType("uint256", "", nil)
	bytes32, _ := abi.NewType("bytes32", "", nil)
	args := abi.Arguments{
		{Name: "sender", Type: address},
		{Name: "nonce", Type: uint256},
		{Name: "hashInitCode", Type: bytes32},
		{Name: "hashCallData", Type: bytes32},
		{Name: "accountGasLimits", Type: bytes32},
		{Name: "preVerificationGas", Type: uint256},
		{Name: "gasFees", Type: bytes32},
		{Name: "hashPaymasterAndData", Type: bytes32},
	}
	packed, err := args.Pack(
		op.Sender,
		toInt(op.Nonce),
		crypto.Keccak256Hash(op.InitCode()),
		crypto.Keccak256Hash(op.CallData),
		op.AccountGasLimits(),
		toInt(op.PreVerificationGas),
		op.GasFees(),
		crypto.Keccak256Hash(op.PaymasterAndData()),
	)
	if err != nil {
		return common.Hash{}, err
	}

	outer := abi.Arguments{
		{Name: "userOpHash", Type: bytes32},
		{Name: "entryPoint", Type: address},
		{Name: "chainId", Type: uint256},
	}
	packed, err = outer.Pack(crypto.Keccak256Hash(packed), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

func toInt(b *hexutil.Big) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b.ToInt()
}

func packUint128Pair(hi, lo *big.Int) [32]byte {
	var out [32]byte
	copy(out[:16], common.LeftPadBytes(hi.Bytes(), 16))
	copy(out[16:], common.LeftPadBytes(lo.Bytes(), 16))
	return out
}
