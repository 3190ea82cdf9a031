// Package modules encodes the onInstall and onUninstall payloads of the
// Modular Account V2 validation and hook modules.
package modules

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/base-org/modular-account/account"
)

var (
	uint32Ty, _  = abi.NewType("uint32", "", nil)
	uint48Ty, _  = abi.NewType("uint48", "", nil)
	uint256Ty, _ = abi.NewType("uint256", "", nil)
	addressTy, _ = abi.NewType("address", "", nil)

	allowlistInputsTy, _ = abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "hasSelectorAllowlist", Type: "bool"},
		{Name: "hasERC20SpendLimit", Type: "bool"},
		{Name: "erc20SpendLimit", Type: "uint256"},
		{Name: "selectors", Type: "bytes4[]"},
	})
)

var (
	entityArgs = abi.Arguments{{Type: uint32Ty}}

	singleSignerArgs     = abi.Arguments{{Name: "entityId", Type: uint32Ty}, {Name: "signer", Type: addressTy}}
	webAuthnArgs         = abi.Arguments{{Name: "entityId", Type: uint32Ty}, {Name: "x", Type: uint256Ty}, {Name: "y", Type: uint256Ty}}
	allowlistArgs        = abi.Arguments{{Name: "entityId", Type: uint32Ty}, {Name: "inputs", Type: allowlistInputsTy}}
	nativeTokenLimitArgs = abi.Arguments{{Name: "entityId", Type: uint32Ty}, {Name: "spendLimit", Type: uint256Ty}}
	timeRangeArgs        = abi.Arguments{{Name: "entityId", Type: uint32Ty}, {Name: "validUntil", Type: uint48Ty}, {Name: "validAfter", Type: uint48Ty}}
	paymasterGuardArgs   = abi.Arguments{{Name: "entityId", Type: uint32Ty}, {Name: "paymaster", Type: addressTy}}
)

// SingleSignerInstallData sets signer as the key of entityID in the
// SingleSignerValidationModule.
func SingleSignerInstallData(entityID account.EntityID, signer common.Address) ([]byte, error) {
	data, err := singleSignerArgs.Pack(uint32(entityID), signer)
	if err != nil {
		return nil, errors.Wrap(err, "encode single signer install data")
	}
	return data, nil
}

// WebAuthnInstallData sets the P-256 public key of entityID in the
// WebAuthnValidationModule.
func WebAuthnInstallData(entityID account.EntityID, x, y *big.Int) ([]byte, error) {
	if x == nil || y == nil {
		return nil, errors.New("webauthn public key is incomplete")
	}
	data, err := webAuthnArgs.Pack(uint32(entityID), x, y)
	if err != nil {
		return nil, errors.Wrap(err, "encode webauthn install data")
	}
	return data, nil
}

// AllowlistInput is one entry of the AllowlistModule. A zero Target applies
// the selector allowlist to every contract.
type AllowlistInput struct {
	Target               common.Address `abi:"target"`
	HasSelectorAllowlist bool           `abi:"hasSelectorAllowlist"`
	HasERC20SpendLimit   bool           `abi:"hasERC20SpendLimit"`
	ERC20SpendLimit      *big.Int       `abi:"erc20SpendLimit"`
	Selectors            [][4]byte      `abi:"selectors"`
}

// AllowlistInstallData encodes the inputs in order. The module applies them
// in the order given.
func AllowlistInstallData(entityID account.EntityID, inputs []AllowlistInput) ([]byte, error) {
	packed := make([]AllowlistInput, len(inputs))
	for i, in := range inputs {
		if in.ERC20SpendLimit == nil {
			in.ERC20SpendLimit = new(big.Int)
		}
		if in.Selectors == nil {
			in.Selectors = [][4]byte{}
		}
		packed[i] = in
	}
	data, err := allowlistArgs.Pack(uint32(entityID), packed)
	if err != nil {
		return nil, errors.Wrap(err, "encode allowlist install data")
	}
	return data, nil
}

// DecodeAllowlistInstallData is the inverse of AllowlistInstallData.
func DecodeAllowlistInstallData(data []byte) (account.EntityID, []AllowlistInput, error) {
	values, err := allowlistArgs.Unpack(data)
	if err != nil {
		return 0, nil, errors.Wrap(err, "decode allowlist install data")
	}
	inputs := *abi.ConvertType(values[1], new([]AllowlistInput)).(*[]AllowlistInput)
	return account.EntityID(values[0].(uint32)), inputs, nil
}

// NativeTokenLimitInstallData sets the spend limit of entityID. The same
// module limits native value as an execution hook and gas as a validation
// hook.
func NativeTokenLimitInstallData(entityID account.EntityID, spendLimit *big.Int) ([]byte, error) {
	if spendLimit == nil || spendLimit.Sign() < 0 {
		return nil, errors.New("spend limit must be a non-negative integer")
	}
	data, err := nativeTokenLimitArgs.Pack(uint32(entityID), spendLimit)
	if err != nil {
		return nil, errors.Wrap(err, "encode native token limit install data")
	}
	return data, nil
}

// DecodeNativeTokenLimitInstallData is the inverse of
// NativeTokenLimitInstallData.
func DecodeNativeTokenLimitInstallData(data []byte) (account.EntityID, *big.Int, error) {
	values, err := nativeTokenLimitArgs.Unpack(data)
	if err != nil {
		return 0, nil, errors.Wrap(err, "decode native token limit install data")
	}
	return account.EntityID(values[0].(uint32)), values[1].(*big.Int), nil
}

// TimeRangeInstallData bounds when entityID may validate. A validUntil of 0
// means no upper bound.
func TimeRangeInstallData(entityID account.EntityID, validUntil, validAfter uint64) ([]byte, error) {
	if validUntil > account.MaxUint48 || validAfter > account.MaxUint48 {
		return nil, errors.Errorf("time range %d..%d exceeds uint48", validAfter, validUntil)
	}
	if validUntil != 0 && validAfter >= validUntil {
		return nil, errors.Errorf("validAfter %d is not before validUntil %d", validAfter, validUntil)
	}
	data, err := timeRangeArgs.Pack(uint32(entityID), new(big.Int).SetUint64(validUntil), new(big.Int).SetUint64(validAfter))
	if err != nil {
		return nil, errors.Wrap(err, "encode time range install data")
	}
	return data, nil
}

// PaymasterGuardInstallData pins entityID to paymaster.
func PaymasterGuardInstallData(entityID account.EntityID, paymaster common.Address) ([]byte, error) {
	data, err := paymasterGuardArgs.Pack(uint32(entityID), paymaster)
	if err != nil {
		return nil, errors.Wrap(err, "encode paymaster guard install data")
	}
	return data, nil
}

// UninstallData is the onUninstall payload of every module keyed by entity
// alone: single signer, webauthn, native token limit, time range and
// paymaster guard.
func UninstallData(entityID account.EntityID) []byte {
	data, _ := entityArgs.Pack(uint32(entityID))
	return data
}
