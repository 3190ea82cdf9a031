// Package permissions compiles permission grants for a session key into a
// deferred installValidation of the single signer validation module.
package permissions

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

type Type string

const (
	// NativeTokenTransfer limits the native value the key may send.
	NativeTokenTransfer Type = "native-token-transfer"
	// ERC20TokenTransfer allows transfer and approve of one token up to an
	// allowance.
	ERC20TokenTransfer Type = "erc20-token-transfer"
	// GasLimit limits the gas the key may spend on user operations.
	GasLimit Type = "gas-limit"
	// ContractAccess allows every function of one contract.
	ContractAccess Type = "contract-access"
	// AccountFunctions allows calling the account's own functions directly.
	AccountFunctions Type = "account-functions"
	// FunctionsOnAllContracts allows selectors on any contract.
	FunctionsOnAllContracts Type = "functions-on-all-contracts"
	// FunctionsOnContract allows selectors on one contract.
	FunctionsOnContract Type = "functions-on-contract"
	// Root grants global validation and cannot be combined.
	Root Type = "root"
)

var (
	ErrRootPermissionOnly     = errors.New("root permission cannot be combined with other permissions")
	ErrAccountAddressAsTarget = errors.New("account address cannot be a target, use account functions instead")
	ErrZeroAddress            = errors.New("zero address provided")
	ErrNoFunctionsProvided    = errors.New("no functions provided")
	ErrValidationConfigUnset  = errors.New("validation is neither global nor bound to any selector")
	ErrExpiredDeadline        = errors.New("deadline has expired")
	ErrDeadlineOverLimit      = errors.New("deadline exceeds uint48")
	ErrSelectorNotAllowed     = errors.New("selector cannot be granted")
	ErrBuilderConsumed        = errors.New("builder has already been compiled")
	ErrUnsupportedPermission  = errors.New("unsupported permission type")
)

var (
	erc20ApproveSelector  = [4]byte{0x09, 0x5e, 0xa7, 0xb3}
	erc20TransferSelector = [4]byte{0xa9, 0x05, 0x9c, 0xbb}
)

// Permission is one grant. Which fields are read depends on Type:
//
//	native-token-transfer       Allowance
//	erc20-token-transfer        Address, Allowance
//	gas-limit                   Limit
//	contract-access             Address
//	account-functions           Functions
//	functions-on-all-contracts  Functions
//	functions-on-contract       Address, Functions
//	root                        nothing
type Permission struct {
	Type      Type
	Address   common.Address
	Allowance *big.Int
	Limit     *big.Int
	Functions [][4]byte
}

func (p Permission) String() string {
	switch p.Type {
	case ERC20TokenTransfer:
		return fmt.Sprintf("%s(%s, %s)", p.Type, p.Address.Hex(), p.Allowance)
	case NativeTokenTransfer:
		return fmt.Sprintf("%s(%s)", p.Type, p.Allowance)
	case GasLimit:
		return fmt.Sprintf("%s(%s)", p.Type, p.Limit)
	case ContractAccess:
		return fmt.Sprintf("%s(%s)", p.Type, p.Address.Hex())
	case FunctionsOnContract:
		return fmt.Sprintf("%s(%s, %d functions)", p.Type, p.Address.Hex(), len(p.Functions))
	case AccountFunctions, FunctionsOnAllContracts:
		return fmt.Sprintf("%s(%d functions)", p.Type, len(p.Functions))
	default:
		return string(p.Type)
	}
}

// ParseType accepts the hyphenated names and their upper snake case
// spelling, e.g. gas-limit or GAS_LIMIT.
func ParseType(s string) (Type, error) {
	for _, t := range []Type{NativeTokenTransfer, ERC20TokenTransfer, GasLimit, ContractAccess, AccountFunctions, FunctionsOnAllContracts, FunctionsOnContract, Root} {
		if s == string(t) || s == snake(t) {
			return t, nil
		}
	}
	return "", errors.Wrapf(ErrUnsupportedPermission, "%q", s)
}

func snake(t Type) string {
	out := []byte(t)
	for i, c := range out {
		switch {
		case c == '-':
			out[i] = '_'
		case c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

func amount(v *big.Int) (*big.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, errors.New("amount must be a non-negative integer")
	}
	return v, nil
}
