package account

//go:generate mockgen -destination mock_account/mock_account.go -package mock_account -source caller.go

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ContractReader is the read side of a chain connection. *ethclient.Client
// satisfies it.
type ContractReader interface {
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ bind.ContractCaller = ContractReader(nil)

func call(ctx context.Context, r ContractReader, address common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	c := bind.NewBoundContract(address, contractABI, r, nil, nil)
	var out []interface{}
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, errors.Wrapf(err, "call %s on %s", method, address)
	}
	return out, nil
}

// GetEntryPointNonce reads entryPoint.getNonce(sender, key).
func GetEntryPointNonce(ctx context.Context, r ContractReader, entryPoint, sender common.Address, key *big.Int) (*big.Int, error) {
	out, err := call(ctx, r, entryPoint, EntryPointABI, "getNonce", sender, key)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
