// Package testutil holds an in-memory chain that answers the reads an
// account client makes.
package testutil

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/base-org/modular-account/account"
)

// RevertError carries revert data the way an RPC node reports it.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string          { return "execution reverted" }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

// Chain is an account.ContractReader backed by maps. The entrypoint nonce
// for a key is key << 64 | sequence.
type Chain struct {
	mu          sync.Mutex
	code        map[common.Address][]byte
	sequences   map[common.Address]map[string]uint64
	validations map[common.Address]map[account.ModuleEntity]account.ValidationDataView
	execution   map[common.Address]map[[4]byte]account.ExecutionDataView
	senders     map[string]common.Address
	calls       map[string]int
}

func NewChain() *Chain {
	return &Chain{
		code:        make(map[common.Address][]byte),
		sequences:   make(map[common.Address]map[string]uint64),
		validations: make(map[common.Address]map[account.ModuleEntity]account.ValidationDataView),
		execution:   make(map[common.Address]map[[4]byte]account.ExecutionDataView),
		senders:     make(map[string]common.Address),
		calls:       make(map[string]int),
	}
}

// Deploy gives address some code.
func (c *Chain) Deploy(address common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(code) == 0 {
		code = []byte{0x60, 0x00}
	}
	c.code[address] = code
}

// SetSequence sets the in-key sequence the entrypoint reports for key.
func (c *Chain) SetSequence(sender common.Address, key *big.Int, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sequences[sender] == nil {
		c.sequences[sender] = make(map[string]uint64)
	}
	c.sequences[sender][key.String()] = seq
}

// Install records a validation view at the entity.
func (c *Chain) Install(acct common.Address, entity account.ModuleEntity, view account.ValidationDataView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.validations[acct] == nil {
		c.validations[acct] = make(map[account.ModuleEntity]account.ValidationDataView)
	}
	c.validations[acct][entity] = view
}

// SetExecution records the execution view of a selector.
func (c *Chain) SetExecution(acct common.Address, selector [4]byte, view account.ExecutionDataView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.execution[acct] == nil {
		c.execution[acct] = make(map[[4]byte]account.ExecutionDataView)
	}
	c.execution[acct][selector] = view
}

// SetSender makes getSenderAddress report sender for initCode.
func (c *Chain) SetSender(initCode []byte, sender common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.senders[string(initCode)] = sender
}

// Calls returns how often method was called.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *Chain) CodeAt(_ context.Context, contract common.Address, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["code"]++
	return common.CopyBytes(c.code[contract]), nil
}

func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("unsupported call")
	}
	to := *msg.To
	for _, contractABI := range []abi.ABI{account.EntryPointABI, account.ModularAccountABI} {
		method, err := contractABI.MethodById(msg.Data[:4])
		if err != nil {
			continue
		}
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.calls[method.Name]++
		return c.dispatch(to, method, args)
	}
	return nil, errors.Errorf("unknown selector %x", msg.Data[:4])
}

func (c *Chain) dispatch(to common.Address, method *abi.Method, args []interface{}) ([]byte, error) {
	switch method.Name {
	case "getNonce":
		sender, key := args[0].(common.Address), args[1].(*big.Int)
		nonce := new(big.Int).Lsh(key, 64)
		nonce.Or(nonce, new(big.Int).SetUint64(c.sequences[sender][key.String()]))
		return method.Outputs.Pack(nonce)
	case "getSenderAddress":
		initCode := args[0].([]byte)
		sender, ok := c.senders[string(initCode)]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		resultErr := account.EntryPointABI.Errors["SenderAddressResult"]
		data, err := resultErr.Inputs.Pack(sender)
		if err != nil {
			return nil, err
		}
		return nil, &RevertError{Data: append(common.CopyBytes(resultErr.ID[:4]), data...)}
	case "getValidationData":
		if len(c.code[to]) == 0 {
			return nil, nil
		}
		entity := account.ModuleEntity(args[0].([24]byte))
		return method.Outputs.Pack(c.validations[to][entity])
	case "getExecutionData":
		if len(c.code[to]) == 0 {
			return nil, nil
		}
		return method.Outputs.Pack(c.execution[to][args[0].([4]byte)])
	default:
		return nil, errors.Errorf("unsupported method %s", method.Name)
	}
}
