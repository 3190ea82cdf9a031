// Package bundler talks to an ERC-4337 bundler and submits user operations
// for a Modular Account V2.
package bundler

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/base-org/modular-account/signer"
)

// GasEstimate is the result of eth_estimateUserOperationGas.
type GasEstimate struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

// TransactionReceipt is the part of the bundle transaction receipt kept here.
type TransactionReceipt struct {
	TransactionHash common.Hash  `json:"transactionHash"`
	BlockHash       common.Hash  `json:"blockHash"`
	BlockNumber     *hexutil.Big `json:"blockNumber"`
}

// Receipt is the result of eth_getUserOperationReceipt.
type Receipt struct {
	UserOpHash    common.Hash        `json:"userOpHash"`
	EntryPoint    common.Address     `json:"entryPoint"`
	Sender        common.Address     `json:"sender"`
	Nonce         *hexutil.Big       `json:"nonce"`
	Paymaster     *common.Address    `json:"paymaster,omitempty"`
	ActualGasCost *hexutil.Big       `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big       `json:"actualGasUsed"`
	Success       bool               `json:"success"`
	Reason        string             `json:"reason,omitempty"`
	Receipt       TransactionReceipt `json:"receipt"`
}

// Client is a bundler JSON-RPC client bound to one entrypoint.
type Client struct {
	c          *rpc.Client
	entryPoint common.Address
	validate   *validator.Validate
}

func NewClient(c *rpc.Client, entryPoint common.Address) *Client {
	return &Client{c: c, entryPoint: entryPoint, validate: validator.New()}
}

// Dial connects to the bundler at url.
func Dial(ctx context.Context, url string, entryPoint common.Address) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial bundler %s", url)
	}
	return NewClient(c, entryPoint), nil
}

func (c *Client) Close() { c.c.Close() }

func (c *Client) EntryPoint() common.Address { return c.entryPoint }

// SupportedEntryPoints returns the entrypoints the bundler accepts.
func (c *Client) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	if err := c.c.CallContext(ctx, &out, "eth_supportedEntryPoints"); err != nil {
		return nil, errors.Wrap(err, "eth_supportedEntryPoints")
	}
	return out, nil
}

// EstimateUserOperationGas estimates op, which must carry a stub signature
// of the right shape.
func (c *Client) EstimateUserOperationGas(ctx context.Context, op *signer.UserOperation) (*GasEstimate, error) {
	var est GasEstimate
	if err := c.c.CallContext(ctx, &est, "eth_estimateUserOperationGas", op, c.entryPoint); err != nil {
		return nil, errors.Wrap(err, "eth_estimateUserOperationGas")
	}
	if est.PreVerificationGas == nil || est.VerificationGasLimit == nil || est.CallGasLimit == nil {
		return nil, errors.New("bundler returned an incomplete gas estimate")
	}
	return &est, nil
}

// SendUserOperation submits a signed op and returns its hash.
func (c *Client) SendUserOperation(ctx context.Context, op *signer.UserOperation) (common.Hash, error) {
	if err := c.validate.Struct(op); err != nil {
		return common.Hash{}, errors.Wrap(err, "invalid user operation")
	}
	var hash common.Hash
	if err := c.c.CallContext(ctx, &hash, "eth_sendUserOperation", op, c.entryPoint); err != nil {
		return common.Hash{}, errors.Wrap(err, "eth_sendUserOperation")
	}
	return hash, nil
}

// GetUserOperationReceipt returns nil while the operation is not included.
func (c *Client) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var r *Receipt
	if err := c.c.CallContext(ctx, &r, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, errors.Wrap(err, "eth_getUserOperationReceipt")
	}
	return r, nil
}

// WaitForUserOperationReceipt polls until the operation is included or ctx
// is done.
func (c *Client) WaitForUserOperationReceipt(ctx context.Context, hash common.Hash, interval time.Duration) (*Receipt, error) {
	if interval <= 0 {
		return nil, errors.Errorf("invalid poll interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r, err := c.GetUserOperationReceipt(ctx, hash)
		if err != nil {
			// the transport reports an expired deadline as its own i/o error
			if ctx.Err() != nil {
				return nil, errors.Wrapf(ctx.Err(), "waiting for user operation %s", hash.Hex())
			}
			return nil, err
		}
		if r != nil {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for user operation %s", hash.Hex())
		case <-ticker.C:
		}
	}
}
