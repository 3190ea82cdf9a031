package bundler

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/base-org/modular-account/account"
	"github.com/base-org/modular-account/signer"
)

// Bundler is the part of Client an AccountClient uses.
type Bundler interface {
	EstimateUserOperationGas(ctx context.Context, op *signer.UserOperation) (*GasEstimate, error)
	SendUserOperation(ctx context.Context, op *signer.UserOperation) (common.Hash, error)
}

var _ Bundler = (*Client)(nil)

// Fees are the caller chosen gas prices of a user operation.
type Fees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Paymaster sponsors the user operation. Gas limits left nil are taken from
// the estimate.
type Paymaster struct {
	Address              common.Address
	Data                 []byte
	VerificationGasLimit *big.Int
	PostOpGasLimit       *big.Int
}

// AccountClient turns calls of one account into signed user operations.
type AccountClient struct {
	acct      *account.Account
	bundler   Bundler
	paymaster *Paymaster
	logger    logrus.FieldLogger
}

func NewAccountClient(acct *account.Account, b Bundler, logger logrus.FieldLogger) *AccountClient {
	if logger == nil {
		logger = logrus.StandardLogger().WithField("module", "bundler")
	}
	return &AccountClient{
		acct:    acct,
		bundler: b,
		logger:  logger.WithField("account", acct.Address().Hex()),
	}
}

// WithPaymaster sponsors every following operation through pm.
func (c *AccountClient) WithPaymaster(pm *Paymaster) *AccountClient {
	c.paymaster = pm
	return c
}

func (c *AccountClient) Account() *account.Account { return c.acct }

// BuildUserOperation fills nonce, factory, fees and gas limits for callData.
// The returned operation carries a stub signature.
func (c *AccountClient) BuildUserOperation(ctx context.Context, callData []byte, fees Fees) (*signer.UserOperation, error) {
	if fees.MaxFeePerGas == nil || fees.MaxPriorityFeePerGas == nil {
		return nil, errors.New("fees are required")
	}
	nonce, err := c.acct.GetNonce(ctx, nil)
	if err != nil {
		return nil, err
	}
	factory, factoryData, err := c.acct.FactoryArgs(ctx)
	if err != nil {
		return nil, err
	}
	zero := (*hexutil.Big)(new(big.Int))
	op := &signer.UserOperation{
		Sender:               c.acct.Address(),
		Nonce:                (*hexutil.Big)(nonce),
		Factory:              factory,
		FactoryData:          factoryData,
		CallData:             callData,
		CallGasLimit:         zero,
		VerificationGasLimit: zero,
		PreVerificationGas:   zero,
		MaxFeePerGas:         (*hexutil.Big)(fees.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(fees.MaxPriorityFeePerGas),
		Signature:            c.acct.StubSignature(),
	}
	if pm := c.paymaster; pm != nil {
		op.Paymaster = &pm.Address
		op.PaymasterData = pm.Data
		op.PaymasterVerificationGasLimit = (*hexutil.Big)(pm.VerificationGasLimit)
		op.PaymasterPostOpGasLimit = (*hexutil.Big)(pm.PostOpGasLimit)
	}

	est, err := c.bundler.EstimateUserOperationGas(ctx, op)
	if err != nil {
		return nil, err
	}
	op.PreVerificationGas = est.PreVerificationGas
	op.VerificationGasLimit = est.VerificationGasLimit
	op.CallGasLimit = est.CallGasLimit
	if op.Paymaster != nil {
		if op.PaymasterVerificationGasLimit == nil {
			op.PaymasterVerificationGasLimit = est.PaymasterVerificationGasLimit
		}
		if op.PaymasterPostOpGasLimit == nil {
			op.PaymasterPostOpGasLimit = est.PaymasterPostOpGasLimit
		}
	}
	c.logger.WithFields(logrus.Fields{
		"nonce":        nonce,
		"deploy":       factory != nil,
		"call_gas":     est.CallGasLimit,
		"verification": est.VerificationGasLimit,
	}).Debug("Built user operation")
	return op, nil
}

// SendCallData builds, signs and submits a user operation executing
// callData, which is already encoded for the account.
func (c *AccountClient) SendCallData(ctx context.Context, callData []byte, fees Fees) (common.Hash, error) {
	op, err := c.BuildUserOperation(ctx, callData, fees)
	if err != nil {
		return common.Hash{}, err
	}
	if op.Signature, err = c.acct.SignUserOperation(ctx, op); err != nil {
		return common.Hash{}, err
	}
	hash, err := c.bundler.SendUserOperation(ctx, op)
	if err != nil {
		return common.Hash{}, err
	}
	c.logger.WithFields(logrus.Fields{
		"hash":  hash.Hex(),
		"nonce": op.Nonce,
	}).Info("Sent user operation")
	return hash, nil
}

// SendCalls executes calls from the account.
func (c *AccountClient) SendCalls(ctx context.Context, calls []account.Call, fees Fees) (common.Hash, error) {
	callData, err := c.acct.EncodeCalls(ctx, calls)
	if err != nil {
		return common.Hash{}, err
	}
	return c.SendCallData(ctx, callData, fees)
}

// InstallValidation installs a validation on the account.
func (c *AccountClient) InstallValidation(ctx context.Context, req account.InstallValidationRequest, fees Fees) (common.Hash, error) {
	callData, err := c.acct.EncodeInstallValidation(ctx, req)
	if err != nil {
		return common.Hash{}, err
	}
	return c.SendCallData(ctx, callData, fees)
}

// UninstallValidation removes a validation from the account.
func (c *AccountClient) UninstallValidation(ctx context.Context, req account.UninstallValidationRequest, fees Fees) (common.Hash, error) {
	callData, err := c.acct.EncodeUninstallValidation(ctx, req)
	if err != nil {
		return common.Hash{}, err
	}
	return c.SendCallData(ctx, callData, fees)
}
