package account

import (
	"bytes"
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ValidationDataView is what getValidationData reports for one validation.
type ValidationDataView struct {
	ValidationFlags uint8
	ValidationHooks [][25]byte
	ExecutionHooks  [][25]byte
	Selectors       [][4]byte
}

// Installed reports whether anything occupies the entity.
func (v ValidationDataView) Installed() bool {
	return v.ValidationFlags != 0 || len(v.ValidationHooks) > 0 || len(v.ExecutionHooks) > 0 || len(v.Selectors) > 0
}

// ExecutionDataView is what getExecutionData reports for one selector.
type ExecutionDataView struct {
	Module                common.Address
	SkipRuntimeValidation bool
	AllowGlobalValidation bool
	ExecutionHooks        [][25]byte
}

// IsDeployed reports whether the account has code. A 7702 account counts as
// deployed only once it delegates to the expected implementation.
func (a *Account) IsDeployed(ctx context.Context) (bool, error) {
	code, err := a.reader.CodeAt(ctx, a.address, nil)
	if err != nil {
		return false, errors.Wrap(err, "get account code")
	}
	if !bytes.HasPrefix(code, delegationPrefix) {
		return len(code) > 0, nil
	}
	if a.mode != Mode7702 {
		return false, errors.Wrapf(ErrAlreadyDelegated, "%s has 7702 code but the account is not in 7702 mode", a.address)
	}
	expected := append(common.CopyBytes(delegationPrefix), a.addrs.SemiModularAccount7702.Bytes()...)
	return bytes.Equal(code, expected), nil
}

// GetValidationData reads the validation installed at entity. An undeployed
// account reports an empty view.
func (a *Account) GetValidationData(ctx context.Context, entity ModuleEntity) (ValidationDataView, error) {
	var (
		deployed bool
		out      []interface{}
		readErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		deployed, err = a.IsDeployed(gctx)
		return err
	})
	g.Go(func() error {
		// an undeployed account fails this read; the error only matters once
		// deployment is confirmed
		out, readErr = call(gctx, a.reader, a.address, ModularAccountABI, "getValidationData", entity)
		return nil
	})
	if err := g.Wait(); err != nil {
		return ValidationDataView{}, err
	}
	if !deployed {
		return ValidationDataView{}, nil
	}
	if readErr != nil {
		return ValidationDataView{}, readErr
	}
	return *abi.ConvertType(out[0], new(ValidationDataView)).(*ValidationDataView), nil
}

// GetExecutionData reads the execution function installed for selector.
func (a *Account) GetExecutionData(ctx context.Context, selector [4]byte) (ExecutionDataView, error) {
	var (
		deployed bool
		out      []interface{}
		readErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		deployed, err = a.IsDeployed(gctx)
		return err
	})
	g.Go(func() error {
		out, readErr = call(gctx, a.reader, a.address, ModularAccountABI, "getExecutionData", selector)
		return nil
	})
	if err := g.Wait(); err != nil {
		return ExecutionDataView{}, err
	}
	if !deployed {
		return ExecutionDataView{}, nil
	}
	if readErr != nil {
		return ExecutionDataView{}, readErr
	}
	return *abi.ConvertType(out[0], new(ExecutionDataView)).(*ExecutionDataView), nil
}
