package account

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// InstallValidationRequest is one installValidation call.
type InstallValidationRequest struct {
	Config      ValidationConfig
	Selectors   [][4]byte
	InstallData []byte
	Hooks       []Hook
}

// UninstallValidationRequest is one uninstallValidation call.
type UninstallValidationRequest struct {
	Module             common.Address
	EntityID           EntityID
	UninstallData      []byte
	HookUninstallDatas [][]byte
}

// EncodeInstallValidationCall returns the bare installValidation call data.
// Entity 0 belongs to the owner and may only be used with the zero module,
// to attach hooks to the owner validation.
func EncodeInstallValidationCall(req InstallValidationRequest) ([]byte, error) {
	if req.Config.EntityID == DefaultOwnerEntityID && req.Config.Module != (common.Address{}) {
		return nil, ErrEntityIDOverride
	}
	hooks := make([][]byte, len(req.Hooks))
	for i, h := range req.Hooks {
		hooks[i] = h.Encode()
	}
	selectors := req.Selectors
	if selectors == nil {
		selectors = [][4]byte{}
	}
	data, err := ModularAccountABI.Pack("installValidation", req.Config.Serialize(), selectors, nonNil(req.InstallData), hooks)
	if err != nil {
		return nil, errors.Wrap(err, "encode installValidation")
	}
	return data, nil
}

// EncodeUninstallValidationCall returns the bare uninstallValidation call data.
func EncodeUninstallValidationCall(req UninstallValidationRequest) ([]byte, error) {
	hookData := req.HookUninstallDatas
	if hookData == nil {
		hookData = [][]byte{}
	}
	data, err := ModularAccountABI.Pack("uninstallValidation", NewModuleEntity(req.Module, req.EntityID), nonNil(req.UninstallData), hookData)
	if err != nil {
		return nil, errors.Wrap(err, "encode uninstallValidation")
	}
	return data, nil
}

// EncodeInstallValidation returns installValidation call data ready for a
// user operation from this account.
func (a *Account) EncodeInstallValidation(ctx context.Context, req InstallValidationRequest) ([]byte, error) {
	data, err := EncodeInstallValidationCall(req)
	if err != nil {
		return nil, err
	}
	return a.EncodeCallData(ctx, data)
}

// EncodeUninstallValidation returns uninstallValidation call data ready for a
// user operation from this account.
func (a *Account) EncodeUninstallValidation(ctx context.Context, req UninstallValidationRequest) ([]byte, error) {
	data, err := EncodeUninstallValidationCall(req)
	if err != nil {
		return nil, err
	}
	return a.EncodeCallData(ctx, data)
}
