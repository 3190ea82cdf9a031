package modules

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/base-org/modular-account/account"
)

// PreValidationHook runs module before the validation of entityID.
func PreValidationHook(module common.Address, entityID account.EntityID) account.HookConfig {
	return account.HookConfig{
		Module:      module,
		EntityID:    entityID,
		HookType:    account.HookTypeValidation,
		HasPreHooks: true,
	}
}

// PreExecutionHook runs module before every execution validated by the
// validation it is attached to.
func PreExecutionHook(module common.Address, entityID account.EntityID) account.HookConfig {
	return account.HookConfig{
		Module:      module,
		EntityID:    entityID,
		HookType:    account.HookTypeExecution,
		HasPreHooks: true,
	}
}

// TimeRangeHook bounds the validation of entityID to [validAfter, validUntil].
func TimeRangeHook(module common.Address, entityID account.EntityID, validUntil, validAfter uint64) (account.Hook, error) {
	data, err := TimeRangeInstallData(entityID, validUntil, validAfter)
	if err != nil {
		return account.Hook{}, err
	}
	return account.Hook{Config: PreValidationHook(module, entityID), InitData: data}, nil
}

// PaymasterGuardHook requires every user operation of entityID to be
// sponsored by paymaster.
func PaymasterGuardHook(module common.Address, entityID account.EntityID, paymaster common.Address) (account.Hook, error) {
	data, err := PaymasterGuardInstallData(entityID, paymaster)
	if err != nil {
		return account.Hook{}, err
	}
	return account.Hook{Config: PreValidationHook(module, entityID), InitData: data}, nil
}

// HasExecutionHooks reports whether any hook runs around execution.
func HasExecutionHooks(hooks []account.Hook) bool {
	for _, h := range hooks {
		if h.Config.HookType == account.HookTypeExecution {
			return true
		}
	}
	return false
}
