package account

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// ModuleEntity is address(20) || entityId(4).
type ModuleEntity [24]byte

func NewModuleEntity(module common.Address, entityID EntityID) ModuleEntity {
	var me ModuleEntity
	copy(me[:20], module.Bytes())
	binary.BigEndian.PutUint32(me[20:], uint32(entityID))
	return me
}

func (me ModuleEntity) Module() common.Address { return common.BytesToAddress(me[:20]) }

func (me ModuleEntity) EntityID() EntityID { return EntityID(binary.BigEndian.Uint32(me[20:])) }

const (
	validationFlagUserOp    = 0x01
	validationFlagSignature = 0x02
	validationFlagGlobal    = 0x04
)

// ValidationConfig describes a validation being installed.
type ValidationConfig struct {
	Module                common.Address
	EntityID              EntityID
	IsGlobal              bool
	IsSignatureValidation bool
	IsUserOpValidation    bool
}

// Serialize packs the config as address(20) || entityId(4) || flags(1).
func (c ValidationConfig) Serialize() [25]byte {
	var out [25]byte
	me := NewModuleEntity(c.Module, c.EntityID)
	copy(out[:24], me[:])
	if c.IsUserOpValidation {
		out[24] |= validationFlagUserOp
	}
	if c.IsSignatureValidation {
		out[24] |= validationFlagSignature
	}
	if c.IsGlobal {
		out[24] |= validationFlagGlobal
	}
	return out
}

func DeserializeValidationConfig(b [25]byte) ValidationConfig {
	var me ModuleEntity
	copy(me[:], b[:24])
	return ValidationConfig{
		Module:                me.Module(),
		EntityID:              me.EntityID(),
		IsUserOpValidation:    b[24]&validationFlagUserOp != 0,
		IsSignatureValidation: b[24]&validationFlagSignature != 0,
		IsGlobal:              b[24]&validationFlagGlobal != 0,
	}
}

// HookType is either an execution or a validation hook.
type HookType uint8

const (
	HookTypeExecution  HookType = 0
	HookTypeValidation HookType = 1
)

const (
	hookFlagValidation = 0x01
	hookFlagPost       = 0x02
	hookFlagPre        = 0x04
)

// HookConfig describes a hook attached to a validation.
type HookConfig struct {
	Module       common.Address
	EntityID     EntityID
	HookType     HookType
	HasPreHooks  bool
	HasPostHooks bool
}

// Serialize packs the config as address(20) || entityId(4) || flags(1).
func (c HookConfig) Serialize() [25]byte {
	var out [25]byte
	me := NewModuleEntity(c.Module, c.EntityID)
	copy(out[:24], me[:])
	if c.HookType == HookTypeValidation {
		out[24] |= hookFlagValidation
	}
	if c.HasPostHooks {
		out[24] |= hookFlagPost
	}
	if c.HasPreHooks {
		out[24] |= hookFlagPre
	}
	return out
}

func DeserializeHookConfig(b [25]byte) HookConfig {
	var me ModuleEntity
	copy(me[:], b[:24])
	c := HookConfig{
		Module:       me.Module(),
		EntityID:     me.EntityID(),
		HookType:     HookTypeExecution,
		HasPostHooks: b[24]&hookFlagPost != 0,
		HasPreHooks:  b[24]&hookFlagPre != 0,
	}
	if b[24]&hookFlagValidation != 0 {
		c.HookType = HookTypeValidation
	}
	return c
}

// Hook is a hook config together with the data passed to its onInstall.
type Hook struct {
	Config   HookConfig
	InitData []byte
}

// Encode returns hookConfig(25) || initData, the element format of the
// installValidation hooks array.
func (h Hook) Encode() []byte {
	cfg := h.Config.Serialize()
	return append(cfg[:], h.InitData...)
}
