package account

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// EntityID identifies a validation entity on an account.
type EntityID uint32

// ValidatorEntityID is an entity id that can never be the owner's.
type ValidatorEntityID struct {
	id EntityID
}

func NewValidatorEntityID(id uint32) (ValidatorEntityID, error) {
	if EntityID(id) == DefaultOwnerEntityID {
		return ValidatorEntityID{}, ErrZeroEntityID
	}
	return ValidatorEntityID{id: EntityID(id)}, nil
}

func (v ValidatorEntityID) EntityID() EntityID { return v.id }

// ParseEntityID narrows an untyped id, from configuration or flags.
func ParseEntityID(v uint64) (EntityID, error) {
	if v > math.MaxUint32 {
		return 0, &InvalidEntityIDError{ID: v}
	}
	return EntityID(v), nil
}

// SignerEntity is the validation an account signs with.
type SignerEntity struct {
	EntityID           EntityID `mapstructure:"entityId"`
	IsGlobalValidation bool     `mapstructure:"isGlobalValidation"`
}

// OwnerSignerEntity is the fallback owner validation with global permission.
func OwnerSignerEntity() SignerEntity {
	return SignerEntity{EntityID: DefaultOwnerEntityID, IsGlobalValidation: true}
}

// validationLocator is the uint168 the account uses to find a validation:
// entityId << 8 | isGlobal.
func (e SignerEntity) validationLocator() *uint256.Int {
	loc := new(uint256.Int).Lsh(uint256.NewInt(uint64(e.EntityID)), 8)
	if e.IsGlobalValidation {
		loc.Or(loc, uint256.NewInt(1))
	}
	return loc
}

var maxUint152 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 152), big.NewInt(1))

// NonceKey is the unpacked form of the uint192 key of an entrypoint nonce.
type NonceKey struct {
	Key                *big.Int
	EntityID           EntityID
	IsGlobalValidation bool
	IsDeferredAction   bool
}

const (
	globalValidationBit = 1
	deferredActionBit   = 2
)

// BuildFullNonceKey packs k as key << 40 | entityId << 8 | deferred << 1 | global.
// A nil key is zero.
func BuildFullNonceKey(k NonceKey) (*big.Int, error) {
	key := new(uint256.Int)
	if k.Key != nil {
		if k.Key.Sign() < 0 || k.Key.Cmp(maxUint152) > 0 {
			return nil, &InvalidNonceKeyError{Key: new(big.Int).Set(k.Key)}
		}
		key.SetFromBig(k.Key)
	}
	key.Lsh(key, 40)
	key.Or(key, new(uint256.Int).Lsh(uint256.NewInt(uint64(k.EntityID)), 8))
	var flags uint64
	if k.IsDeferredAction {
		flags |= deferredActionBit
	}
	if k.IsGlobalValidation {
		flags |= globalValidationBit
	}
	key.Or(key, uint256.NewInt(flags))
	return key.ToBig(), nil
}

// ParseFullNonceKey is the inverse of BuildFullNonceKey.
func ParseFullNonceKey(key *big.Int) NonceKey {
	k, _ := uint256.FromBig(key)
	low := k.Uint64()
	return NonceKey{
		Key:                new(uint256.Int).Rsh(k, 40).ToBig(),
		EntityID:           EntityID(uint32(low >> 8)),
		IsDeferredAction:   low&deferredActionBit != 0,
		IsGlobalValidation: low&globalValidationBit != 0,
	}
}

// ParseNonce splits an entrypoint nonce into its key and sequence.
func ParseNonce(nonce *big.Int) (NonceKey, uint64) {
	n, _ := uint256.FromBig(nonce)
	seq := n.Uint64()
	return ParseFullNonceKey(new(uint256.Int).Rsh(n, 64).ToBig()), seq
}

// nonceKeyOf returns nonce >> 64, the key the entrypoint tracks sequences under.
func nonceKeyOf(nonce *big.Int) *big.Int {
	return new(big.Int).Rsh(nonce, 64)
}

// firstNonce is the nonce the entrypoint reports for a key never used before.
func firstNonce(fullKey *big.Int) *big.Int {
	return new(big.Int).Lsh(fullKey, 64)
}
