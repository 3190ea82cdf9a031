package account

import (
	"context"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// EntityRequest asks for a free entity id at or above EntityID.
type EntityRequest struct {
	EntityID           EntityID
	NonceKey           *big.Int
	IsGlobalValidation bool
	// IsDeferredAction defaults to true through NewEntityRequest, the nonce
	// a deferred action installing the entity is signed for.
	IsDeferredAction bool
}

// NewEntityRequest is the request the permission flow makes: start at
// entity 1 and reserve a deferred action nonce.
func NewEntityRequest() EntityRequest {
	return EntityRequest{EntityID: 1, IsDeferredAction: true}
}

// GetEntityIDAndNonce returns the lowest entity id >= max(req.EntityID, 1)
// that nothing is installed at, and the entrypoint nonce for it. An
// undeployed account has nothing installed and its nonce is the first one
// of the key.
func (a *Account) GetEntityIDAndNonce(ctx context.Context, req EntityRequest) (ValidatorEntityID, *big.Int, error) {
	if req.NonceKey != nil && (req.NonceKey.Sign() < 0 || req.NonceKey.Cmp(maxUint152) > 0) {
		return ValidatorEntityID{}, nil, &InvalidNonceKeyError{Key: new(big.Int).Set(req.NonceKey)}
	}
	id := req.EntityID
	if id == DefaultOwnerEntityID {
		id = 1
	}

	deployed, err := a.IsDeployed(ctx)
	if err != nil {
		return ValidatorEntityID{}, nil, err
	}
	if deployed {
		for {
			view, err := a.GetValidationData(ctx, NewModuleEntity(common.Address{}, id))
			if err != nil {
				return ValidatorEntityID{}, nil, err
			}
			if !view.Installed() {
				break
			}
			if id == math.MaxUint32 {
				return ValidatorEntityID{}, nil, errors.New("no free entity id left")
			}
			id++
		}
	}

	key, err := BuildFullNonceKey(NonceKey{
		Key:                req.NonceKey,
		EntityID:           id,
		IsGlobalValidation: req.IsGlobalValidation,
		IsDeferredAction:   req.IsDeferredAction,
	})
	if err != nil {
		return ValidatorEntityID{}, nil, err
	}
	nonce := firstNonce(key)
	if deployed {
		if nonce, err = GetEntryPointNonce(ctx, a.reader, a.addrs.EntryPoint, a.address, key); err != nil {
			return ValidatorEntityID{}, nil, err
		}
	}
	a.logger.WithFields(logrus.Fields{
		"requested": req.EntityID,
		"entity_id": id,
		"nonce":     nonce,
		"deployed":  deployed,
	}).Debug("Allocated entity")
	return ValidatorEntityID{id: id}, nonce, nil
}
