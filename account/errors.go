package account

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

var (
	ErrEntityIDOverride           = errors.New("entity id 0 is reserved for the owner and can only be used with the zero module address")
	ErrInvalidDeferredActionNonce = errors.New("deferred action nonce is invalid")
	ErrSignerEntityConflict       = errors.New("signer entity is taken from the deferred action and cannot be set with it")
	ErrInvalidOwner               = errors.New("owner type is not supported in this mode")
	ErrUnsupportedSigner          = errors.New("operation is not supported by this signer")
	ErrInvalidDeferredAction      = errors.New("malformed deferred action")
	ErrInvalidCallData            = errors.New("call data is not an execute or executeBatch call")
	ErrAlreadyDelegated           = errors.New("account is delegated to a different implementation")
	ErrZeroEntityID               = errors.New("entity id 0 is reserved for the owner")
)

type InvalidNonceKeyError struct {
	Key *big.Int
}

func (e *InvalidNonceKeyError) Error() string {
	return fmt.Sprintf("nonce key %s exceeds 152 bits", e.Key)
}

type InvalidEntityIDError struct {
	ID uint64
}

func (e *InvalidEntityIDError) Error() string {
	return fmt.Sprintf("entity id %d exceeds 32 bits", e.ID)
}
