package permissions

import (
	"context"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/base-org/modular-account/account"
)

// GrantRequest describes a session key and what it may do.
type GrantRequest struct {
	Key         Key
	Permissions []Permission
	Deadline    uint64
	// NonceKey is the user chosen part of the deferred action nonce key.
	NonceKey *big.Int
	Logger   logrus.FieldLogger
}

// NewGrant allocates a free entity of acct, binds the deferred action to
// that entity's next nonce and compiles req into it.
func NewGrant(ctx context.Context, acct *account.Account, req GrantRequest) (*Deferred, error) {
	entityReq := account.NewEntityRequest()
	entityReq.NonceKey = req.NonceKey
	for _, p := range req.Permissions {
		if p.Type == Root {
			entityReq.IsGlobalValidation = true
		}
	}
	entityID, nonce, err := acct.GetEntityIDAndNonce(ctx, entityReq)
	if err != nil {
		return nil, err
	}
	b, err := NewBuilder(Params{
		Account:  acct,
		Key:      req.Key,
		EntityID: entityID,
		Nonce:    nonce,
		Deadline: req.Deadline,
		Logger:   req.Logger,
	})
	if err != nil {
		return nil, err
	}
	return b.AddPermissions(req.Permissions...).CompileDeferred()
}
