package account

import (
	"bytes"
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/base-org/modular-account/signer"
)

// Mode selects how the account address is derived and deployed.
type Mode string

const (
	// ModeDefault deploys a semi-modular account (or, for passkey owners, a
	// modular account) through the factory.
	ModeDefault Mode = "default"
	// Mode7702 uses the owner EOA itself, delegated to the 7702 implementation.
	Mode7702 Mode = "7702"
)

// Call is one call the account makes.
type Call struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

type Params struct {
	Reader  ContractReader
	Owner   signer.Signer
	ChainID *big.Int
	Mode    Mode

	// AccountAddress skips address derivation.
	AccountAddress *common.Address
	Salt           *big.Int
	// SignerEntity defaults to the owner validation with global permission.
	// A deferred action replaces it with the entity the action targets.
	SignerEntity *SignerEntity
	// DeferredAction is a blob built by BuildDeferredActionDigest.
	DeferredAction []byte

	Addresses Addresses
	Logger    logrus.FieldLogger
}

// Account routes signing and call encoding through one validation entity
// of a Modular Account V2. Signing with a pending deferred action mutates
// the account; callers serialize signing per instance.
type Account struct {
	reader  ContractReader
	owner   signer.Signer
	chainID *big.Int
	mode    Mode
	salt    *big.Int
	addrs   Addresses
	address common.Address
	entity  SignerEntity
	logger  logrus.FieldLogger

	mu sync.Mutex
	// pending is taken by the first user operation signature.
	pending *DeferredAction
	// pendingNonce is taken by the first GetNonce.
	pendingNonce *big.Int
	// execHooks caches whether the entity has execution hooks, once known
	// from a deployed account.
	execHooks *bool
}

// New resolves the account address and, when a deferred action is given,
// checks it against the entrypoint before accepting it.
func New(ctx context.Context, p Params) (*Account, error) {
	if p.Reader == nil {
		return nil, errors.New("contract reader is required")
	}
	if p.Owner == nil {
		return nil, errors.New("owner is required")
	}
	if p.ChainID == nil || p.ChainID.Sign() <= 0 {
		return nil, errors.New("chain id is required")
	}
	a := &Account{
		reader:  p.Reader,
		owner:   p.Owner,
		chainID: new(big.Int).Set(p.ChainID),
		mode:    p.Mode,
		salt:    new(big.Int),
		addrs:   p.Addresses.withDefaults(),
		entity:  OwnerSignerEntity(),
		logger:  p.Logger,
	}
	if a.mode == "" {
		a.mode = ModeDefault
	}
	if a.logger == nil {
		a.logger = logrus.StandardLogger().WithField("module", "account")
	}
	if p.Salt != nil {
		a.salt.Set(p.Salt)
	}
	if p.SignerEntity != nil {
		a.entity = *p.SignerEntity
	}

	// the entity feeds the WebAuthn factory salt, so it is settled before
	// the address is derived
	var (
		da  *DeferredAction
		err error
	)
	if len(p.DeferredAction) > 0 {
		if p.SignerEntity != nil {
			return nil, ErrSignerEntityConflict
		}
		if da, err = ParseDeferredAction(p.DeferredAction); err != nil {
			return nil, err
		}
		// the client signs for the entity the deferred action installs
		a.entity = SignerEntity{EntityID: da.EntityID, IsGlobalValidation: da.IsGlobalValidation}
	}

	if a.address, err = a.resolveAddress(ctx, p.AccountAddress); err != nil {
		return nil, err
	}
	a.logger = a.logger.WithField("account", a.address.Hex())

	if da != nil {
		if err := a.acceptDeferredAction(ctx, da); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Account) resolveAddress(ctx context.Context, explicit *common.Address) (common.Address, error) {
	switch a.mode {
	case Mode7702:
		local, ok := a.owner.(*signer.PrivateKeySigner)
		if !ok {
			return common.Address{}, errors.Wrapf(ErrInvalidOwner, "%s owner in 7702 mode", a.owner.Kind())
		}
		address := local.Address()
		if explicit != nil {
			address = *explicit
		}
		if a.entity.EntityID == DefaultOwnerEntityID && address != local.Address() {
			return common.Address{}, ErrEntityIDOverride
		}
		return address, nil
	case ModeDefault:
		if explicit != nil {
			return *explicit, nil
		}
		if _, ok := a.owner.(*signer.WebAuthnSigner); ok {
			factory, data, err := a.factoryData()
			if err != nil {
				return common.Address{}, err
			}
			return SenderAddress(ctx, a.reader, a.addrs.EntryPoint, factory, data)
		}
		owner, ok := a.owner.(signer.Addresser)
		if !ok {
			return common.Address{}, errors.Wrapf(ErrUnsupportedSigner, "cannot derive an address for a %s owner", a.owner.Kind())
		}
		return PredictSemiModularAccountAddress(a.addrs.Factory, a.addrs.SemiModularAccountImpl, owner.Address(), a.salt), nil
	default:
		return common.Address{}, errors.Errorf("unknown account mode %q", a.mode)
	}
}

func (a *Account) acceptDeferredAction(ctx context.Context, da *DeferredAction) error {
	live, err := GetEntryPointNonce(ctx, a.reader, a.addrs.EntryPoint, a.address, nonceKeyOf(da.Nonce))
	if err != nil {
		return err
	}
	if c := da.Nonce.Cmp(live); c != 0 {
		state := "already used"
		if c > 0 {
			state = "not yet reachable"
		}
		return errors.Wrapf(ErrInvalidDeferredActionNonce, "nonce %#x is %s, entrypoint expects %#x", da.Nonce, state, live)
	}
	a.pending = da
	a.pendingNonce = new(big.Int).Set(da.Nonce)
	a.logger.WithFields(logrus.Fields{
		"entity_id":  da.EntityID,
		"nonce":      da.Nonce,
		"exec_hooks": da.HasAssociatedExecHooks,
	}).Info("Accepted deferred action")
	return nil
}

func (a *Account) Address() common.Address { return a.address }

func (a *Account) ChainID() *big.Int { return new(big.Int).Set(a.chainID) }

func (a *Account) SignerEntity() SignerEntity { return a.entity }

func (a *Account) Owner() signer.Signer { return a.owner }

func (a *Account) Mode() Mode { return a.mode }

func (a *Account) Addresses() Addresses { return a.addrs }

func (a *Account) EntryPoint() common.Address { return a.addrs.EntryPoint }

// HasPendingDeferredAction reports whether the next user operation signature
// will carry the deferred action.
func (a *Account) HasPendingDeferredAction() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

func (a *Account) factoryData() (common.Address, []byte, error) {
	if w, ok := a.owner.(*signer.WebAuthnSigner); ok {
		x, y := w.PublicKey()
		data, err := EncodeCreateWebAuthnAccount(x, y, a.salt, a.entity.EntityID)
		return a.addrs.Factory, data, err
	}
	owner, ok := a.owner.(signer.Addresser)
	if !ok {
		return common.Address{}, nil, errors.Wrapf(ErrUnsupportedSigner, "no factory call for a %s owner", a.owner.Kind())
	}
	data, err := EncodeCreateSemiModularAccount(owner.Address(), a.salt)
	return a.addrs.Factory, data, err
}

// FactoryArgs returns the factory and factory data for the first user
// operation, or a nil factory when the account is deployed or in 7702 mode.
func (a *Account) FactoryArgs(ctx context.Context) (*common.Address, []byte, error) {
	if a.mode == Mode7702 {
		return nil, nil, nil
	}
	deployed, err := a.IsDeployed(ctx)
	if err != nil {
		return nil, nil, err
	}
	if deployed {
		return nil, nil, nil
	}
	factory, data, err := a.factoryData()
	if err != nil {
		return nil, nil, err
	}
	return &factory, data, nil
}

// GetNonce returns the pending deferred action nonce the first time it is
// called, then the entrypoint nonce for key under the account's entity.
func (a *Account) GetNonce(ctx context.Context, key *big.Int) (*big.Int, error) {
	a.mu.Lock()
	if n := a.pendingNonce; n != nil {
		a.pendingNonce = nil
		a.mu.Unlock()
		return n, nil
	}
	a.mu.Unlock()

	fullKey, err := BuildFullNonceKey(NonceKey{
		Key:                key,
		EntityID:           a.entity.EntityID,
		IsGlobalValidation: a.entity.IsGlobalValidation,
	})
	if err != nil {
		return nil, err
	}
	return GetEntryPointNonce(ctx, a.reader, a.addrs.EntryPoint, a.address, fullKey)
}

type batchCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// EncodeCalls encodes calls as account call data. A single call to the
// account itself is passed through unwrapped.
func (a *Account) EncodeCalls(ctx context.Context, calls []Call) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case len(calls) == 0:
		return nil, errors.Wrap(ErrInvalidCallData, "no calls")
	case len(calls) == 1 && calls[0].Target == a.address:
		data = common.CopyBytes(calls[0].Data)
	case len(calls) == 1:
		c := calls[0]
		data, err = ModularAccountABI.Pack("execute", c.Target, valueOrZero(c.Value), nonNil(c.Data))
	default:
		batch := make([]batchCall, len(calls))
		for i, c := range calls {
			batch[i] = batchCall{Target: c.Target, Value: valueOrZero(c.Value), Data: nonNil(c.Data)}
		}
		data, err = ModularAccountABI.Pack("executeBatch", batch)
	}
	if err != nil {
		return nil, errors.Wrap(err, "encode calls")
	}
	return a.EncodeCallData(ctx, data)
}

// EncodeCallData prefixes callData with executeUserOp when the entity has
// execution hooks, or the pending deferred action installs some.
func (a *Account) EncodeCallData(ctx context.Context, callData []byte) ([]byte, error) {
	a.mu.Lock()
	pendingHooks := a.pending != nil && a.pending.HasAssociatedExecHooks
	a.mu.Unlock()

	hooks := pendingHooks
	if !hooks {
		var err error
		if hooks, err = a.hasExecHooks(ctx); err != nil {
			return nil, err
		}
	}
	if !hooks {
		return callData, nil
	}
	out := make([]byte, 0, 4+len(callData))
	out = append(out, ExecuteUserOpSelector[:]...)
	return append(out, callData...), nil
}

func (a *Account) hasExecHooks(ctx context.Context) (bool, error) {
	a.mu.Lock()
	cached := a.execHooks
	a.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	deployed, err := a.IsDeployed(ctx)
	if err != nil || !deployed {
		return false, err
	}
	view, err := a.GetValidationData(ctx, NewModuleEntity(common.Address{}, a.entity.EntityID))
	if err != nil {
		return false, err
	}
	has := len(view.ExecutionHooks) > 0
	a.mu.Lock()
	a.execHooks = &has
	a.mu.Unlock()
	a.logger.WithFields(logrus.Fields{"entity_id": a.entity.EntityID, "exec_hooks": has}).Debug("Read validation execution hooks")
	return has, nil
}

// DecodeCalls is the inverse of EncodeCalls for this account.
func (a *Account) DecodeCalls(callData []byte) ([]Call, error) {
	return DecodeCalls(a.address, callData)
}

// DecodeCalls decodes execute and executeBatch call data. Anything else is
// read as a call from account to itself.
func DecodeCalls(account common.Address, callData []byte) ([]Call, error) {
	data := callData
	if len(data) >= 4 && bytes.Equal(data[:4], ExecuteUserOpSelector[:]) {
		data = data[4:]
	}
	if len(data) < 4 {
		return nil, errors.Wrapf(ErrInvalidCallData, "%d bytes", len(data))
	}
	method, err := ModularAccountABI.MethodById(data[:4])
	if err != nil {
		return []Call{{Target: account, Value: new(big.Int), Data: common.CopyBytes(data)}}, nil
	}
	switch method.Name {
	case "execute":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, errors.Wrap(ErrInvalidCallData, err.Error())
		}
		return []Call{{
			Target: args[0].(common.Address),
			Value:  args[1].(*big.Int),
			Data:   args[2].([]byte),
		}}, nil
	case "executeBatch":
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, errors.Wrap(ErrInvalidCallData, err.Error())
		}
		var batch []batchCall
		if err := method.Inputs.Copy(&batch, args); err != nil {
			return nil, errors.Wrap(ErrInvalidCallData, err.Error())
		}
		calls := make([]Call, len(batch))
		for i, c := range batch {
			calls[i] = Call(c)
		}
		return calls, nil
	default:
		return []Call{{Target: account, Value: new(big.Int), Data: common.CopyBytes(data)}}, nil
	}
}

// SignUserOperation signs op and packs the signature. The first signature
// is prefixed with the pending deferred action, which is then dropped.
func (a *Account) SignUserOperation(ctx context.Context, op *signer.UserOperation) ([]byte, error) {
	hash, err := op.Hash(a.addrs.EntryPoint, a.chainID)
	if err != nil {
		return nil, errors.Wrap(err, "hash user operation")
	}
	sig, err := a.owner.SignMessage(ctx, hash.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "sign user operation")
	}
	packed := a.packUserOpSignature(sig)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending != nil {
		packed = PrependDeferredAction(a.pending.Data, packed)
		a.logger.WithField("nonce", a.pending.Nonce).Info("Consumed deferred action")
		a.pending = nil
	}
	return packed, nil
}

func (a *Account) packUserOpSignature(sig []byte) []byte {
	return PackUserOpSignature(signaturePrefix(a.owner), sig)
}

// StubSignature is a signature of the right shape for gas estimation,
// including the pending deferred action.
func (a *Account) StubSignature() []byte {
	stub := a.packUserOpSignature(a.owner.StubSignature())
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending != nil {
		return PrependDeferredAction(a.pending.Data, stub)
	}
	return stub
}

// PrepareTypedData returns what the owner actually signs for td: td itself
// when it is a deferred action for this account signed by the owner
// validation or a passkey, otherwise td's hash wrapped in a replay-safe
// envelope.
func (a *Account) PrepareTypedData(td apitypes.TypedData) (apitypes.TypedData, error) {
	if IsDeferredActionFor(td, a.address) && a.signsDeferredActionsDirectly() {
		return td, nil
	}
	hash, err := signer.TypedDataHash(td)
	if err != nil {
		return apitypes.TypedData{}, err
	}
	return a.replaySafe(hash), nil
}

// PrepareMessage wraps the EIP-191 hash of msg in a replay-safe envelope.
func (a *Account) PrepareMessage(msg []byte) apitypes.TypedData {
	return a.replaySafe(common.BytesToHash(accounts.TextHash(msg)))
}

func (a *Account) signsDeferredActionsDirectly() bool {
	if a.owner.Kind() == signer.KindWebAuthn {
		return true
	}
	return a.entity.EntityID == DefaultOwnerEntityID
}

func (a *Account) replaySafe(hash common.Hash) apitypes.TypedData {
	switch {
	case a.owner.Kind() == signer.KindWebAuthn:
		return ReplaySafeTypedData(a.chainID, a.addrs.WebAuthnValidationModule, hash, accountSalt(a.address))
	case a.entity.EntityID == DefaultOwnerEntityID:
		return ReplaySafeTypedData(a.chainID, a.address, hash, nil)
	default:
		return ReplaySafeTypedData(a.chainID, a.addrs.SingleSignerValidationModule, hash, accountSalt(a.address))
	}
}

// FormatSignature packs a validation signature for isValidSignature.
func (a *Account) FormatSignature(sig []byte) []byte {
	return Pack1271Signature(a.entity.EntityID, signaturePrefix(a.owner), sig)
}

// SignMessage returns an ERC-1271 signature over msg.
func (a *Account) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	sig, err := a.owner.SignTypedData(ctx, a.PrepareMessage(msg))
	if err != nil {
		return nil, errors.Wrap(err, "sign message")
	}
	return a.FormatSignature(sig), nil
}

// SignTypedData returns an ERC-1271 signature over td. A deferred action for
// this account is not 1271 packed: the owner validation expects
// prefix || sig and a passkey the bare signature.
func (a *Account) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	prepared, err := a.PrepareTypedData(td)
	if err != nil {
		return nil, err
	}
	sig, err := a.owner.SignTypedData(ctx, prepared)
	if err != nil {
		return nil, errors.Wrap(err, "sign typed data")
	}
	if !IsDeferredActionFor(td, a.address) {
		return a.FormatSignature(sig), nil
	}
	return append(signaturePrefix(a.owner), sig...), nil
}

// DeferredActionTypedData builds the DeferredAction typed data for this
// account.
func (a *Account) DeferredActionTypedData(callData []byte, deadline uint64, nonce *big.Int) apitypes.TypedData {
	return NewDeferredActionTypedData(a.chainID, a.address, callData, deadline, nonce)
}

// BuildPreSignatureDeferredActionDigest encodes td under this account's
// signing entity.
func (a *Account) BuildPreSignatureDeferredActionDigest(td apitypes.TypedData) ([]byte, error) {
	return BuildPreSignatureDeferredActionDigest(a.entity, td)
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
