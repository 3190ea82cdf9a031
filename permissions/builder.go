package permissions

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/base-org/modular-account/account"
	"github.com/base-org/modular-account/modules"
)

// erc20EntityOffset moves the execution side ERC-20 allowlist to its own
// entity so it does not collide with the validation side allowlist.
const erc20EntityOffset = math.MaxInt32

// KeyType is the kind of key a permission is granted to.
type KeyType string

const (
	KeySecp256k1 KeyType = "secp256k1"
	KeyContract  KeyType = "contract"
)

// Key is the session key being granted permissions.
type Key struct {
	Address common.Address
	Type    KeyType
}

// Params configure a Builder.
type Params struct {
	// Account is the account granting the permissions, signing as its owner.
	Account  *account.Account
	Key      Key
	// EntityID comes from Account.GetEntityIDAndNonce or
	// account.NewValidatorEntityID.
	EntityID account.ValidatorEntityID
	// Nonce is the entrypoint nonce the deferred action is bound to.
	Nonce *big.Int
	// Selectors and Hooks are installed in addition to the ones the
	// permissions translate to.
	Selectors [][4]byte
	Hooks     []account.Hook
	// Deadline in unix seconds, 0 for none.
	Deadline uint64

	Logger logrus.FieldLogger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Builder accumulates permissions. Errors are sticky: the first failed
// AddPermission is returned by the compile step. A Builder compiles once.
type Builder struct {
	acct        *account.Account
	addrs       account.Addresses
	config      account.ValidationConfig
	installData []byte
	selectors   [][4]byte
	hooks       []account.Hook
	permissions []Permission
	nonce       *big.Int
	deadline    uint64
	now         func() time.Time
	logger      logrus.FieldLogger

	hasExecHooks bool
	err          error
	consumed     bool
}

func NewBuilder(p Params) (*Builder, error) {
	if p.Account == nil {
		return nil, errors.New("account is required")
	}
	entityID := p.EntityID.EntityID()
	if entityID == account.DefaultOwnerEntityID {
		return nil, account.ErrZeroEntityID
	}
	if p.Key.Address == (common.Address{}) {
		return nil, errors.Wrap(ErrZeroAddress, "session key")
	}
	if p.Nonce == nil {
		return nil, errors.New("nonce is required")
	}
	addrs := p.Account.Addresses()
	installData, err := modules.SingleSignerInstallData(entityID, p.Key.Address)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		acct:  p.Account,
		addrs: addrs,
		config: account.ValidationConfig{
			Module:             addrs.SingleSignerValidationModule,
			EntityID:           entityID,
			IsUserOpValidation: true,
		},
		installData: installData,
		selectors:   append([][4]byte(nil), p.Selectors...),
		hooks:       append([]account.Hook(nil), p.Hooks...),
		nonce:       new(big.Int).Set(p.Nonce),
		deadline:    p.Deadline,
		now:         p.Now,
		logger:      p.Logger,
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.logger == nil {
		b.logger = logrus.StandardLogger().WithField("module", "permissions")
	}
	return b, nil
}

// AddSelector grants the key the account function selector.
func (b *Builder) AddSelector(selector [4]byte) *Builder {
	if b.err == nil {
		b.selectors = append(b.selectors, selector)
	}
	return b
}

// AddPermission appends p. Grants are not deduplicated.
func (b *Builder) AddPermission(p Permission) *Builder {
	if b.err != nil {
		return b
	}
	if err := b.add(p); err != nil {
		b.err = errors.Wrapf(err, "adding %s", p)
	}
	return b
}

func (b *Builder) AddPermissions(ps ...Permission) *Builder {
	for _, p := range ps {
		b.AddPermission(p)
	}
	return b
}

// Err returns the first error of AddPermission.
func (b *Builder) Err() error { return b.err }

func (b *Builder) add(p Permission) error {
	if p.Type == Root {
		if len(b.permissions) != 0 {
			return ErrRootPermissionOnly
		}
		b.permissions = append(b.permissions, p)
		b.config.IsGlobal = true
		return nil
	}
	if b.config.IsGlobal {
		return ErrRootPermissionOnly
	}

	switch p.Type {
	case NativeTokenTransfer:
		if _, err := amount(p.Allowance); err != nil {
			return err
		}
	case GasLimit:
		if _, err := amount(p.Limit); err != nil {
			return err
		}
	case ERC20TokenTransfer:
		if p.Address == (common.Address{}) {
			return ErrZeroAddress
		}
		if _, err := amount(p.Allowance); err != nil {
			return err
		}
	case ContractAccess, FunctionsOnContract:
		if p.Address == (common.Address{}) {
			return ErrZeroAddress
		}
		if p.Address == b.acct.Address() {
			return ErrAccountAddressAsTarget
		}
		if p.Type == FunctionsOnContract && len(p.Functions) == 0 {
			return ErrNoFunctionsProvided
		}
	case FunctionsOnAllContracts:
		if len(p.Functions) == 0 {
			return ErrNoFunctionsProvided
		}
	case AccountFunctions:
		if len(p.Functions) == 0 {
			return ErrNoFunctionsProvided
		}
		for _, fn := range p.Functions {
			switch fn {
			case account.ExecuteSelector:
				return errors.Wrap(ErrSelectorNotAllowed, "execute")
			case account.ExecuteBatchSelector:
				return errors.Wrap(ErrSelectorNotAllowed, "executeBatch")
			}
		}
		b.selectors = append(b.selectors, p.Functions...)
	default:
		return errors.Wrapf(ErrUnsupportedPermission, "%q", p.Type)
	}
	b.permissions = append(b.permissions, p)
	return nil
}

// hookSlot is one hook being assembled. Limit hooks hold one amount,
// allowlist hooks collect inputs from every grant that targets them.
type hookSlot struct {
	config account.HookConfig
	limit  *big.Int
	inputs []modules.AllowlistInput
}

func (s *hookSlot) hook() (account.Hook, error) {
	var (
		data []byte
		err  error
	)
	if s.limit != nil {
		data, err = modules.NativeTokenLimitInstallData(s.config.EntityID, s.limit)
	} else {
		data, err = modules.AllowlistInstallData(s.config.EntityID, s.inputs)
	}
	if err != nil {
		return account.Hook{}, err
	}
	return account.Hook{Config: s.config, InitData: data}, nil
}

// translate turns the grants into hooks in the order they were added. The
// allowlist hooks sit where their first grant was added.
func (b *Builder) translate() ([]account.Hook, error) {
	entity := b.config.EntityID
	var (
		slots      []*hookSlot
		preval     *hookSlot
		erc20Limit *hookSlot
	)
	prevalAllowlist := func() *hookSlot {
		if preval == nil {
			preval = &hookSlot{config: modules.PreValidationHook(b.addrs.AllowlistModule, entity)}
			slots = append(slots, preval)
		}
		return preval
	}

	for _, p := range b.permissions {
		switch p.Type {
		case NativeTokenTransfer:
			slots = append(slots, &hookSlot{
				config: modules.PreExecutionHook(b.addrs.NativeTokenLimitModule, entity),
				limit:  p.Allowance,
			})
			b.hasExecHooks = true
		case ERC20TokenTransfer:
			if erc20Limit == nil {
				if uint64(entity)+erc20EntityOffset > math.MaxUint32 {
					return nil, errors.Errorf("entity %d leaves no room for an erc20 spend limit entity", entity)
				}
				erc20Limit = &hookSlot{config: modules.PreExecutionHook(b.addrs.AllowlistModule, entity+erc20EntityOffset)}
				slots = append(slots, erc20Limit)
			}
			erc20Limit.inputs = append(erc20Limit.inputs, modules.AllowlistInput{
				Target:             p.Address,
				HasERC20SpendLimit: true,
				ERC20SpendLimit:    p.Allowance,
			})
			b.hasExecHooks = true
			pv := prevalAllowlist()
			pv.inputs = append(pv.inputs, modules.AllowlistInput{
				Target:               p.Address,
				HasSelectorAllowlist: true,
				Selectors:            [][4]byte{erc20ApproveSelector, erc20TransferSelector},
			})
		case GasLimit:
			slots = append(slots, &hookSlot{
				config: modules.PreValidationHook(b.addrs.NativeTokenLimitModule, entity),
				limit:  p.Limit,
			})
		case ContractAccess:
			pv := prevalAllowlist()
			pv.inputs = append(pv.inputs, modules.AllowlistInput{Target: p.Address})
		case FunctionsOnAllContracts:
			pv := prevalAllowlist()
			pv.inputs = append(pv.inputs, modules.AllowlistInput{Selectors: p.Functions})
		case FunctionsOnContract:
			pv := prevalAllowlist()
			pv.inputs = append(pv.inputs, modules.AllowlistInput{
				Target:               p.Address,
				HasSelectorAllowlist: true,
				Selectors:            p.Functions,
			})
		case AccountFunctions, Root:
		default:
			return nil, errors.Wrapf(ErrUnsupportedPermission, "%q", p.Type)
		}
	}

	// Calls checked by the allowlist go through execute and executeBatch.
	if preval != nil {
		b.addSelectorOnce(account.ExecuteSelector)
		b.addSelectorOnce(account.ExecuteBatchSelector)
	}

	hooks := make([]account.Hook, 0, len(slots))
	for _, s := range slots {
		h, err := s.hook()
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}

func (b *Builder) addSelectorOnce(selector [4]byte) {
	for _, s := range b.selectors {
		if s == selector {
			return
		}
	}
	b.selectors = append(b.selectors, selector)
}

func (b *Builder) consume() error {
	if b.consumed {
		return ErrBuilderConsumed
	}
	b.consumed = true
	return b.err
}

func (b *Builder) installRequest() (account.InstallValidationRequest, error) {
	if len(b.permissions) > 0 {
		translated, err := b.translate()
		if err != nil {
			return account.InstallValidationRequest{}, err
		}
		b.hooks = append(b.hooks, translated...)
	}
	if !b.config.IsGlobal && len(b.selectors) == 0 {
		return account.InstallValidationRequest{}, ErrValidationConfigUnset
	}
	if modules.HasExecutionHooks(b.hooks) {
		b.hasExecHooks = true
	}
	return account.InstallValidationRequest{
		Config:      b.config,
		Selectors:   b.selectors,
		InstallData: b.installData,
		Hooks:       b.hooks,
	}, nil
}

// CompileInstallArgs returns the installValidation arguments.
func (b *Builder) CompileInstallArgs() (account.InstallValidationRequest, error) {
	if err := b.consume(); err != nil {
		return account.InstallValidationRequest{}, err
	}
	return b.installRequest()
}

// CompileRaw returns the bare installValidation call data.
func (b *Builder) CompileRaw() ([]byte, error) {
	if err := b.consume(); err != nil {
		return nil, err
	}
	req, err := b.installRequest()
	if err != nil {
		return nil, err
	}
	return account.EncodeInstallValidationCall(req)
}

// Deferred is a compiled grant waiting for the owner signature.
type Deferred struct {
	TypedData              apitypes.TypedData
	FullPreSignatureDigest []byte
	HasAssociatedExecHooks bool
	Nonce                  *big.Int
	EntityID               account.EntityID
}

// TypedDataSigner signs a deferred action. *account.Account implements it.
type TypedDataSigner interface {
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
}

// Sign has s sign the typed data and returns the deferred action blob a
// session key account is constructed with.
func (d *Deferred) Sign(ctx context.Context, s TypedDataSigner) ([]byte, error) {
	sig, err := s.SignTypedData(ctx, d.TypedData)
	if err != nil {
		return nil, errors.Wrap(err, "sign deferred action")
	}
	return account.BuildDeferredActionDigest(d.FullPreSignatureDigest, sig), nil
}

// CompileDeferred wraps the installValidation call in a DeferredAction for
// the account and returns it with the digest the signature is appended to.
// A deadline adds a time range hook ahead of the translated hooks.
func (b *Builder) CompileDeferred() (*Deferred, error) {
	if err := b.consume(); err != nil {
		return nil, err
	}
	if b.deadline != 0 {
		now := b.now().Unix()
		if b.deadline < uint64(now) {
			return nil, errors.Wrapf(ErrExpiredDeadline, "deadline %d, now %d", b.deadline, now)
		}
		if b.deadline > account.MaxUint48 {
			return nil, errors.Wrapf(ErrDeadlineOverLimit, "deadline %d", b.deadline)
		}
		hook, err := modules.TimeRangeHook(b.addrs.TimeRangeModule, b.config.EntityID, b.deadline, 0)
		if err != nil {
			return nil, err
		}
		b.hooks = append(b.hooks, hook)
	}

	req, err := b.installRequest()
	if err != nil {
		return nil, err
	}
	call, err := account.EncodeInstallValidationCall(req)
	if err != nil {
		return nil, err
	}
	td := b.acct.DeferredActionTypedData(call, b.deadline, b.nonce)
	pre, err := b.acct.BuildPreSignatureDeferredActionDigest(td)
	if err != nil {
		return nil, err
	}
	b.logger.WithFields(logrus.Fields{
		"entity_id":   b.config.EntityID,
		"global":      b.config.IsGlobal,
		"hooks":       len(req.Hooks),
		"selectors":   len(req.Selectors),
		"exec_hooks":  b.hasExecHooks,
		"deadline":    b.deadline,
		"permissions": len(b.permissions),
	}).Debug("Compiled deferred permissions")
	return &Deferred{
		TypedData:              td,
		FullPreSignatureDigest: account.BuildFullPreSignatureDeferredActionDigest(b.hasExecHooks, b.nonce, pre),
		HasAssociatedExecHooks: b.hasExecHooks,
		Nonce:                  new(big.Int).Set(b.nonce),
		EntityID:               b.config.EntityID,
	}, nil
}
