package permissions_test

import (
	"context"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/base-org/modular-account/account"
	"github.com/base-org/modular-account/internal/testutil"
	"github.com/base-org/modular-account/modules"
	"github.com/base-org/modular-account/permissions"
	"github.com/base-org/modular-account/signer"
)

var chainID = big.NewInt(8453)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newKey(t *testing.T) *signer.PrivateKeySigner {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signer.NewPrivateKeySigner(key)
}

func newAccount(t *testing.T, chain *testutil.Chain) *account.Account {
	a, err := account.New(context.Background(), account.Params{
		Reader:  chain,
		Owner:   newKey(t),
		ChainID: chainID,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	return a
}

func newBuilder(t *testing.T, acct *account.Account, deadline uint64) *permissions.Builder {
	entityID, err := account.NewValidatorEntityID(1)
	require.NoError(t, err)
	b, err := permissions.NewBuilder(permissions.Params{
		Account:  acct,
		Key:      permissions.Key{Address: common.HexToAddress("0x5e55"), Type: permissions.KeySecp256k1},
		EntityID: entityID,
		Nonce:    big.NewInt(42),
		Deadline: deadline,
		Logger:   quietLogger(),
		Now:      func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)
	return b
}

type installArgs struct {
	config    account.ValidationConfig
	selectors [][4]byte
	hooks     []account.Hook
}

func decodeInstall(t *testing.T, call []byte) installArgs {
	method := account.ModularAccountABI.Methods["installValidation"]
	require.Equal(t, method.ID, call[:4])
	values, err := method.Inputs.Unpack(call[4:])
	require.NoError(t, err)
	out := installArgs{
		config:    account.DeserializeValidationConfig(values[0].([25]byte)),
		selectors: values[1].([][4]byte),
	}
	for _, raw := range values[3].([][]byte) {
		var cfg [25]byte
		copy(cfg[:], raw[:25])
		out.hooks = append(out.hooks, account.Hook{Config: account.DeserializeHookConfig(cfg), InitData: raw[25:]})
	}
	return out
}

func deferredInstall(t *testing.T, d *permissions.Deferred) installArgs {
	_, _, call, err := account.DeferredActionMessage(d.TypedData)
	require.NoError(t, err)
	return decodeInstall(t, call)
}

func TestNewBuilderRequiresValidatorEntity(t *testing.T) {
	acct := newAccount(t, testutil.NewChain())
	_, err := permissions.NewBuilder(permissions.Params{
		Account: acct,
		Key:     permissions.Key{Address: common.HexToAddress("0x5e55"), Type: permissions.KeySecp256k1},
		Nonce:   big.NewInt(42),
	})
	assert.True(t, errors.Is(err, account.ErrZeroEntityID))
}

func TestCompileDeferredGasLimitAndContractAccess(t *testing.T) {
	acct := newAccount(t, testutil.NewChain())
	addrs := acct.Addresses()
	limit := new(big.Int).SetUint64(params.Ether)

	d, err := newBuilder(t, acct, 0).
		AddPermission(permissions.Permission{Type: permissions.GasLimit, Limit: limit}).
		AddPermission(permissions.Permission{Type: permissions.ContractAccess, Address: common.HexToAddress("0xdead")}).
		CompileDeferred()
	require.NoError(t, err)

	args := deferredInstall(t, d)
	assert.False(t, args.config.IsGlobal)
	assert.True(t, args.config.IsUserOpValidation)
	assert.Equal(t, addrs.SingleSignerValidationModule, args.config.Module)
	assert.Equal(t, account.EntityID(1), args.config.EntityID)
	assert.Equal(t, [][4]byte{account.ExecuteSelector, account.ExecuteBatchSelector}, args.selectors)

	require.Len(t, args.hooks, 2)
	assert.Equal(t, modules.PreValidationHook(addrs.NativeTokenLimitModule, 1), args.hooks[0].Config)
	entity, decodedLimit, err := modules.DecodeNativeTokenLimitInstallData(args.hooks[0].InitData)
	require.NoError(t, err)
	assert.Equal(t, account.EntityID(1), entity)
	assert.Equal(t, 0, limit.Cmp(decodedLimit))

	assert.Equal(t, modules.PreValidationHook(addrs.AllowlistModule, 1), args.hooks[1].Config)
	_, inputs, err := modules.DecodeAllowlistInstallData(args.hooks[1].InitData)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, common.HexToAddress("0xdead"), inputs[0].Target)
	assert.False(t, inputs[0].HasSelectorAllowlist)

	assert.False(t, d.HasAssociatedExecHooks)
	assert.Equal(t, byte(0x00), d.FullPreSignatureDigest[0])
	assert.Equal(t, common.LeftPadBytes(big.NewInt(42).Bytes(), 32), d.FullPreSignatureDigest[1:33])
	pre, err := acct.BuildPreSignatureDeferredActionDigest(d.TypedData)
	require.NoError(t, err)
	assert.Equal(t, pre, d.FullPreSignatureDigest[33:])
}

func TestCompileDeferredRoot(t *testing.T) {
	acct := newAccount(t, testutil.NewChain())
	d, err := newBuilder(t, acct, 0).AddPermission(permissions.Permission{Type: permissions.Root}).CompileDeferred()
	require.NoError(t, err)

	args := deferredInstall(t, d)
	assert.True(t, args.config.IsGlobal)
	assert.Empty(t, args.hooks)
	assert.Empty(t, args.selectors)
}

func TestRootIsExclusive(t *testing.T) {
	acct := newAccount(t, testutil.NewChain())
	gas := permissions.Permission{Type: permissions.GasLimit, Limit: big.NewInt(1)}
	root := permissions.Permission{Type: permissions.Root}

	_, err := newBuilder(t, acct, 0).AddPermission(root).AddPermission(gas).CompileDeferred()
	assert.True(t, errors.Is(err, permissions.ErrRootPermissionOnly))

	_, err = newBuilder(t, acct, 0).AddPermission(gas).AddPermission(root).CompileDeferred()
	assert.True(t, errors.Is(err, permissions.ErrRootPermissionOnly))
}

func TestAddPermissionRejects(t *testing.T) {
	acct := newAccount(t, testutil.NewChain())
	cases := []struct {
		name string
		p    permissions.Permission
		want error
	}{
		{"account as target", permissions.Permission{Type: permissions.ContractAccess, Address: acct.Address()}, permissions.ErrAccountAddressAsTarget},
		{"zero contract", permissions.Permission{Type: permissions.ContractAccess}, permissions.ErrZeroAddress},
		{"zero token", permissions.Permission{Type: permissions.ERC20TokenTransfer, Allowance: big.NewInt(1)}, permissions.ErrZeroAddress},
		{"execute", permissions.Permission{Type: permissions.AccountFunctions, Functions: [][4]byte{account.ExecuteSelector}}, permissions.ErrSelectorNotAllowed},
		{"executeBatch", permissions.Permission{Type: permissions.AccountFunctions, Functions: [][4]byte{account.ExecuteBatchSelector}}, permissions.ErrSelectorNotAllowed},
		{"no functions", permissions.Permission{Type: permissions.FunctionsOnAllContracts}, permissions.ErrNoFunctionsProvided},
		{"unknown", permissions.Permission{Type: "erc721-token-transfer"}, permissions.ErrUnsupportedPermission},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := newBuilder(t, acct, 0).AddPermission(c.p)
			assert.True(t, errors.Is(b.Err(), c.want), "got %v", b.Err())
			_, err := b.CompileRaw()
			assert.True(t, errors.Is(err, c.want))
		})
	}
}

func TestValidationConfigUnset(t *testing.T) {
	acct := newAccount(t, testutil.NewChain())
	_, err := newBuilder(t, acct, 0).
		AddPermission(permissions.Permission{Type: permissions.GasLimit, Limit: big.NewInt(1)}).
		CompileDeferred()
	assert.True(t, errors.Is(err, permissions.ErrValidationConfigUnset))

	req, err := newBuilder(t, acct, 0).
		AddPermission(permissions.Permission{Type: permissions.GasLimit, Limit: big.NewInt(1)}).
		AddSelector([4]byte{0x12, 0x34, 0x56, 0x78}).
		CompileInstallArgs()
	require.NoError(t, err)
	assert.Equal(t, [][4]byte{{0x12, 0x34, 0x56, 0x78}}, req.Selectors)
	assert.Len(t, req.Hooks, 1)
}

func TestBuilderCompilesOnce(t *testing.T) {
	acct := newAccount(t, testutil.NewChain())
	b := newBuilder(t, acct, 0).AddPermission(permissions.Permission{Type: permissions.Root})
	_, err := b.CompileRaw()
	require.NoError(t, err)
	_, err = b.CompileDeferred()
	assert.True(t, errors.Is(err, permissions.ErrBuilderConsumed))
	_, err = b.CompileInstallArgs()
	assert.True(t, errors.Is(err, permissions.ErrBuilderConsumed))
}

func TestDeadline(t *testing.T) {
	acct := newAccount(t, testutil.NewChain())
	contract := permissions.Permission{Type: permissions.ContractAccess, Address: common.HexToAddress("0xdead")}

	_, err := newBuilder(t, acct, 1_600_000_000).AddPermission(contract).CompileDeferred()
	assert.True(t, errors.Is(err, permissions.ErrExpiredDeadline))

	_, err = newBuilder(t, acct, account.MaxUint48+1).AddPermission(contract).CompileDeferred()
	assert.True(t, errors.Is(err, permissions.ErrDeadlineOverLimit))

	d, err := newBuilder(t, acct, 1_800_000_000).AddPermission(contract).CompileDeferred()
	require.NoError(t, err)
	_, deadline, _, err := account.DeferredActionMessage(d.TypedData)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_800_000_000), deadline)

	args := deferredInstall(t, d)
	require.Len(t, args.hooks, 2)
	timeRange, err := modules.TimeRangeHook(acct.Addresses().TimeRangeModule, 1, 1_800_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, timeRange, args.hooks[0])
	assert.Equal(t, acct.Addresses().AllowlistModule, args.hooks[1].Config.Module)
}

func TestTokenPermissionsUseExecutionHooks(t *testing.T) {
	acct := newAccount(t, testutil.NewChain())
	addrs := acct.Addresses()
	token := common.HexToAddress("0x70c3")

	d, err := newBuilder(t, acct, 0).
		AddPermission(permissions.Permission{Type: permissions.ERC20TokenTransfer, Address: token, Allowance: big.NewInt(500)}).
		AddPermission(permissions.Permission{Type: permissions.NativeTokenTransfer, Allowance: big.NewInt(7)}).
		AddPermission(permissions.Permission{Type: permissions.FunctionsOnContract, Address: common.HexToAddress("0xc0de"), Functions: [][4]byte{{1, 2, 3, 4}}}).
		CompileDeferred()
	require.NoError(t, err)
	assert.True(t, d.HasAssociatedExecHooks)
	assert.Equal(t, byte(0x01), d.FullPreSignatureDigest[0])

	args := deferredInstall(t, d)
	require.Len(t, args.hooks, 3)

	erc20Entity := account.EntityID(1 + math.MaxInt32)
	assert.Equal(t, modules.PreExecutionHook(addrs.AllowlistModule, erc20Entity), args.hooks[0].Config)
	entity, limits, err := modules.DecodeAllowlistInstallData(args.hooks[0].InitData)
	require.NoError(t, err)
	assert.Equal(t, erc20Entity, entity)
	require.Len(t, limits, 1)
	assert.True(t, limits[0].HasERC20SpendLimit)
	assert.Equal(t, int64(500), limits[0].ERC20SpendLimit.Int64())

	// the validation allowlist sits where the token grant was added and
	// collects the later contract grant
	assert.Equal(t, modules.PreValidationHook(addrs.AllowlistModule, 1), args.hooks[1].Config)
	_, allowed, err := modules.DecodeAllowlistInstallData(args.hooks[1].InitData)
	require.NoError(t, err)
	require.Len(t, allowed, 2)
	assert.Equal(t, token, allowed[0].Target)
	assert.Equal(t, [][4]byte{{0x09, 0x5e, 0xa7, 0xb3}, {0xa9, 0x05, 0x9c, 0xbb}}, allowed[0].Selectors)
	assert.Equal(t, common.HexToAddress("0xc0de"), allowed[1].Target)
	assert.True(t, allowed[1].HasSelectorAllowlist)

	assert.Equal(t, modules.PreExecutionHook(addrs.NativeTokenLimitModule, 1), args.hooks[2].Config)
}

func TestGrantsAreNotDeduplicated(t *testing.T) {
	acct := newAccount(t, testutil.NewChain())
	req, err := newBuilder(t, acct, 0).
		AddPermissions(
			permissions.Permission{Type: permissions.GasLimit, Limit: big.NewInt(1)},
			permissions.Permission{Type: permissions.GasLimit, Limit: big.NewInt(2)},
			permissions.Permission{Type: permissions.AccountFunctions, Functions: [][4]byte{{0xaa, 0xbb, 0xcc, 0xdd}}},
		).
		CompileInstallArgs()
	require.NoError(t, err)
	require.Len(t, req.Hooks, 2)
	_, second, err := modules.DecodeNativeTokenLimitInstallData(req.Hooks[1].InitData)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Int64())
}

func TestGrantInstallsThroughSessionAccount(t *testing.T) {
	ctx := context.Background()
	chain := testutil.NewChain()
	owner := newAccount(t, chain)
	chain.Deploy(owner.Address(), nil)
	chain.Install(owner.Address(), account.NewModuleEntity(common.Address{}, 1), account.ValidationDataView{ValidationFlags: 0x01})
	session := newKey(t)

	d, err := permissions.NewGrant(ctx, owner, permissions.GrantRequest{
		Key: permissions.Key{Address: session.Address(), Type: permissions.KeySecp256k1},
		Permissions: []permissions.Permission{
			{Type: permissions.NativeTokenTransfer, Allowance: big.NewInt(100)},
			{Type: permissions.ContractAccess, Address: common.HexToAddress("0xdead")},
		},
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, account.EntityID(2), d.EntityID)

	blob, err := d.Sign(ctx, owner)
	require.NoError(t, err)

	address := owner.Address()
	sessionAccount, err := account.New(ctx, account.Params{
		Reader:         chain,
		Owner:          session,
		ChainID:        chainID,
		AccountAddress: &address,
		DeferredAction: blob,
		Logger:         quietLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, account.EntityID(2), sessionAccount.SignerEntity().EntityID)
	assert.True(t, sessionAccount.HasPendingDeferredAction())

	// the native token hook routes calls through executeUserOp
	callData, err := sessionAccount.EncodeCalls(ctx, []account.Call{{Target: common.HexToAddress("0xdead"), Value: big.NewInt(1)}})
	require.NoError(t, err)
	assert.Equal(t, account.ExecuteUserOpSelector[:], callData[:4])
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"gas-limit", "GAS_LIMIT"} {
		typ, err := permissions.ParseType(s)
		require.NoError(t, err)
		assert.Equal(t, permissions.GasLimit, typ)
	}
	_, err := permissions.ParseType("call-limit")
	assert.True(t, errors.Is(err, permissions.ErrUnsupportedPermission))
}
