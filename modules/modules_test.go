package modules

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/base-org/modular-account/account"
)

func TestSingleSignerInstallData(t *testing.T) {
	signer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data, err := SingleSignerInstallData(7, signer)
	require.NoError(t, err)
	require.Len(t, data, 64)
	assert.Equal(t, uint64(7), new(big.Int).SetBytes(data[:32]).Uint64())
	assert.Equal(t, signer, common.BytesToAddress(data[32:]))
}

func TestWebAuthnInstallData(t *testing.T) {
	data, err := WebAuthnInstallData(2, big.NewInt(11), big.NewInt(12))
	require.NoError(t, err)
	require.Len(t, data, 96)
	assert.Equal(t, int64(12), new(big.Int).SetBytes(data[64:]).Int64())

	_, err = WebAuthnInstallData(2, big.NewInt(11), nil)
	assert.Error(t, err)
}

func TestAllowlistInstallData(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	inputs := []AllowlistInput{
		{Target: common.HexToAddress("0xdead")},
		{
			Target:               token,
			HasSelectorAllowlist: true,
			Selectors:            [][4]byte{{0x09, 0x5e, 0xa7, 0xb3}, {0xa9, 0x05, 0x9c, 0xbb}},
		},
		{Target: token, HasERC20SpendLimit: true, ERC20SpendLimit: big.NewInt(1000)},
	}
	data, err := AllowlistInstallData(3, inputs)
	require.NoError(t, err)

	entity, decoded, err := DecodeAllowlistInstallData(data)
	require.NoError(t, err)
	assert.Equal(t, account.EntityID(3), entity)
	require.Len(t, decoded, 3)
	assert.Equal(t, common.HexToAddress("0xdead"), decoded[0].Target)
	assert.Equal(t, 0, decoded[0].ERC20SpendLimit.Sign())
	assert.Empty(t, decoded[0].Selectors)
	assert.True(t, decoded[1].HasSelectorAllowlist)
	assert.Equal(t, inputs[1].Selectors, decoded[1].Selectors)
	assert.True(t, decoded[2].HasERC20SpendLimit)
	assert.Equal(t, int64(1000), decoded[2].ERC20SpendLimit.Int64())
}

func TestNativeTokenLimitInstallData(t *testing.T) {
	limit, _ := new(big.Int).SetString("1000000000000000000", 10)
	data, err := NativeTokenLimitInstallData(4, limit)
	require.NoError(t, err)

	entity, decoded, err := DecodeNativeTokenLimitInstallData(data)
	require.NoError(t, err)
	assert.Equal(t, account.EntityID(4), entity)
	assert.Equal(t, 0, limit.Cmp(decoded))

	_, err = NativeTokenLimitInstallData(4, big.NewInt(-1))
	assert.Error(t, err)
}

func TestTimeRangeInstallData(t *testing.T) {
	data, err := TimeRangeInstallData(1, 2000, 0)
	require.NoError(t, err)
	require.Len(t, data, 96)
	assert.Equal(t, int64(2000), new(big.Int).SetBytes(data[32:64]).Int64())

	_, err = TimeRangeInstallData(1, account.MaxUint48+1, 0)
	assert.Error(t, err)
	_, err = TimeRangeInstallData(1, 100, 100)
	assert.Error(t, err)
	_, err = TimeRangeInstallData(1, 0, 100)
	assert.NoError(t, err)
}

func TestHooks(t *testing.T) {
	module := common.HexToAddress("0x00000000000001754F0Cc1E4D6CFF9CDE0d3c9a2")
	hook, err := TimeRangeHook(module, 5, 2000, 0)
	require.NoError(t, err)
	cfg := hook.Config.Serialize()
	assert.Equal(t, "0x00000000000001754f0cc1e4d6cff9cde0d3c9a20000000505", hexutil.Encode(cfg[:]))

	guard, err := PaymasterGuardHook(module, 5, common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.False(t, HasExecutionHooks([]account.Hook{hook, guard}))
	assert.True(t, HasExecutionHooks([]account.Hook{hook, {Config: PreExecutionHook(module, 5)}}))
}

func TestUninstallData(t *testing.T) {
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000009", hexutil.Encode(UninstallData(9)))
}
