package account

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultOwnerEntityID is the entity of the fallback validation, the owner
// stored by a semi-modular account itself.
const DefaultOwnerEntityID EntityID = 0

// EntryPointV07 is the canonical ERC-4337 v0.7 entrypoint.
var EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

var (
	// ExecuteUserOpSelector routes a user operation through executeUserOp so
	// execution hooks run.
	ExecuteUserOpSelector = [4]byte{0x8d, 0xd7, 0x71, 0x2f}
	ExecuteSelector       = [4]byte{0xb6, 0x1d, 0x27, 0xf6}
	ExecuteBatchSelector  = [4]byte{0x34, 0xfc, 0xd5, 0xbe}
)

// delegationPrefix marks EIP-7702 delegated code.
var delegationPrefix = hexutil.MustDecode("0xef0100")

// Addresses of the deployed Modular Account V2 contracts.
type Addresses struct {
	EntryPoint                   common.Address `mapstructure:"entryPoint"`
	Factory                      common.Address `mapstructure:"factory"`
	ModularAccountImpl           common.Address `mapstructure:"modularAccountImpl"`
	SemiModularAccountImpl       common.Address `mapstructure:"semiModularAccountImpl"`
	SemiModularAccountStorage    common.Address `mapstructure:"semiModularAccountStorage"`
	SemiModularAccount7702       common.Address `mapstructure:"semiModularAccount7702"`
	SingleSignerValidationModule common.Address `mapstructure:"singleSignerValidationModule"`
	WebAuthnValidationModule     common.Address `mapstructure:"webAuthnValidationModule"`
	AllowlistModule              common.Address `mapstructure:"allowlistModule"`
	NativeTokenLimitModule       common.Address `mapstructure:"nativeTokenLimitModule"`
	TimeRangeModule              common.Address `mapstructure:"timeRangeModule"`
	PaymasterGuardModule         common.Address `mapstructure:"paymasterGuardModule"`
}

// DefaultAddresses are the same on every chain the contracts are deployed to.
func DefaultAddresses() Addresses {
	return Addresses{
		EntryPoint:                   EntryPointV07,
		Factory:                      common.HexToAddress("0x00000000000017c61b5bEe81050EC8eFc9c6fecd"),
		ModularAccountImpl:           common.HexToAddress("0x00000000000002377B26b1EdA7b0BC371C60DD4f"),
		SemiModularAccountImpl:       common.HexToAddress("0x000000000000c5A9089039570Dd36455b5C07383"),
		SemiModularAccountStorage:    common.HexToAddress("0x0000000000006E2f9d80CaEc0Da6500f005EB25A"),
		SemiModularAccount7702:       common.HexToAddress("0x69007702764179f14F51cdce752f4f775d74E139"),
		SingleSignerValidationModule: common.HexToAddress("0x00000000000099DE0BF6fA90dEB851E2A2df7d83"),
		WebAuthnValidationModule:     common.HexToAddress("0x0000000000001D9d34E07D9834274dF9ae575217"),
		AllowlistModule:              common.HexToAddress("0x0000000000003e826473a313e600b5b9b791f5a5"),
		NativeTokenLimitModule:       common.HexToAddress("0x00000000000001e541f0D090868FBe24b59Fbe06"),
		TimeRangeModule:              common.HexToAddress("0x00000000000001754F0Cc1E4D6CFF9CDE0d3c9a2"),
		PaymasterGuardModule:         common.HexToAddress("0x0000000000001aA7A7F7E29abe0be06c72FE3B3D"),
	}
}

// withDefaults fills zero fields from DefaultAddresses.
func (a Addresses) withDefaults() Addresses {
	d := DefaultAddresses()
	fill := func(dst *common.Address, def common.Address) {
		if *dst == (common.Address{}) {
			*dst = def
		}
	}
	fill(&a.EntryPoint, d.EntryPoint)
	fill(&a.Factory, d.Factory)
	fill(&a.ModularAccountImpl, d.ModularAccountImpl)
	fill(&a.SemiModularAccountImpl, d.SemiModularAccountImpl)
	fill(&a.SemiModularAccountStorage, d.SemiModularAccountStorage)
	fill(&a.SemiModularAccount7702, d.SemiModularAccount7702)
	fill(&a.SingleSignerValidationModule, d.SingleSignerValidationModule)
	fill(&a.WebAuthnValidationModule, d.WebAuthnValidationModule)
	fill(&a.AllowlistModule, d.AllowlistModule)
	fill(&a.NativeTokenLimitModule, d.NativeTokenLimitModule)
	fill(&a.TimeRangeModule, d.TimeRangeModule)
	fill(&a.PaymasterGuardModule, d.PaymasterGuardModule)
	return a
}
