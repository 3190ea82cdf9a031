package account

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const modularAccountABIJSON = `[
	{"type":"function","name":"execute","stateMutability":"payable",
	 "inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],
	 "outputs":[{"name":"result","type":"bytes"}]},
	{"type":"function","name":"executeBatch","stateMutability":"payable",
	 "inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}]}],
	 "outputs":[{"name":"results","type":"bytes[]"}]},
	{"type":"function","name":"installValidation","stateMutability":"nonpayable",
	 "inputs":[{"name":"validationConfig","type":"bytes25"},{"name":"selectors","type":"bytes4[]"},{"name":"installData","type":"bytes"},{"name":"hooks","type":"bytes[]"}],
	 "outputs":[]},
	{"type":"function","name":"uninstallValidation","stateMutability":"nonpayable",
	 "inputs":[{"name":"validationFunction","type":"bytes24"},{"name":"uninstallData","type":"bytes"},{"name":"hookUninstallData","type":"bytes[]"}],
	 "outputs":[]},
	{"type":"function","name":"getValidationData","stateMutability":"view",
	 "inputs":[{"name":"validationFunction","type":"bytes24"}],
	 "outputs":[{"name":"data","type":"tuple","components":[{"name":"validationFlags","type":"uint8"},{"name":"validationHooks","type":"bytes25[]"},{"name":"executionHooks","type":"bytes25[]"},{"name":"selectors","type":"bytes4[]"}]}]},
	{"type":"function","name":"getExecutionData","stateMutability":"view",
	 "inputs":[{"name":"selector","type":"bytes4"}],
	 "outputs":[{"name":"data","type":"tuple","components":[{"name":"module","type":"address"},{"name":"skipRuntimeValidation","type":"bool"},{"name":"allowGlobalValidation","type":"bool"},{"name":"executionHooks","type":"bytes25[]"}]}]}
]`

const entryPointABIJSON = `[
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]},
	{"type":"function","name":"getSenderAddress","stateMutability":"nonpayable",
	 "inputs":[{"name":"initCode","type":"bytes"}],
	 "outputs":[]},
	{"type":"error","name":"SenderAddressResult",
	 "inputs":[{"name":"sender","type":"address"}]}
]`

const factoryABIJSON = `[
	{"type":"function","name":"createSemiModularAccount","stateMutability":"nonpayable",
	 "inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"createWebAuthnAccount","stateMutability":"nonpayable",
	 "inputs":[{"name":"ownerX","type":"uint256"},{"name":"ownerY","type":"uint256"},{"name":"salt","type":"uint256"},{"name":"entityId","type":"uint32"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

var (
	// ModularAccountABI is the subset of the account interface used here.
	ModularAccountABI = mustParseABI(modularAccountABIJSON)
	EntryPointABI     = mustParseABI(entryPointABIJSON)
	FactoryABI        = mustParseABI(factoryABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
