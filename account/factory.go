package account

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// The semi-modular account factory deploys every account under this entity.
const semiModularEntityID = 0xffffffff

var (
	proxyPrefixWithArgs = hexutil.MustDecode("0x6100513d8160233d3973")
	proxyPrefix         = hexutil.MustDecode("0x603d3d8160223d3973")
	proxySuffix         = hexutil.MustDecode("0x60095155f3363d3d373d3d363d7f360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc545af43d6000803e6038573d6000fd5b3d6000f3")
)

func combinedSalt(owner common.Address, salt *big.Int, entityID uint32) [32]byte {
	var id [4]byte
	binary.BigEndian.PutUint32(id[:], entityID)
	return crypto.Keccak256Hash(owner.Bytes(), math.U256Bytes(new(big.Int).Set(salt)), id[:])
}

// PredictSemiModularAccountAddress returns the CREATE2 address the factory
// deploys a semi-modular account for owner and salt to. The proxy carries
// the owner as an immutable argument.
func PredictSemiModularAccountAddress(factory, implementation, owner common.Address, salt *big.Int) common.Address {
	initCode := make([]byte, 0, len(proxyPrefixWithArgs)+20+len(proxySuffix)+20)
	initCode = append(initCode, proxyPrefixWithArgs...)
	initCode = append(initCode, implementation.Bytes()...)
	initCode = append(initCode, proxySuffix...)
	initCode = append(initCode, owner.Bytes()...)
	return crypto.CreateAddress2(factory, combinedSalt(owner, salt, semiModularEntityID), crypto.Keccak256(initCode))
}

// PredictModularAccountAddress is PredictSemiModularAccountAddress for a
// full modular account whose owner validation lives at entityID.
func PredictModularAccountAddress(factory, implementation, owner common.Address, salt *big.Int, entityID EntityID) common.Address {
	initCode := make([]byte, 0, len(proxyPrefix)+20+len(proxySuffix))
	initCode = append(initCode, proxyPrefix...)
	initCode = append(initCode, implementation.Bytes()...)
	initCode = append(initCode, proxySuffix...)
	return crypto.CreateAddress2(factory, combinedSalt(owner, salt, uint32(entityID)), crypto.Keccak256(initCode))
}

// EncodeCreateSemiModularAccount is the factory data for a semi-modular
// account owned by owner.
func EncodeCreateSemiModularAccount(owner common.Address, salt *big.Int) ([]byte, error) {
	return FactoryABI.Pack("createSemiModularAccount", owner, salt)
}

// EncodeCreateWebAuthnAccount is the factory data for a modular account
// owned by a passkey with public key (x, y).
func EncodeCreateWebAuthnAccount(x, y, salt *big.Int, entityID EntityID) ([]byte, error) {
	return FactoryABI.Pack("createWebAuthnAccount", x, y, salt, uint32(entityID))
}

// SenderAddress asks the entrypoint which address initCode deploys to.
// getSenderAddress always reverts; the address is carried by the
// SenderAddressResult error.
func SenderAddress(ctx context.Context, r ContractReader, entryPoint, factory common.Address, factoryData []byte) (common.Address, error) {
	initCode := append(factory.Bytes(), factoryData...)
	input, err := EntryPointABI.Pack("getSenderAddress", initCode)
	if err != nil {
		return common.Address{}, err
	}
	_, err = r.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: input}, nil)
	if err == nil {
		return common.Address{}, errors.New("getSenderAddress did not revert")
	}
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return common.Address{}, errors.Wrap(err, "getSenderAddress")
	}
	revert, err := revertData(dataErr.ErrorData())
	if err != nil {
		return common.Address{}, err
	}
	resultErr := EntryPointABI.Errors["SenderAddressResult"]
	if len(revert) < 4 || !bytes.Equal(revert[:4], resultErr.ID[:4]) {
		return common.Address{}, errors.Errorf("unexpected getSenderAddress revert %x", revert)
	}
	out, err := resultErr.Inputs.Unpack(revert[4:])
	if err != nil {
		return common.Address{}, errors.Wrap(err, "decode SenderAddressResult")
	}
	return out[0].(common.Address), nil
}

func revertData(v interface{}) ([]byte, error) {
	switch d := v.(type) {
	case string:
		return hexutil.Decode(d)
	case []byte:
		return d, nil
	case hexutil.Bytes:
		return d, nil
	default:
		return nil, errors.Errorf("unsupported revert data %T", v)
	}
}
