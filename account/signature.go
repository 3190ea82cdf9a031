package account

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"

	"github.com/base-org/modular-account/signer"
)

// validationDataSeparator ends the per-hook data segments of a signature;
// what follows belongs to the validation module.
const validationDataSeparator = 0xff

// PackUserOpSignature returns 0xFF || prefix || validationSignature.
func PackUserOpSignature(prefix []byte, validationSignature []byte) []byte {
	out := make([]byte, 0, 1+len(prefix)+len(validationSignature))
	out = append(out, validationDataSeparator)
	out = append(out, prefix...)
	return append(out, validationSignature...)
}

// Pack1271Signature returns 0x00 || entityId(4) || 0xFF || prefix || validationSignature,
// the format isValidSignature expects.
func Pack1271Signature(entityID EntityID, prefix []byte, validationSignature []byte) []byte {
	out := make([]byte, 6, 6+len(prefix)+len(validationSignature))
	binary.BigEndian.PutUint32(out[1:5], uint32(entityID))
	out[5] = validationDataSeparator
	out = append(out, prefix...)
	return append(out, validationSignature...)
}

// Unpack1271Signature splits a Pack1271Signature result into the entity id
// and what follows the separator.
func Unpack1271Signature(sig []byte) (EntityID, []byte, error) {
	if len(sig) < 6 || sig[0] != 0x00 || sig[5] != validationDataSeparator {
		return 0, nil, errors.New("not a packed 1271 signature")
	}
	return EntityID(binary.BigEndian.Uint32(sig[1:5])), sig[6:], nil
}

// PrependDeferredAction returns deferredAction || packedSignature.
func PrependDeferredAction(deferredAction, packedSignature []byte) []byte {
	out := make([]byte, 0, len(deferredAction)+len(packedSignature))
	out = append(out, deferredAction...)
	return append(out, packedSignature...)
}

func signaturePrefix(s signer.Signer) []byte {
	if p, ok := signer.PrefixOf(s); ok {
		return []byte{byte(p)}
	}
	return nil
}

const replaySafeHashType = "ReplaySafeHash"

// ReplaySafeTypedData wraps hash so a signature over it is only valid for
// one account on one chain. salt is optional.
func ReplaySafeTypedData(chainID *big.Int, verifyingContract common.Address, hash common.Hash, salt []byte) apitypes.TypedData {
	domain := apitypes.TypedDataDomain{
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
		VerifyingContract: verifyingContract.Hex(),
	}
	if len(salt) > 0 {
		domain.Salt = hexutil.Encode(salt)
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":     signer.DomainType(domain),
			replaySafeHashType: {{Name: "hash", Type: "bytes32"}},
		},
		PrimaryType: replaySafeHashType,
		Domain:      domain,
		Message:     apitypes.TypedDataMessage{"hash": hash.Hex()},
	}
}

// accountSalt is 12 zero bytes || account, the salt modules use to bind a
// replay-safe hash to the account they validate for.
func accountSalt(account common.Address) []byte {
	return common.LeftPadBytes(account.Bytes(), 32)
}
