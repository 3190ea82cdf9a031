package account

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/base-org/modular-account/signer"
)

const deferredActionType = "DeferredAction"

// MaxUint48 bounds deadlines and time ranges.
const MaxUint48 = 1<<48 - 1

// DeferredAction is a signed privileged call waiting to ride along with a
// user operation. The blob form is
// hasExecHooks(1) || nonce(32) || Data
// and Data is what gets prepended to the user operation signature.
type DeferredAction struct {
	Nonce                  *big.Int
	EntityID               EntityID
	IsGlobalValidation     bool
	HasAssociatedExecHooks bool
	Data                   []byte
}

// ParseDeferredAction decodes a blob built by BuildDeferredActionDigest.
// The entity and global flag are read from the nonce.
func ParseDeferredAction(blob []byte) (*DeferredAction, error) {
	if len(blob) < 33 {
		return nil, errors.Wrapf(ErrInvalidDeferredAction, "blob is %d bytes", len(blob))
	}
	if blob[0] > 1 {
		return nil, errors.Wrapf(ErrInvalidDeferredAction, "unknown hook flag 0x%02x", blob[0])
	}
	data := common.CopyBytes(blob[33:])
	if _, err := DecodeDeferredActionData(data); err != nil {
		return nil, err
	}
	nonce := new(big.Int).SetBytes(blob[1:33])
	key, _ := ParseNonce(nonce)
	return &DeferredAction{
		Nonce:                  nonce,
		EntityID:               key.EntityID,
		IsGlobalValidation:     key.IsGlobalValidation,
		HasAssociatedExecHooks: blob[0] == 1,
		Data:                   data,
	}, nil
}

// Encode returns the blob form of d.
func (d *DeferredAction) Encode() []byte {
	out := make([]byte, 33, 33+len(d.Data))
	if d.HasAssociatedExecHooks {
		out[0] = 1
	}
	d.Nonce.FillBytes(out[1:33])
	return append(out, d.Data...)
}

// DeferredActionData is the decoded signature prefix of a deferred action.
type DeferredActionData struct {
	// Signer is the validation that signed the action, not the one that
	// will consume it.
	Signer    SignerEntity
	Deadline  uint64
	Call      []byte
	Signature []byte
}

// DecodeDeferredActionData parses
// uint32 len || uint168 locator || uint48 deadline || call || uint32 sigLen || sig.
func DecodeDeferredActionData(data []byte) (*DeferredActionData, error) {
	body, rest, err := readLengthPrefixed(data)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidDeferredAction, "encoded call: "+err.Error())
	}
	if len(body) < 27 {
		return nil, errors.Wrapf(ErrInvalidDeferredAction, "encoded call is %d bytes", len(body))
	}
	sig, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidDeferredAction, "signature: "+err.Error())
	}
	if len(rest) != 0 {
		return nil, errors.Wrapf(ErrInvalidDeferredAction, "%d trailing bytes", len(rest))
	}
	locator := new(uint256.Int).SetBytes(body[:21])
	low := locator.Uint64()
	return &DeferredActionData{
		Signer: SignerEntity{
			EntityID:           EntityID(uint32(low >> 8)),
			IsGlobalValidation: low&1 == 1,
		},
		Deadline:  new(uint256.Int).SetBytes(body[21:27]).Uint64(),
		Call:      common.CopyBytes(body[27:]),
		Signature: common.CopyBytes(sig),
	}, nil
}

// SplitDeferredAction separates a deferred action prefix from the rest of a
// user operation signature.
func SplitDeferredAction(userOpSignature []byte) (prefix, rest []byte, err error) {
	_, after, err := readLengthPrefixed(userOpSignature)
	if err != nil {
		return nil, nil, errors.Wrap(ErrInvalidDeferredAction, err.Error())
	}
	_, after, err = readLengthPrefixed(after)
	if err != nil {
		return nil, nil, errors.Wrap(ErrInvalidDeferredAction, err.Error())
	}
	n := len(userOpSignature) - len(after)
	return userOpSignature[:n], after, nil
}

func readLengthPrefixed(b []byte) (body, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, errors.New("missing length")
	}
	n := binary.BigEndian.Uint32(b[:4])
	if uint64(len(b)-4) < uint64(n) {
		return nil, nil, errors.Errorf("length %d exceeds %d available bytes", n, len(b)-4)
	}
	return b[4 : 4+n], b[4+n:], nil
}

// NewDeferredActionTypedData builds the DeferredAction typed data for
// account. A deadline of 0 means no expiry and is kept as is.
func NewDeferredActionTypedData(chainID *big.Int, account common.Address, callData []byte, deadline uint64, nonce *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			deferredActionType: {
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint48"},
				{Name: "call", Type: "bytes"},
			},
		},
		PrimaryType: deferredActionType,
		Domain: apitypes.TypedDataDomain{
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: account.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"nonce":    (*math.HexOrDecimal256)(new(big.Int).Set(nonce)),
			"deadline": (*math.HexOrDecimal256)(new(big.Int).SetUint64(deadline)),
			"call":     hexutil.Encode(callData),
		},
	}
}

// IsDeferredActionFor reports whether td is a DeferredAction for account.
func IsDeferredActionFor(td apitypes.TypedData, account common.Address) bool {
	return td.PrimaryType == deferredActionType &&
		common.IsHexAddress(td.Domain.VerifyingContract) &&
		common.HexToAddress(td.Domain.VerifyingContract) == account
}

// DeferredActionMessage extracts the nonce, deadline and call from a
// DeferredAction typed data message, accepting the value forms typed data
// takes after a JSON round trip.
func DeferredActionMessage(td apitypes.TypedData) (nonce *big.Int, deadline uint64, call []byte, err error) {
	if td.PrimaryType != deferredActionType {
		return nil, 0, nil, errors.Wrapf(ErrInvalidDeferredAction, "primary type %q", td.PrimaryType)
	}
	if nonce, err = messageInteger(td.Message["nonce"]); err != nil {
		return nil, 0, nil, errors.Wrap(err, "nonce")
	}
	d, err := messageInteger(td.Message["deadline"])
	if err != nil {
		return nil, 0, nil, errors.Wrap(err, "deadline")
	}
	if !d.IsUint64() || d.Uint64() > MaxUint48 {
		return nil, 0, nil, errors.Wrapf(ErrInvalidDeferredAction, "deadline %s exceeds uint48", d)
	}
	if call, err = messageBytes(td.Message["call"]); err != nil {
		return nil, 0, nil, errors.Wrap(err, "call")
	}
	return nonce, d.Uint64(), call, nil
}

// BuildPreSignatureDeferredActionDigest encodes the call the signer entity
// authorizes: uint32 len || uint168 validationLocator || uint48 deadline || call.
func BuildPreSignatureDeferredActionDigest(signerEntity SignerEntity, td apitypes.TypedData) ([]byte, error) {
	_, deadline, call, err := DeferredActionMessage(td)
	if err != nil {
		return nil, err
	}
	packedLen := 21 + 6 + len(call)
	out := make([]byte, 4+packedLen)
	binary.BigEndian.PutUint32(out[:4], uint32(packedLen))
	loc := signerEntity.validationLocator().Bytes32()
	copy(out[4:25], loc[32-21:])
	var dl [8]byte
	binary.BigEndian.PutUint64(dl[:], deadline)
	copy(out[25:31], dl[2:])
	copy(out[31:], call)
	return out, nil
}

// BuildFullPreSignatureDeferredActionDigest prepends the hook flag and the
// target nonce: hasExecHooks(1) || nonce(32) || preSignatureDigest.
func BuildFullPreSignatureDeferredActionDigest(hasAssociatedExecHooks bool, nonce *big.Int, preSignatureDigest []byte) []byte {
	d := &DeferredAction{Nonce: nonce, HasAssociatedExecHooks: hasAssociatedExecHooks, Data: preSignatureDigest}
	return d.Encode()
}

// BuildDeferredActionDigest appends uint32 len(sig) || sig, producing the
// blob a session client is constructed with. sig carries the signer prefix.
func BuildDeferredActionDigest(fullPreSignatureDigest, sig []byte) []byte {
	out := make([]byte, len(fullPreSignatureDigest), len(fullPreSignatureDigest)+4+len(sig))
	copy(out, fullPreSignatureDigest)
	out = binary.BigEndian.AppendUint32(out, uint32(len(sig)))
	return append(out, sig...)
}

// DeferredActionHash is the EIP-712 digest a signer signs for td.
func DeferredActionHash(td apitypes.TypedData) (common.Hash, error) {
	return signer.TypedDataHash(td)
}

func messageInteger(v interface{}) (*big.Int, error) {
	switch x := v.(type) {
	case *math.HexOrDecimal256:
		if x == nil {
			return nil, errors.New("missing value")
		}
		return new(big.Int).Set((*big.Int)(x)), nil
	case *big.Int:
		if x == nil {
			return nil, errors.New("missing value")
		}
		return new(big.Int).Set(x), nil
	case string:
		n, ok := math.ParseBig256(x)
		if !ok {
			return nil, errors.Errorf("invalid integer %q", x)
		}
		return n, nil
	case float64:
		if x < 0 || x != float64(uint64(x)) {
			return nil, errors.Errorf("invalid integer %v", x)
		}
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	default:
		return nil, errors.Errorf("unsupported integer type %T", v)
	}
}

func messageBytes(v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case string:
		return hexutil.Decode(x)
	case hexutil.Bytes:
		return common.CopyBytes(x), nil
	case []byte:
		return common.CopyBytes(x), nil
	default:
		return nil, errors.Errorf("unsupported bytes type %T", v)
	}
}
