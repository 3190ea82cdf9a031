package signer

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// Kind tags the owner type behind a Signer.
type Kind string

const (
	KindLocal    Kind = "local"
	KindWebAuthn Kind = "webAuthn"
	KindJSONRPC  Kind = "jsonRpc"
	KindContract Kind = "contract"
)

// Prefix is the byte the single signer validation module reads in front of a
// signature to pick between ecrecover and an ERC-1271 call.
type Prefix byte

const (
	PrefixEOA      Prefix = 0x00
	PrefixContract Prefix = 0x01
)

// stubECDSASignature is a well-formed 65 byte signature that recovers to some
// address without reverting. Used for gas estimation only.
var stubECDSASignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// Signer is the key material behind an account owner. The set of
// implementations is closed: PrivateKeySigner, RPCSigner, WebAuthnSigner and
// ContractSigner.
type Signer interface {
	Kind() Kind
	// SignMessage signs msg as an EIP-191 personal message.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	// SignTypedData signs the EIP-712 digest of td.
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
	// StubSignature returns a signature with the final size and shape, for
	// gas estimation.
	StubSignature() []byte

	sealed()
}

// Addresser is implemented by signers backed by an Ethereum address.
type Addresser interface {
	Address() common.Address
}

// PrefixOf returns the validation signature prefix for s, or false when the
// kind carries none.
func PrefixOf(s Signer) (Prefix, bool) {
	switch s.Kind() {
	case KindLocal, KindJSONRPC:
		return PrefixEOA, true
	case KindContract:
		return PrefixContract, true
	default:
		return 0, false
	}
}

var _ Signer = (*PrivateKeySigner)(nil)

type PrivateKeySigner struct {
	*ecdsa.PrivateKey
}

func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{PrivateKey: key}
}

// HexToPrivateKeySigner parses a hex encoded secp256k1 key, with or without 0x.
func HexToPrivateKeySigner(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	return &PrivateKeySigner{PrivateKey: key}, nil
}

func (s *PrivateKeySigner) SignHash(h common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(h[:], s.PrivateKey)
	if err == nil {
		signature[64] += 27
	}
	return signature, err
}

func (s *PrivateKeySigner) Kind() Kind { return KindLocal }

func (s *PrivateKeySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.PublicKey)
}

func (s *PrivateKeySigner) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	return s.SignHash(common.BytesToHash(accounts.TextHash(msg)))
}

func (s *PrivateKeySigner) SignTypedData(_ context.Context, td apitypes.TypedData) ([]byte, error) {
	h, err := TypedDataHash(td)
	if err != nil {
		return nil, err
	}
	return s.SignHash(h)
}

func (s *PrivateKeySigner) StubSignature() []byte {
	return common.CopyBytes(stubECDSASignature)
}

func (*PrivateKeySigner) sealed() {}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
