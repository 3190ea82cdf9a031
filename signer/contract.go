package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SmartAccount is the part of a smart contract account that can act as the
// owner of another account. Its signatures are checked on chain through
// ERC-1271.
type SmartAccount interface {
	Address() common.Address
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
}

var _ Signer = (*ContractSigner)(nil)

// ContractSigner lets a nested smart account own an account.
type ContractSigner struct {
	account SmartAccount
}

func NewContractSigner(account SmartAccount) *ContractSigner {
	return &ContractSigner{account: account}
}

func (s *ContractSigner) Kind() Kind { return KindContract }

func (s *ContractSigner) Address() common.Address { return s.account.Address() }

func (s *ContractSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	return s.account.SignMessage(ctx, msg)
}

func (s *ContractSigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	return s.account.SignTypedData(ctx, td)
}

// StubSignature is an owner-entity 1271 envelope around the ECDSA stub.
func (s *ContractSigner) StubSignature() []byte {
	stub := make([]byte, 0, 7+len(stubECDSASignature))
	stub = append(stub, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, byte(PrefixEOA))
	return append(stub, stubECDSASignature...)
}

func (*ContractSigner) sealed() {}
