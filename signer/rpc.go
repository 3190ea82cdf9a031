package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

var _ Signer = (*RPCSigner)(nil)

// RPCSigner asks a wallet or node holding the key to sign over JSON-RPC.
type RPCSigner struct {
	client  *rpc.Client
	address common.Address
}

func NewRPCSigner(client *rpc.Client, address common.Address) *RPCSigner {
	return &RPCSigner{client: client, address: address}
}

func (s *RPCSigner) Kind() Kind { return KindJSONRPC }

func (s *RPCSigner) Address() common.Address { return s.address }

func (s *RPCSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	var sig hexutil.Bytes
	if err := s.client.CallContext(ctx, &sig, "personal_sign", hexutil.Bytes(msg), s.address); err != nil {
		return nil, errors.Wrap(err, "personal_sign")
	}
	return sig, nil
}

func (s *RPCSigner) SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error) {
	td = withDomainType(td)
	var sig hexutil.Bytes
	if err := s.client.CallContext(ctx, &sig, "eth_signTypedData_v4", s.address, td); err != nil {
		return nil, errors.Wrap(err, "eth_signTypedData_v4")
	}
	return sig, nil
}

func (s *RPCSigner) StubSignature() []byte {
	return common.CopyBytes(stubECDSASignature)
}

func (*RPCSigner) sealed() {}
