package signer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

const domainTypeName = "EIP712Domain"

// TypedDataHash returns keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
// When td does not declare EIP712Domain, the domain type is derived from the
// fields set on td.Domain.
func TypedDataHash(td apitypes.TypedData) (common.Hash, error) {
	td = withDomainType(td)
	domainSeparator, err := td.HashStruct(domainTypeName, td.Domain.Map())
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "hash EIP712Domain")
	}
	typedDataHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "hash %s", td.PrimaryType)
	}
	raw := make([]byte, 0, 66)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, typedDataHash...)
	return crypto.Keccak256Hash(raw), nil
}

// DomainType lists the EIP712Domain fields present on d, in canonical order.
func DomainType(d apitypes.TypedDataDomain) []apitypes.Type {
	var fields []apitypes.Type
	if d.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if d.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if d.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}

func withDomainType(td apitypes.TypedData) apitypes.TypedData {
	if _, ok := td.Types[domainTypeName]; ok {
		return td
	}
	types := make(apitypes.Types, len(td.Types)+1)
	for k, v := range td.Types {
		types[k] = v
	}
	types[domainTypeName] = DomainType(td.Domain)
	td.Types = types
	return td
}
