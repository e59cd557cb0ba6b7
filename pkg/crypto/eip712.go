package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain is the domain separator for signed command batches; it
// prevents replay across chains and deployments.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DefaultDomain returns the batch-signing domain for the given chain id.
func DefaultDomain(chainID *big.Int) EIP712Domain {
	return EIP712Domain{
		Name:    "SmartMargin",
		Version: "1",
		ChainID: chainID,
		// Zero address: batches are verified off-chain by the engine
		VerifyingContract: common.Address{},
	}
}

// BatchEIP712 is the typed struct a caller signs to authorize a command
// batch against an account. CommandsHash is the keccak256 of the serialized
// command sequence, binding the signature to the exact batch contents.
type BatchEIP712 struct {
	Account      common.Address
	Nonce        *big.Int
	CommandsHash common.Hash
}

// BatchSigner hashes, signs and recovers EIP-712 batch envelopes.
type BatchSigner struct {
	domain EIP712Domain
}

func NewBatchSigner(domain EIP712Domain) *BatchSigner {
	return &BatchSigner{domain: domain}
}

// HashBatch computes the EIP-712 digest for a batch envelope.
func (b *BatchSigner) HashBatch(batch *BatchEIP712) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Batch": []apitypes.Type{
				{Name: "account", Type: "address"},
				{Name: "nonce", Type: "uint256"},
				{Name: "commandsHash", Type: "bytes32"},
			},
		},
		PrimaryType: "Batch",
		Domain: apitypes.TypedDataDomain{
			Name:              b.domain.Name,
			Version:           b.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(b.domain.ChainID),
			VerifyingContract: b.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"account":      batch.Account.Hex(),
			"nonce":        batch.Nonce.String(),
			"commandsHash": hexutil.Encode(batch.CommandsHash[:]),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// digest = keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	digest := crypto.Keccak256Hash(rawData)
	return digest.Bytes(), nil
}

// SignBatch signs a batch envelope with the given key.
func (b *BatchSigner) SignBatch(signer *Signer, batch *BatchEIP712) ([]byte, error) {
	hash, err := b.HashBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to hash batch: %w", err)
	}
	return signer.Sign(hash)
}

// RecoverBatchSigner recovers the address that signed a batch envelope.
func (b *BatchSigner) RecoverBatchSigner(batch *BatchEIP712, signature []byte) (common.Address, error) {
	hash, err := b.HashBatch(batch)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash batch: %w", err)
	}
	return RecoverAddress(hash, signature)
}

// HashCommands computes the keccak256 binding hash over serialized commands.
func HashCommands(encoded []byte) common.Hash {
	return crypto.Keccak256Hash(encoded)
}
