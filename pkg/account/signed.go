package account

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	smcrypto "github.com/perpkit/smartmargin/pkg/crypto"
	"github.com/perpkit/smartmargin/pkg/command"
)

// SignedBatch is the transport envelope for a command batch authorized by
// an EIP-712 signature. The recovered signer is the caller the dispatcher
// authorizes against; the nonce gives replay protection per account.
type SignedBatch struct {
	Account   common.Address `json:"account"`
	Nonce     uint64         `json:"nonce"`
	Commands  command.Batch  `json:"commands"`
	Signature hexutil.Bytes  `json:"signature"`
}

// Envelope returns the EIP-712 typed struct this batch signs.
func (sb *SignedBatch) Envelope() (*smcrypto.BatchEIP712, error) {
	encoded, err := json.Marshal(sb.Commands)
	if err != nil {
		return nil, fmt.Errorf("encode commands: %w", err)
	}
	return &smcrypto.BatchEIP712{
		Account:      sb.Account,
		Nonce:        new(big.Int).SetUint64(sb.Nonce),
		CommandsHash: smcrypto.HashCommands(encoded),
	}, nil
}

// ExecuteSigned verifies a signed batch, recovers the caller, enforces the
// account nonce and dispatches the commands. The nonce bump survives a
// failed batch so a rejected envelope cannot be replayed.
func (e *Engine) ExecuteSigned(signer *smcrypto.BatchSigner, sb *SignedBatch) error {
	envelope, err := sb.Envelope()
	if err != nil {
		return err
	}
	caller, err := signer.RecoverBatchSigner(envelope, sb.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	e.mu.Lock()
	acct, exists := e.accounts[sb.Account]
	if !exists {
		e.mu.Unlock()
		return ErrAccountNotFound
	}
	if sb.Nonce <= acct.Nonce {
		e.mu.Unlock()
		return fmt.Errorf("%w: batch nonce %d, account nonce %d", ErrInvalidNonce, sb.Nonce, acct.Nonce)
	}
	acct.Nonce = sb.Nonce
	e.mu.Unlock()

	return e.Execute(sb.Account, caller, sb.Commands)
}
