package account_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/perpkit/smartmargin/pkg/account"
	"github.com/perpkit/smartmargin/pkg/command"
	smcrypto "github.com/perpkit/smartmargin/pkg/crypto"
)

func newSignedFixture(t *testing.T) (*fixture, *smcrypto.Signer, *smcrypto.BatchSigner) {
	t.Helper()
	f := newFixture(t)
	key, err := smcrypto.GenerateKey()
	require.NoError(t, err)
	batchSigner := smcrypto.NewBatchSigner(smcrypto.DefaultDomain(f.cfg.Node.ChainID))
	return f, key, batchSigner
}

func signBatch(t *testing.T, bs *smcrypto.BatchSigner, key *smcrypto.Signer, sb *account.SignedBatch) {
	t.Helper()
	envelope, err := sb.Envelope()
	require.NoError(t, err)
	sig, err := bs.SignBatch(key, envelope)
	require.NoError(t, err)
	sb.Signature = sig
}

func TestExecuteSigned(t *testing.T) {
	f, key, bs := newSignedFixture(t)
	acct := f.newAccount(t, key.Address())

	sb := &account.SignedBatch{
		Account:  acct,
		Nonce:    1,
		Commands: command.Batch{deposit(100)},
	}
	signBatch(t, bs, key, sb)

	require.NoError(t, f.engine.ExecuteSigned(bs, sb))
	free, err := f.engine.FreeMargin(acct)
	require.NoError(t, err)
	requireWei(t, toWei(100), free)

	snap, _, err := f.engine.Snapshot(acct)
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Nonce)
}

func TestExecuteSignedReplayRejected(t *testing.T) {
	f, key, bs := newSignedFixture(t)
	acct := f.newAccount(t, key.Address())

	sb := &account.SignedBatch{Account: acct, Nonce: 1, Commands: command.Batch{deposit(100)}}
	signBatch(t, bs, key, sb)

	require.NoError(t, f.engine.ExecuteSigned(bs, sb))
	require.ErrorIs(t, f.engine.ExecuteSigned(bs, sb), account.ErrInvalidNonce)
}

func TestExecuteSignedNonceSurvivesFailedBatch(t *testing.T) {
	f, key, bs := newSignedFixture(t)
	acct := f.newAccount(t, key.Address())

	// no funds deposited: the batch fails, the nonce burns anyway
	failing := &account.SignedBatch{Account: acct, Nonce: 1, Commands: command.Batch{withdraw(100)}}
	signBatch(t, bs, key, failing)
	require.ErrorIs(t, f.engine.ExecuteSigned(bs, failing), account.ErrInsufficientFreeMargin)

	retry := &account.SignedBatch{Account: acct, Nonce: 1, Commands: command.Batch{deposit(100)}}
	signBatch(t, bs, key, retry)
	require.ErrorIs(t, f.engine.ExecuteSigned(bs, retry), account.ErrInvalidNonce)

	next := &account.SignedBatch{Account: acct, Nonce: 2, Commands: command.Batch{deposit(100)}}
	signBatch(t, bs, key, next)
	require.NoError(t, f.engine.ExecuteSigned(bs, next))
}

func TestExecuteSignedWrongSigner(t *testing.T) {
	f, key, bs := newSignedFixture(t)
	acct := f.newAccount(t, key.Address())

	// a valid signature from a key with no standing on the account
	outsider, err := smcrypto.GenerateKey()
	require.NoError(t, err)
	sb := &account.SignedBatch{Account: acct, Nonce: 1, Commands: command.Batch{deposit(100)}}
	signBatch(t, bs, outsider, sb)
	require.ErrorIs(t, f.engine.ExecuteSigned(bs, sb), account.ErrUnauthorized)

	// a mangled signature never recovers at all
	sb2 := &account.SignedBatch{Account: acct, Nonce: 2, Commands: command.Batch{deposit(100)}}
	signBatch(t, bs, key, sb2)
	sb2.Signature = sb2.Signature[:10]
	require.ErrorIs(t, f.engine.ExecuteSigned(bs, sb2), account.ErrBadSignature)
}

func TestExecuteSignedTamperedCommands(t *testing.T) {
	f, key, bs := newSignedFixture(t)
	acct := f.newAccount(t, key.Address())

	sb := &account.SignedBatch{Account: acct, Nonce: 1, Commands: command.Batch{deposit(100)}}
	signBatch(t, bs, key, sb)
	sb.Commands = command.Batch{withdraw(100)}

	// the digest no longer matches, so recovery yields some other address
	err := f.engine.ExecuteSigned(bs, sb)
	require.Error(t, err)
	free, freeErr := f.engine.FreeMargin(acct)
	require.NoError(t, freeErr)
	requireWei(t, toWei(0), free)
}
