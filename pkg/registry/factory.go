// Package registry keeps the factory-side index of smart-margin accounts:
// owner -> accounts and account -> owner lookups, kept consistent across
// ownership transfers.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrAccountExists   = errors.New("account already registered")
	ErrUnknownAccount  = errors.New("account not registered")
	ErrOwnerMismatch   = errors.New("owner does not match registration")
	ErrOwnerHasAccount = errors.New("owner already has an account")
)

// Factory indexes accounts per owner. With singlePerOwner set it enforces
// the strict 1:1 variant: one account per owner address, rejected at both
// creation and ownership transfer.
type Factory struct {
	mu             sync.RWMutex
	ownerAccounts  map[common.Address][]common.Address
	accountOwner   map[common.Address]common.Address
	singlePerOwner bool
}

func NewFactory(singlePerOwner bool) *Factory {
	return &Factory{
		ownerAccounts:  make(map[common.Address][]common.Address),
		accountOwner:   make(map[common.Address]common.Address),
		singlePerOwner: singlePerOwner,
	}
}

func (f *Factory) Register(owner, account common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.accountOwner[account]; exists {
		return fmt.Errorf("%w: %s", ErrAccountExists, account.Hex())
	}
	if f.singlePerOwner && len(f.ownerAccounts[owner]) > 0 {
		return fmt.Errorf("%w: %s", ErrOwnerHasAccount, owner.Hex())
	}
	f.accountOwner[account] = owner
	f.ownerAccounts[owner] = append(f.ownerAccounts[owner], account)
	return nil
}

// NotifyOwnershipTransfer re-links an account to its new owner. Fails for
// unknown accounts, stale old owners, and (in 1:1 mode) new owners that
// already have an account.
func (f *Factory) NotifyOwnershipTransfer(account, oldOwner, newOwner common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, exists := f.accountOwner[account]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	if owner != oldOwner {
		return fmt.Errorf("%w: have %s, claimed %s", ErrOwnerMismatch, owner.Hex(), oldOwner.Hex())
	}
	if f.singlePerOwner && len(f.ownerAccounts[newOwner]) > 0 {
		return fmt.Errorf("%w: %s", ErrOwnerHasAccount, newOwner.Hex())
	}

	accounts := f.ownerAccounts[oldOwner]
	for i, a := range accounts {
		if a == account {
			f.ownerAccounts[oldOwner] = append(accounts[:i], accounts[i+1:]...)
			break
		}
	}
	if len(f.ownerAccounts[oldOwner]) == 0 {
		delete(f.ownerAccounts, oldOwner)
	}
	f.accountOwner[account] = newOwner
	f.ownerAccounts[newOwner] = append(f.ownerAccounts[newOwner], account)
	return nil
}

// AccountsOf returns a copy of the owner's account list.
func (f *Factory) AccountsOf(owner common.Address) []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	accounts := f.ownerAccounts[owner]
	out := make([]common.Address, len(accounts))
	copy(out, accounts)
	return out
}

func (f *Factory) OwnerOf(account common.Address) (common.Address, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	owner, exists := f.accountOwner[account]
	return owner, exists
}

func (f *Factory) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.accountOwner)
}
