package collateral

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Bank is an in-memory implementation of both Token and NativeLedger.
// It backs the sim venue, the node binary and the test suites; a deployment
// against a real chain would satisfy the same interfaces with RPC-backed
// implementations.
type Bank struct {
	mu     sync.RWMutex
	token  map[common.Address]*big.Int
	native map[common.Address]*big.Int
}

func NewBank() *Bank {
	return &Bank{
		token:  make(map[common.Address]*big.Int),
		native: make(map[common.Address]*big.Int),
	}
}

// Mint credits margin-asset balance out of thin air (test/dev funding).
func (b *Bank) Mint(addr common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token[addr] = new(big.Int).Add(b.balanceLocked(b.token, addr), amount)
}

// MintNative credits native balance (test/dev funding).
func (b *Bank) MintNative(addr common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.native[addr] = new(big.Int).Add(b.balanceLocked(b.native, addr), amount)
}

func (b *Bank) BalanceOf(addr common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return new(big.Int).Set(b.balanceLocked(b.token, addr))
}

func (b *Bank) NativeBalanceOf(addr common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return new(big.Int).Set(b.balanceLocked(b.native, addr))
}

func (b *Bank) Transfer(from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transferLocked(b.token, from, to, amount)
}

func (b *Bank) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	// The core is the only spender in this rendition; allowance tracking
	// belongs to the real asset contract.
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transferLocked(b.token, from, to, amount)
}

func (b *Bank) NativeTransfer(from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transferLocked(b.native, from, to, amount)
}

func (b *Bank) balanceLocked(ledger map[common.Address]*big.Int, addr common.Address) *big.Int {
	if bal, ok := ledger[addr]; ok {
		return bal
	}
	return big.NewInt(0)
}

func (b *Bank) transferLocked(ledger map[common.Address]*big.Int, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount")
	}
	bal := b.balanceLocked(ledger, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("transfer from %s: balance %s short of %s: %w", from.Hex(), bal, amount, ErrInsufficientBalance)
	}
	ledger[from] = new(big.Int).Sub(bal, amount)
	ledger[to] = new(big.Int).Add(b.balanceLocked(ledger, to), amount)
	return nil
}
