package account

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/perpkit/smartmargin/params"
	"github.com/perpkit/smartmargin/pkg/collateral"
	"github.com/perpkit/smartmargin/pkg/events"
	"github.com/perpkit/smartmargin/pkg/fees"
	"github.com/perpkit/smartmargin/pkg/keeper"
	"github.com/perpkit/smartmargin/pkg/venue"
)

// TrackingTag identifies this protocol's trades at the venue.
const TrackingTag = "SMARTMARGIN"

// Registry is the factory-side account index the engine notifies so that
// owner -> account reverse lookups stay consistent.
type Registry interface {
	Register(owner, account common.Address) error
	NotifyOwnershipTransfer(account, oldOwner, newOwner common.Address) error
}

// Store persists account snapshots (including pending conditional orders).
type Store interface {
	SaveAccount(a *Account) error
	LoadAccounts() ([]*Account, error)
}

// Engine is the smart-margin execution core. All mutations run under one
// lock: execution is single-threaded per call, matching the transaction
// model the protocol assumes. Asynchrony only exists across calls (keeper
// triggered conditional-order execution).
type Engine struct {
	mu sync.RWMutex

	settings params.Protocol
	bank     collateral.Token
	native   collateral.NativeLedger
	markets  venue.Registry
	fees     *fees.Calculator
	network  keeper.Network
	registry Registry
	emitter  events.Emitter
	store    Store // optional
	log      *zap.Logger

	accounts map[common.Address]*Account
	salt     uint64

	// buf holds events produced by the in-flight call; they are flushed
	// only after the call commits, discarded on failure.
	buf []events.Event
}

type Deps struct {
	Settings params.Protocol
	Bank     collateral.Token
	Native   collateral.NativeLedger
	Markets  venue.Registry
	Fees     *fees.Calculator
	Network  keeper.Network
	Registry Registry
	Emitter  events.Emitter
	Store    Store
	Logger   *zap.Logger
}

func NewEngine(d Deps) (*Engine, error) {
	e := &Engine{
		settings: d.Settings,
		bank:     d.Bank,
		native:   d.Native,
		markets:  d.Markets,
		fees:     d.Fees,
		network:  d.Network,
		registry: d.Registry,
		emitter:  d.Emitter,
		store:    d.Store,
		log:      d.Logger.Named("engine"),
		accounts: make(map[common.Address]*Account),
	}
	if e.store != nil {
		loaded, err := e.store.LoadAccounts()
		if err != nil {
			return nil, fmt.Errorf("load accounts: %w", err)
		}
		for _, acct := range loaded {
			acct.normalize()
			e.accounts[acct.Address] = acct
			if err := e.registry.Register(acct.Owner, acct.Address); err != nil {
				return nil, fmt.Errorf("rebuild registry: %w", err)
			}
			e.rebindTasks(acct)
		}
		e.salt = uint64(len(loaded))
	}
	return e, nil
}

// rebindTasks re-registers keeper tasks for orders restored from storage;
// the in-process network does not survive restarts.
func (e *Engine) rebindTasks(acct *Account) {
	addr := acct.Address
	for id, ord := range acct.Orders {
		orderID := id
		taskID, err := e.network.CreateTask(keeper.TaskRequest{
			Name:     taskName(addr, orderID),
			Resolver: func() (bool, error) { return e.Checker(addr, orderID) },
			Exec:     func() error { return e.ExecuteConditionalOrder(addr, orderID) },
			FeeToken: collateral.NativeToken,
		})
		if err != nil {
			e.log.Warn("failed to rebind task", zap.Uint64("order", orderID), zap.Error(err))
			continue
		}
		ord.TaskID = taskID
	}
}

// CreateAccount deploys a new smart-margin account for owner. The address
// is derived from the owner and a creation salt.
func (e *Engine) CreateAccount(owner common.Address) (common.Address, error) {
	if owner == (common.Address{}) {
		return common.Address{}, ErrZeroAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.salt++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], e.salt)
	addr := common.BytesToAddress(gethcrypto.Keccak256([]byte("smart-account:"), owner.Bytes(), buf[:])[12:])

	if err := e.registry.Register(owner, addr); err != nil {
		e.salt--
		return common.Address{}, err
	}
	acct := NewAccount(addr, owner)
	e.accounts[addr] = acct
	if e.store != nil {
		if err := e.store.SaveAccount(acct); err != nil {
			return common.Address{}, err
		}
	}
	e.log.Info("account created",
		zap.String("account", addr.Hex()), zap.String("owner", owner.Hex()))
	return addr, nil
}

// mutateLocked wraps a state transition in the all-or-nothing semantics
// every mutating entry point shares: snapshot, run, persist, flush events;
// restore and discard on any failure.
func (e *Engine) mutateLocked(addr common.Address, fn func(acct *Account) error) error {
	if !e.settings.AccountExecutionEnabled {
		return ErrExecutionDisabled
	}
	acct, exists := e.accounts[addr]
	if !exists {
		return ErrAccountNotFound
	}
	snapshot := acct.Clone()
	e.buf = e.buf[:0]

	restore := func() {
		e.accounts[addr] = snapshot
		e.buf = e.buf[:0]
	}

	if err := fn(acct); err != nil {
		restore()
		return err
	}
	if e.store != nil {
		if err := e.store.SaveAccount(acct); err != nil {
			restore()
			return fmt.Errorf("persist account: %w", err)
		}
	}
	for _, ev := range e.buf {
		e.emitter.Emit(ev)
	}
	e.buf = e.buf[:0]
	return nil
}

func (e *Engine) emit(ev events.Event) {
	e.buf = append(e.buf, ev)
}

// freeMargin = collateral balance - committed margin.
func (e *Engine) freeMargin(acct *Account) *big.Int {
	return new(big.Int).Sub(e.bank.BalanceOf(acct.Address), acct.CommittedMargin)
}

// commitMargin reserves amount for a pending conditional order, maintaining
// committedMargin <= balance.
func (e *Engine) commitMargin(acct *Account, amount *big.Int) error {
	if e.freeMargin(acct).Cmp(amount) < 0 {
		return fmt.Errorf("commit %s: %w", amount, ErrInsufficientFreeMargin)
	}
	acct.CommittedMargin.Add(acct.CommittedMargin, amount)
	return nil
}

func (e *Engine) freeCommittedMargin(acct *Account, amount *big.Int) {
	acct.CommittedMargin.Sub(acct.CommittedMargin, amount)
	if acct.CommittedMargin.Sign() < 0 {
		// committed margin can never go negative; freeing is always
		// paired with an earlier commit of the same amount
		panic("committed margin underflow")
	}
}

// imposeFee transfers fee from the account to the treasury. Fails when the
// fee exceeds free margin.
func (e *Engine) imposeFee(acct *Account, fee *big.Int) error {
	if e.freeMargin(acct).Cmp(fee) < 0 {
		return fmt.Errorf("fee %s: %w", fee, ErrCannotPayFee)
	}
	if err := e.bank.Transfer(acct.Address, e.settings.Treasury, fee); err != nil {
		return err
	}
	e.emit(events.FeeImposed{Account: acct.Address, Amount: new(big.Int).Set(fee)})
	return nil
}

// imposeTradeFee is the side effect of every position-size-changing
// command: a trade fee keyed by the post-trade market.
func (e *Engine) imposeTradeFee(acct *Account, marketKey string, sizeDelta *big.Int, extraBps uint64) error {
	fee, err := e.fees.Fee(marketKey, sizeDelta, extraBps)
	if err != nil {
		return err
	}
	if fee.Sign() == 0 {
		return nil
	}
	return e.imposeFee(acct, fee)
}

// AddDelegate registers a delegate. Owner only; rejects the zero address
// and redundant additions.
func (e *Engine) AddDelegate(account, caller, delegate common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutateLocked(account, func(acct *Account) error {
		if !acct.IsOwner(caller) {
			return ErrNotOwner
		}
		if delegate == (common.Address{}) {
			return ErrZeroAddress
		}
		if acct.Delegates[delegate] {
			return ErrDelegateExists
		}
		acct.Delegates[delegate] = true
		e.emit(events.DelegateAdded{Account: account, Delegate: delegate})
		return nil
	})
}

// RemoveDelegate removes a delegate. Owner only; rejects removing an
// address that is not a delegate.
func (e *Engine) RemoveDelegate(account, caller, delegate common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutateLocked(account, func(acct *Account) error {
		if !acct.IsOwner(caller) {
			return ErrNotOwner
		}
		if delegate == (common.Address{}) {
			return ErrZeroAddress
		}
		if !acct.Delegates[delegate] {
			return ErrDelegateNotFound
		}
		delete(acct.Delegates, delegate)
		e.emit(events.DelegateRemoved{Account: account, Delegate: delegate})
		return nil
	})
}

// TransferOwnership hands the account to a new owner and notifies the
// factory registry so owner -> account lookups stay consistent.
func (e *Engine) TransferOwnership(account, caller, newOwner common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutateLocked(account, func(acct *Account) error {
		if !acct.IsOwner(caller) {
			return ErrNotOwner
		}
		if newOwner == (common.Address{}) {
			return ErrZeroAddress
		}
		if err := e.registry.NotifyOwnershipTransfer(account, acct.Owner, newOwner); err != nil {
			return err
		}
		old := acct.Owner
		acct.Owner = newOwner
		e.emit(events.OwnershipTransferred{Account: account, OldOwner: old, NewOwner: newOwner})
		return nil
	})
}

// --- read-only queries ---

func (e *Engine) AccountExists(addr common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, exists := e.accounts[addr]
	return exists
}

// Snapshot returns a deep copy of the account state together with its
// collateral balance.
func (e *Engine) Snapshot(addr common.Address) (*Account, *big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acct, exists := e.accounts[addr]
	if !exists {
		return nil, nil, ErrAccountNotFound
	}
	return acct.Clone(), e.bank.BalanceOf(addr), nil
}

func (e *Engine) OwnerOf(addr common.Address) (common.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acct, exists := e.accounts[addr]
	if !exists {
		return common.Address{}, ErrAccountNotFound
	}
	return acct.Owner, nil
}

func (e *Engine) CommittedMargin(addr common.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acct, exists := e.accounts[addr]
	if !exists {
		return nil, ErrAccountNotFound
	}
	return new(big.Int).Set(acct.CommittedMargin), nil
}

func (e *Engine) FreeMargin(addr common.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acct, exists := e.accounts[addr]
	if !exists {
		return nil, ErrAccountNotFound
	}
	return e.freeMargin(acct), nil
}

// Order returns a copy of a pending conditional order.
func (e *Engine) Order(addr common.Address, orderID uint64) (ConditionalOrder, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acct, exists := e.accounts[addr]
	if !exists {
		return ConditionalOrder{}, ErrAccountNotFound
	}
	ord, exists := acct.Orders[orderID]
	if !exists {
		return ConditionalOrder{}, ErrOrderNotFound
	}
	cp := *ord
	cp.MarginDelta = new(big.Int).Set(ord.MarginDelta)
	cp.SizeDelta = new(big.Int).Set(ord.SizeDelta)
	cp.TargetPrice = new(big.Int).Set(ord.TargetPrice)
	cp.DesiredFillPrice = new(big.Int).Set(ord.DesiredFillPrice)
	return cp, nil
}

// Orders returns copies of all pending conditional orders for an account.
func (e *Engine) Orders(addr common.Address) ([]ConditionalOrder, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acct, exists := e.accounts[addr]
	if !exists {
		return nil, ErrAccountNotFound
	}
	out := make([]ConditionalOrder, 0, len(acct.Orders))
	for id := range acct.Orders {
		ord := acct.Orders[id]
		cp := *ord
		cp.MarginDelta = new(big.Int).Set(ord.MarginDelta)
		cp.SizeDelta = new(big.Int).Set(ord.SizeDelta)
		cp.TargetPrice = new(big.Int).Set(ord.TargetPrice)
		cp.DesiredFillPrice = new(big.Int).Set(ord.DesiredFillPrice)
		out = append(out, cp)
	}
	return out, nil
}

func taskName(addr common.Address, orderID uint64) string {
	return fmt.Sprintf("conditional-order:%s:%d", addr.Hex(), orderID)
}
