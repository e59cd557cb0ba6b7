// Package account implements the smart-margin account execution core: the
// command dispatcher, the margin ledger (free vs committed collateral) and
// the conditional-order state machine.
package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/perpkit/smartmargin/pkg/command"
	"github.com/perpkit/smartmargin/pkg/keeper"
)

// Account is the per-user smart-margin account state. Free margin is
// derived: freeMargin = collateral balance - CommittedMargin. The invariant
// CommittedMargin <= balance holds after every mutating call.
type Account struct {
	Address   common.Address          `json:"address"`
	Owner     common.Address          `json:"owner"`
	Delegates map[common.Address]bool `json:"delegates"`

	// CommittedMargin is collateral reserved for pending conditional
	// orders; it cannot be withdrawn or re-committed.
	CommittedMargin *big.Int `json:"committed_margin"`

	// ConditionalOrderID is the id the next placed order receives.
	ConditionalOrderID uint64                       `json:"conditional_order_id"`
	Orders             map[uint64]*ConditionalOrder `json:"orders"`

	// Nonce is the replay-protection counter for signed batches.
	Nonce uint64 `json:"nonce"`
}

// ConditionalOrder is a pending price-triggered trade intent. The record is
// read-only while pending; execution and cancellation delete it.
type ConditionalOrder struct {
	ID               uint64                       `json:"id"`
	MarketKey        string                       `json:"market_key"`
	MarginDelta      *big.Int                     `json:"margin_delta"`
	SizeDelta        *big.Int                     `json:"size_delta"`
	TargetPrice      *big.Int                     `json:"target_price"`
	DesiredFillPrice *big.Int                     `json:"desired_fill_price"`
	OrderType        command.ConditionalOrderType `json:"order_type"`
	ReduceOnly       bool                         `json:"reduce_only"`
	TaskID           keeper.TaskID                `json:"task_id"`
}

func NewAccount(addr, owner common.Address) *Account {
	return &Account{
		Address:         addr,
		Owner:           owner,
		Delegates:       make(map[common.Address]bool),
		CommittedMargin: big.NewInt(0),
		Orders:          make(map[uint64]*ConditionalOrder),
	}
}

// IsOwner reports whether caller is the account owner.
func (a *Account) IsOwner(caller common.Address) bool {
	return caller == a.Owner
}

// IsAuth reports whether caller is the owner or a registered delegate.
func (a *Account) IsAuth(caller common.Address) bool {
	return caller == a.Owner || a.Delegates[caller]
}

// Clone returns a deep copy, used to restore pre-batch state when a command
// in an atomic batch fails.
func (a *Account) Clone() *Account {
	out := &Account{
		Address:            a.Address,
		Owner:              a.Owner,
		Delegates:          make(map[common.Address]bool, len(a.Delegates)),
		CommittedMargin:    new(big.Int).Set(a.CommittedMargin),
		ConditionalOrderID: a.ConditionalOrderID,
		Orders:             make(map[uint64]*ConditionalOrder, len(a.Orders)),
		Nonce:              a.Nonce,
	}
	for d := range a.Delegates {
		out.Delegates[d] = true
	}
	for id, ord := range a.Orders {
		cp := *ord
		cp.MarginDelta = new(big.Int).Set(ord.MarginDelta)
		cp.SizeDelta = new(big.Int).Set(ord.SizeDelta)
		cp.TargetPrice = new(big.Int).Set(ord.TargetPrice)
		cp.DesiredFillPrice = new(big.Int).Set(ord.DesiredFillPrice)
		out.Orders[id] = &cp
	}
	return out
}

// normalize repairs nil maps and big ints after JSON decoding.
func (a *Account) normalize() {
	if a.Delegates == nil {
		a.Delegates = make(map[common.Address]bool)
	}
	if a.Orders == nil {
		a.Orders = make(map[uint64]*ConditionalOrder)
	}
	if a.CommittedMargin == nil {
		a.CommittedMargin = big.NewInt(0)
	}
}
