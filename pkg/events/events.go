package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a state-transition record reported by the execution core. One
// event type exists per externally observable transition.
type Event interface {
	Name() string
}

// CancelReason tags why a conditional order left the pending state without
// filling.
type CancelReason string

const (
	ReasonUser          CancelReason = "cancelled_by_user"
	ReasonNotReduceOnly CancelReason = "not_reduce_only"
)

type Deposit struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

type Withdraw struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

type EthWithdraw struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

type DelegateAdded struct {
	Account  common.Address `json:"account"`
	Delegate common.Address `json:"delegate"`
}

type DelegateRemoved struct {
	Account  common.Address `json:"account"`
	Delegate common.Address `json:"delegate"`
}

type OwnershipTransferred struct {
	Account  common.Address `json:"account"`
	OldOwner common.Address `json:"old_owner"`
	NewOwner common.Address `json:"new_owner"`
}

type ConditionalOrderPlaced struct {
	Account          common.Address `json:"account"`
	OrderID          uint64         `json:"order_id"`
	MarketKey        string         `json:"market_key"`
	MarginDelta      *big.Int       `json:"margin_delta"`
	SizeDelta        *big.Int       `json:"size_delta"`
	TargetPrice      *big.Int       `json:"target_price"`
	OrderType        string         `json:"order_type"`
	DesiredFillPrice *big.Int       `json:"desired_fill_price"`
	ReduceOnly       bool           `json:"reduce_only"`
}

type ConditionalOrderCancelled struct {
	Account common.Address `json:"account"`
	OrderID uint64         `json:"order_id"`
	Reason  CancelReason   `json:"reason"`
}

type ConditionalOrderFilled struct {
	Account     common.Address `json:"account"`
	OrderID     uint64         `json:"order_id"`
	FillPrice   *big.Int       `json:"fill_price"`
	KeeperFee   *big.Int       `json:"keeper_fee"`
	ProtocolFee *big.Int       `json:"protocol_fee"`
}

type FeeImposed struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

func (Deposit) Name() string                   { return "deposit" }
func (Withdraw) Name() string                  { return "withdraw" }
func (EthWithdraw) Name() string               { return "eth_withdraw" }
func (DelegateAdded) Name() string             { return "delegate_added" }
func (DelegateRemoved) Name() string           { return "delegate_removed" }
func (OwnershipTransferred) Name() string      { return "ownership_transferred" }
func (ConditionalOrderPlaced) Name() string    { return "conditional_order_placed" }
func (ConditionalOrderCancelled) Name() string { return "conditional_order_cancelled" }
func (ConditionalOrderFilled) Name() string    { return "conditional_order_filled" }
func (FeeImposed) Name() string                { return "fee_imposed" }
