// Package command defines the batched operation records the account engine
// dispatches. Each command is a tagged variant: an opcode plus a typed,
// JSON-encoded payload. Batches execute strictly in order and atomically.
package command

import (
	"encoding/json"
	"fmt"
)

// Op identifies the operation a command performs.
type Op uint8

const (
	OpAccountModifyMargin Op = iota
	OpAccountWithdrawEth
	OpPerpsMarketModifyMargin
	OpPerpsMarketWithdrawAllMargin
	OpPerpsMarketSubmitAtomicOrder
	OpPerpsMarketSubmitDelayedOrder
	OpPerpsMarketSubmitOffchainDelayedOrder
	OpPerpsMarketClosePosition
	OpPerpsMarketSubmitCloseDelayedOrder
	OpPerpsMarketSubmitCloseOffchainDelayedOrder
	OpPerpsMarketCancelDelayedOrder
	OpPerpsMarketCancelOffchainDelayedOrder
	OpPlaceConditionalOrder
	OpCancelConditionalOrder

	opSentinel // keep last
)

func (op Op) String() string {
	switch op {
	case OpAccountModifyMargin:
		return "account_modify_margin"
	case OpAccountWithdrawEth:
		return "account_withdraw_eth"
	case OpPerpsMarketModifyMargin:
		return "perps_market_modify_margin"
	case OpPerpsMarketWithdrawAllMargin:
		return "perps_market_withdraw_all_margin"
	case OpPerpsMarketSubmitAtomicOrder:
		return "perps_market_submit_atomic_order"
	case OpPerpsMarketSubmitDelayedOrder:
		return "perps_market_submit_delayed_order"
	case OpPerpsMarketSubmitOffchainDelayedOrder:
		return "perps_market_submit_offchain_delayed_order"
	case OpPerpsMarketClosePosition:
		return "perps_market_close_position"
	case OpPerpsMarketSubmitCloseDelayedOrder:
		return "perps_market_submit_close_delayed_order"
	case OpPerpsMarketSubmitCloseOffchainDelayedOrder:
		return "perps_market_submit_close_offchain_delayed_order"
	case OpPerpsMarketCancelDelayedOrder:
		return "perps_market_cancel_delayed_order"
	case OpPerpsMarketCancelOffchainDelayedOrder:
		return "perps_market_cancel_offchain_delayed_order"
	case OpPlaceConditionalOrder:
		return "place_conditional_order"
	case OpCancelConditionalOrder:
		return "cancel_conditional_order"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

// AuthClass partitions opcodes by who may submit them.
type AuthClass uint8

const (
	// ClassOwner: only the account owner
	ClassOwner AuthClass = iota
	// ClassAuth: the owner or a registered delegate
	ClassAuth
)

// Class returns the authorization class for the opcode. Unknown opcodes
// default to owner-only; they fail decoding before authorization matters.
func (op Op) Class() AuthClass {
	switch op {
	case OpAccountModifyMargin, OpAccountWithdrawEth,
		OpPlaceConditionalOrder, OpCancelConditionalOrder:
		return ClassOwner
	default:
		return ClassAuth
	}
}

// ConditionalOrderType tags a conditional order as limit or stop.
type ConditionalOrderType uint8

const (
	Limit ConditionalOrderType = iota
	Stop
)

func (t ConditionalOrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("order_type(%d)", uint8(t))
	}
}

func (t ConditionalOrderType) Valid() bool { return t == Limit || t == Stop }

// Command is one (opcode, payload) record in a batch.
type Command struct {
	Op      Op              `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// Batch is an ordered sequence of commands, applied strictly in order.
type Batch []Command

// InvalidCommandError reports an unknown or malformed command, carrying the
// numeric opcode.
type InvalidCommandError struct {
	Op  Op
	Err error
}

func (e *InvalidCommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid command %d (%s): %v", uint8(e.Op), e.Op, e.Err)
	}
	return fmt.Sprintf("invalid command %d", uint8(e.Op))
}

func (e *InvalidCommandError) Unwrap() error { return e.Err }
