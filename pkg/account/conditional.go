package account

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/perpkit/smartmargin/pkg/collateral"
	"github.com/perpkit/smartmargin/pkg/command"
	"github.com/perpkit/smartmargin/pkg/events"
	"github.com/perpkit/smartmargin/pkg/keeper"
	"github.com/perpkit/smartmargin/pkg/venue"
)

// placeConditionalOrder commits margin (before any external call), registers
// the automation task whose trigger is the paired validity check, persists
// the order under the next id and reports placement.
func (e *Engine) placeConditionalOrder(acct *Account, p *command.PlaceConditionalOrder) error {
	sizeDelta := p.SizeDelta.Int()
	if sizeDelta.Sign() == 0 {
		return command.ErrZeroSizeDelta
	}
	if _, err := e.markets.MarketByKey(p.MarketKey); err != nil {
		return err
	}

	marginDelta := p.MarginDelta.Int()
	if marginDelta.Sign() > 0 {
		if err := e.commitMargin(acct, marginDelta); err != nil {
			return err
		}
	}

	orderID := acct.ConditionalOrderID
	addr := acct.Address
	taskID, err := e.network.CreateTask(keeper.TaskRequest{
		Name:     taskName(addr, orderID),
		Resolver: func() (bool, error) { return e.Checker(addr, orderID) },
		Exec:     func() error { return e.ExecuteConditionalOrder(addr, orderID) },
		FeeToken: collateral.NativeToken,
	})
	if err != nil {
		return fmt.Errorf("register automation task: %w", err)
	}

	acct.Orders[orderID] = &ConditionalOrder{
		ID:               orderID,
		MarketKey:        p.MarketKey,
		MarginDelta:      new(big.Int).Set(marginDelta),
		SizeDelta:        new(big.Int).Set(sizeDelta),
		TargetPrice:      new(big.Int).Set(p.TargetPrice.Int()),
		DesiredFillPrice: new(big.Int).Set(p.DesiredFillPrice.Int()),
		OrderType:        p.OrderType,
		ReduceOnly:       p.ReduceOnly,
		TaskID:           taskID,
	}
	acct.ConditionalOrderID++

	e.emit(events.ConditionalOrderPlaced{
		Account:          addr,
		OrderID:          orderID,
		MarketKey:        p.MarketKey,
		MarginDelta:      new(big.Int).Set(marginDelta),
		SizeDelta:        new(big.Int).Set(sizeDelta),
		TargetPrice:      new(big.Int).Set(p.TargetPrice.Int()),
		OrderType:        p.OrderType.String(),
		DesiredFillPrice: new(big.Int).Set(p.DesiredFillPrice.Int()),
		ReduceOnly:       p.ReduceOnly,
	})
	return nil
}

// cancelConditionalOrder frees committed margin, cancels the automation
// task and deletes the order. Reached through the owner-only cancel
// command; the reduce-only abort path reports through its own branch in
// executeConditionalOrderLocked instead.
func (e *Engine) cancelConditionalOrder(acct *Account, orderID uint64, reason events.CancelReason) error {
	ord, exists := acct.Orders[orderID]
	if !exists {
		return fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	if ord.MarginDelta.Sign() > 0 {
		e.freeCommittedMargin(acct, ord.MarginDelta)
	}
	if err := e.network.CancelTask(ord.TaskID); err != nil {
		return err
	}
	delete(acct.Orders, orderID)
	e.emit(events.ConditionalOrderCancelled{Account: acct.Address, OrderID: orderID, Reason: reason})
	return nil
}

// Checker is the read-only validity check the automation network polls and
// the engine re-runs before execution. Limit orders trigger on favorable
// prices (long: price <= target, short: price >= target); stop orders
// invert both inequalities.
func (e *Engine) Checker(account common.Address, orderID uint64) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acct, exists := e.accounts[account]
	if !exists {
		return false, ErrAccountNotFound
	}
	ord, exists := acct.Orders[orderID]
	if !exists {
		return false, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	valid, _, err := e.orderValidity(ord)
	return valid, err
}

func (e *Engine) orderValidity(ord *ConditionalOrder) (bool, *big.Int, error) {
	m, err := e.markets.MarketByKey(ord.MarketKey)
	if err != nil {
		return false, nil, err
	}
	price, invalid := m.AssetPrice()
	if invalid {
		return false, nil, fmt.Errorf("order %d: %w", ord.ID, venue.ErrInvalidPrice)
	}

	long := ord.SizeDelta.Sign() > 0
	var valid bool
	switch ord.OrderType {
	case command.Limit:
		if long {
			valid = price.Cmp(ord.TargetPrice) <= 0
		} else {
			valid = price.Cmp(ord.TargetPrice) >= 0
		}
	case command.Stop:
		if long {
			valid = price.Cmp(ord.TargetPrice) >= 0
		} else {
			valid = price.Cmp(ord.TargetPrice) <= 0
		}
	}
	return valid, price, nil
}

// ExecuteConditionalOrder is the keeper-invoked execution entry point. It
// re-validates, deletes the order record before any external call (a repeat
// or reentrant call finds nothing pending), applies reduce-only semantics,
// trades, settles the keeper fee and imposes the combined protocol fee.
func (e *Engine) ExecuteConditionalOrder(account common.Address, orderID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutateLocked(account, func(acct *Account) error {
		return e.executeConditionalOrderLocked(acct, orderID)
	})
}

func (e *Engine) executeConditionalOrderLocked(acct *Account, orderID uint64) error {
	ord, exists := acct.Orders[orderID]
	if !exists {
		return fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	valid, price, err := e.orderValidity(ord)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("order %d: %w", orderID, ErrCannotExecute)
	}

	m, err := e.markets.MarketByKey(ord.MarketKey)
	if err != nil {
		return err
	}

	// terminal-state transition happens before any external collaborator
	// is invoked
	delete(acct.Orders, orderID)

	sizeDelta := new(big.Int).Set(ord.SizeDelta)
	if ord.ReduceOnly {
		pos := m.Position(acct.Address)
		if pos.Size.Sign() == 0 || sameSign(pos.Size, sizeDelta) {
			// The order would grow exposure instead of reducing it.
			// No-op rather than error so the dispatched keeper call
			// still settles. The automation task is not cancelled on
			// this path; the stale task resolves once the order record
			// is gone.
			if ord.MarginDelta.Sign() > 0 {
				e.freeCommittedMargin(acct, ord.MarginDelta)
			}
			e.emit(events.ConditionalOrderCancelled{
				Account: acct.Address,
				OrderID: orderID,
				Reason:  events.ReasonNotReduceOnly,
			})
			e.log.Info("conditional order aborted: not reduce-only",
				zap.String("account", acct.Address.Hex()), zap.Uint64("order", orderID))
			return nil
		}
		if absBig(sizeDelta).Cmp(absBig(pos.Size)) > 0 {
			// clamp so a reduce-only fill can never flip the position
			sizeDelta = new(big.Int).Neg(pos.Size)
		}
	}

	if ord.MarginDelta.Sign() > 0 {
		e.freeCommittedMargin(acct, ord.MarginDelta)
	}
	if ord.MarginDelta.Sign() != 0 {
		if err := m.TransferMargin(acct.Address, ord.MarginDelta); err != nil {
			return err
		}
	}
	if err := m.SubmitOffchainDelayedOrderWithTracking(acct.Address, sizeDelta, ord.DesiredFillPrice, TrackingTag); err != nil {
		return err
	}
	if err := e.network.CancelTask(ord.TaskID); err != nil {
		return err
	}

	keeperFee, feeToken := e.network.FeeDetails()
	if feeToken == collateral.NativeToken {
		err = e.native.NativeTransfer(acct.Address, e.network.Collector(), keeperFee)
	} else {
		err = e.bank.Transfer(acct.Address, e.network.Collector(), keeperFee)
	}
	if err != nil {
		return fmt.Errorf("keeper fee: %w", err)
	}

	protocolFee, err := e.fees.Fee(ord.MarketKey, sizeDelta, e.fees.ConditionalOrderBps(ord.OrderType))
	if err != nil {
		return err
	}
	if err := e.imposeFee(acct, protocolFee); err != nil {
		return err
	}

	e.emit(events.ConditionalOrderFilled{
		Account:     acct.Address,
		OrderID:     orderID,
		FillPrice:   price,
		KeeperFee:   keeperFee,
		ProtocolFee: protocolFee,
	})
	e.log.Info("conditional order filled",
		zap.String("account", acct.Address.Hex()),
		zap.Uint64("order", orderID),
		zap.String("size_delta", sizeDelta.String()),
		zap.String("fill_price", price.String()))
	return nil
}
