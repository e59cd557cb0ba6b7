package account

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/perpkit/smartmargin/pkg/command"
	"github.com/perpkit/smartmargin/pkg/events"
	"github.com/perpkit/smartmargin/pkg/venue"
)

// Execute runs a command batch against an account, strictly in order and
// atomically: the first failure restores the pre-batch account state and
// discards all buffered events. A later command observes state mutated by
// an earlier one within the same batch.
func (e *Engine) Execute(account, caller common.Address, batch command.Batch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutateLocked(account, func(acct *Account) error {
		for i, cmd := range batch {
			if err := e.dispatch(acct, caller, cmd); err != nil {
				return fmt.Errorf("command %d (%s): %w", i, cmd.Op, err)
			}
		}
		e.log.Debug("batch executed",
			zap.String("account", account.Hex()),
			zap.String("caller", caller.Hex()),
			zap.Int("commands", len(batch)))
		return nil
	})
}

// dispatch authorizes one command per its opcode class, decodes the typed
// payload and routes it to its handler.
func (e *Engine) dispatch(acct *Account, caller common.Address, cmd command.Command) error {
	payload, err := cmd.Decode()
	if err != nil {
		return err
	}

	switch cmd.Op.Class() {
	case command.ClassOwner:
		if !acct.IsOwner(caller) {
			return ErrUnauthorized
		}
	case command.ClassAuth:
		if !acct.IsAuth(caller) {
			return ErrUnauthorized
		}
	}

	switch p := payload.(type) {
	case *command.AccountModifyMargin:
		return e.handleAccountModifyMargin(acct, p)
	case *command.AccountWithdrawEth:
		return e.handleAccountWithdrawEth(acct, p)
	case *command.PerpsMarketModifyMargin:
		return e.handleMarketModifyMargin(acct, p)
	case *command.PerpsMarketWithdrawAllMargin:
		return e.handleMarketWithdrawAllMargin(acct, p)
	case *command.PerpsMarketSubmitAtomicOrder:
		return e.handleSubmitAtomicOrder(acct, p)
	case *command.PerpsMarketSubmitDelayedOrder:
		return e.handleSubmitDelayedOrder(acct, p)
	case *command.PerpsMarketSubmitOffchainDelayedOrder:
		return e.handleSubmitOffchainDelayedOrder(acct, p)
	case *command.PerpsMarketClosePosition:
		return e.handleClosePosition(acct, p)
	case *command.PerpsMarketSubmitCloseDelayedOrder:
		return e.handleSubmitCloseDelayedOrder(acct, p)
	case *command.PerpsMarketSubmitCloseOffchainDelayedOrder:
		return e.handleSubmitCloseOffchainDelayedOrder(acct, p)
	case *command.PerpsMarketCancelDelayedOrder:
		return e.handleCancelDelayedOrder(acct, p)
	case *command.PerpsMarketCancelOffchainDelayedOrder:
		return e.handleCancelOffchainDelayedOrder(acct, p)
	case *command.PlaceConditionalOrder:
		return e.placeConditionalOrder(acct, p)
	case *command.CancelConditionalOrder:
		return e.cancelConditionalOrder(acct, p.OrderID, events.ReasonUser)
	default:
		return &command.InvalidCommandError{Op: cmd.Op}
	}
}

func (e *Engine) handleAccountModifyMargin(acct *Account, p *command.AccountModifyMargin) error {
	amount := p.Amount.Int()
	if amount.Sign() > 0 {
		// deposit: pull collateral from the owner into the account
		if err := e.bank.TransferFrom(acct.Address, acct.Owner, acct.Address, amount); err != nil {
			return err
		}
		e.emit(events.Deposit{Account: acct.Address, Amount: new(big.Int).Set(amount)})
		return nil
	}
	withdraw := new(big.Int).Neg(amount)
	if e.freeMargin(acct).Cmp(withdraw) < 0 {
		return fmt.Errorf("withdraw %s: %w", withdraw, ErrInsufficientFreeMargin)
	}
	if err := e.bank.Transfer(acct.Address, acct.Owner, withdraw); err != nil {
		return err
	}
	e.emit(events.Withdraw{Account: acct.Address, Amount: withdraw})
	return nil
}

func (e *Engine) handleAccountWithdrawEth(acct *Account, p *command.AccountWithdrawEth) error {
	amount := p.Amount.Int()
	if err := e.native.NativeTransfer(acct.Address, acct.Owner, amount); err != nil {
		return err
	}
	e.emit(events.EthWithdraw{Account: acct.Address, Amount: new(big.Int).Set(amount)})
	return nil
}

func (e *Engine) handleMarketModifyMargin(acct *Account, p *command.PerpsMarketModifyMargin) error {
	m, err := e.markets.MarketByKey(p.MarketKey)
	if err != nil {
		return err
	}
	amount := p.Amount.Int()
	if amount.Sign() > 0 && e.freeMargin(acct).Cmp(amount) < 0 {
		return fmt.Errorf("market margin %s: %w", amount, ErrInsufficientFreeMargin)
	}
	return m.TransferMargin(acct.Address, amount)
}

func (e *Engine) handleMarketWithdrawAllMargin(acct *Account, p *command.PerpsMarketWithdrawAllMargin) error {
	m, err := e.markets.MarketByKey(p.MarketKey)
	if err != nil {
		return err
	}
	return m.WithdrawAllMargin(acct.Address)
}

func (e *Engine) handleSubmitAtomicOrder(acct *Account, p *command.PerpsMarketSubmitAtomicOrder) error {
	m, err := e.markets.MarketByKey(p.MarketKey)
	if err != nil {
		return err
	}
	if err := m.ModifyPositionWithTracking(acct.Address, p.SizeDelta.Int(), p.DesiredFillPrice.Int(), TrackingTag); err != nil {
		return err
	}
	return e.imposeTradeFee(acct, m.MarketKey(), p.SizeDelta.Int(), 0)
}

func (e *Engine) handleSubmitDelayedOrder(acct *Account, p *command.PerpsMarketSubmitDelayedOrder) error {
	m, err := e.markets.MarketByKey(p.MarketKey)
	if err != nil {
		return err
	}
	delta := time.Duration(p.DesiredTimeDeltaMs) * time.Millisecond
	if err := m.SubmitDelayedOrderWithTracking(acct.Address, p.SizeDelta.Int(), delta, p.DesiredFillPrice.Int(), TrackingTag); err != nil {
		return err
	}
	return e.imposeTradeFee(acct, m.MarketKey(), p.SizeDelta.Int(), 0)
}

func (e *Engine) handleSubmitOffchainDelayedOrder(acct *Account, p *command.PerpsMarketSubmitOffchainDelayedOrder) error {
	m, err := e.markets.MarketByKey(p.MarketKey)
	if err != nil {
		return err
	}
	if err := m.SubmitOffchainDelayedOrderWithTracking(acct.Address, p.SizeDelta.Int(), p.DesiredFillPrice.Int(), TrackingTag); err != nil {
		return err
	}
	return e.imposeTradeFee(acct, m.MarketKey(), p.SizeDelta.Int(), 0)
}

func (e *Engine) handleClosePosition(acct *Account, p *command.PerpsMarketClosePosition) error {
	m, err := e.markets.MarketByKey(p.MarketKey)
	if err != nil {
		return err
	}
	pos := m.Position(acct.Address)
	if pos.Size.Sign() == 0 {
		return venue.ErrNoPosition
	}
	if err := m.ClosePositionWithTracking(acct.Address, p.DesiredFillPrice.Int(), TrackingTag); err != nil {
		return err
	}
	return e.imposeTradeFee(acct, m.MarketKey(), pos.Size, 0)
}

func (e *Engine) handleSubmitCloseDelayedOrder(acct *Account, p *command.PerpsMarketSubmitCloseDelayedOrder) error {
	m, err := e.markets.MarketByKey(p.MarketKey)
	if err != nil {
		return err
	}
	pos := m.Position(acct.Address)
	if pos.Size.Sign() == 0 {
		return venue.ErrNoPosition
	}
	delta := time.Duration(p.DesiredTimeDeltaMs) * time.Millisecond
	if err := m.SubmitCloseDelayedOrderWithTracking(acct.Address, delta, p.DesiredFillPrice.Int(), TrackingTag); err != nil {
		return err
	}
	return e.imposeTradeFee(acct, m.MarketKey(), pos.Size, 0)
}

func (e *Engine) handleSubmitCloseOffchainDelayedOrder(acct *Account, p *command.PerpsMarketSubmitCloseOffchainDelayedOrder) error {
	m, err := e.markets.MarketByKey(p.MarketKey)
	if err != nil {
		return err
	}
	pos := m.Position(acct.Address)
	if pos.Size.Sign() == 0 {
		return venue.ErrNoPosition
	}
	if err := m.SubmitCloseOffchainDelayedOrderWithTracking(acct.Address, p.DesiredFillPrice.Int(), TrackingTag); err != nil {
		return err
	}
	return e.imposeTradeFee(acct, m.MarketKey(), pos.Size, 0)
}

func (e *Engine) handleCancelDelayedOrder(acct *Account, p *command.PerpsMarketCancelDelayedOrder) error {
	m, err := e.markets.MarketByKey(p.MarketKey)
	if err != nil {
		return err
	}
	return m.CancelDelayedOrder(acct.Address)
}

func (e *Engine) handleCancelOffchainDelayedOrder(acct *Account, p *command.PerpsMarketCancelOffchainDelayedOrder) error {
	m, err := e.markets.MarketByKey(p.MarketKey)
	if err != nil {
		return err
	}
	return m.CancelOffchainDelayedOrder(acct.Address)
}
