package account_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/perpkit/smartmargin/pkg/account"
	"github.com/perpkit/smartmargin/pkg/command"
	"github.com/perpkit/smartmargin/pkg/events"
	"github.com/perpkit/smartmargin/pkg/venue"
)

func placeOrder(orderType command.ConditionalOrderType, marginUnits, sizeUnits, targetUnits, desiredUnits int64, reduceOnly bool) command.Command {
	return command.MustMake(command.OpPlaceConditionalOrder, &command.PlaceConditionalOrder{
		MarketKey:        ethMarket,
		MarginDelta:      command.NewBigInt(toWei(marginUnits)),
		SizeDelta:        command.NewBigInt(toWei(sizeUnits)),
		TargetPrice:      command.NewBigInt(toWei(targetUnits)),
		OrderType:        orderType,
		DesiredFillPrice: command.NewBigInt(toWei(desiredUnits)),
		ReduceOnly:       reduceOnly,
	})
}

// openLong opens a position through an atomic order so conditional-order
// tests can exercise reduce-only semantics.
func (f *fixture) openLong(t *testing.T, acct common.Address, caller common.Address, sizeUnits int64) {
	t.Helper()
	f.execute(t, acct, caller, command.MustMake(command.OpPerpsMarketSubmitAtomicOrder, &command.PerpsMarketSubmitAtomicOrder{
		MarketKey:        ethMarket,
		SizeDelta:        command.NewBigInt(toWei(sizeUnits)),
		DesiredFillPrice: command.NewBigInt(toWei(3_000)),
	}))
}

func TestPlaceConditionalOrder(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	f.execute(t, acct, alice, deposit(500), placeLimitLong(100, 1, 1900, 1950))

	committed, err := f.engine.CommittedMargin(acct)
	require.NoError(t, err)
	requireWei(t, toWei(100), committed)
	free, err := f.engine.FreeMargin(acct)
	require.NoError(t, err)
	requireWei(t, toWei(400), free)

	ord, err := f.engine.Order(acct, 0)
	require.NoError(t, err)
	require.Equal(t, ethMarket, ord.MarketKey)
	require.Equal(t, command.Limit, ord.OrderType)
	requireWei(t, toWei(1), ord.SizeDelta)

	require.Equal(t, 1, f.network.TaskCount())
	require.Equal(t, 1, f.rec.Count("conditional_order_placed"))
}

func TestPlaceConditionalOrderRejections(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	f.execute(t, acct, alice, deposit(50))

	// more margin than the account holds
	err := f.engine.Execute(acct, alice, command.Batch{placeLimitLong(100, 1, 1900, 1950)})
	require.ErrorIs(t, err, account.ErrInsufficientFreeMargin)

	// unknown market
	err = f.engine.Execute(acct, alice, command.Batch{
		command.MustMake(command.OpPlaceConditionalOrder, &command.PlaceConditionalOrder{
			MarketKey:        "sDOGE-PERP",
			MarginDelta:      command.NewBigInt(toWei(10)),
			SizeDelta:        command.NewBigInt(toWei(1)),
			TargetPrice:      command.NewBigInt(toWei(1)),
			OrderType:        command.Limit,
			DesiredFillPrice: command.NewBigInt(toWei(1)),
		}),
	})
	require.ErrorIs(t, err, venue.ErrMarketNotFound)
	require.Zero(t, f.network.TaskCount())
}

func TestCancelConditionalOrder(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	f.execute(t, acct, alice, deposit(500), placeLimitLong(100, 1, 1900, 1950))

	f.execute(t, acct, alice, command.MustMake(command.OpCancelConditionalOrder, &command.CancelConditionalOrder{OrderID: 0}))

	committed, err := f.engine.CommittedMargin(acct)
	require.NoError(t, err)
	requireWei(t, big.NewInt(0), committed)
	_, err = f.engine.Order(acct, 0)
	require.ErrorIs(t, err, account.ErrOrderNotFound)
	require.Zero(t, f.network.TaskCount())

	ev := f.rec.Last("conditional_order_cancelled")
	require.NotNil(t, ev)
	require.Equal(t, events.ReasonUser, ev.(events.ConditionalOrderCancelled).Reason)

	// cancelling again is a plain not-found failure
	err = f.engine.Execute(acct, alice, command.Batch{
		command.MustMake(command.OpCancelConditionalOrder, &command.CancelConditionalOrder{OrderID: 0}),
	})
	require.ErrorIs(t, err, account.ErrOrderNotFound)
}

func TestCheckerScenarios(t *testing.T) {
	cases := []struct {
		name      string
		orderType command.ConditionalOrderType
		sizeUnits int64
		price     int64
		valid     bool
	}{
		{"limit long below target", command.Limit, 1, 2_000, true},
		{"limit long above target", command.Limit, 1, 4_000, false},
		{"limit short above target", command.Limit, -1, 4_000, true},
		{"limit short below target", command.Limit, -1, 2_000, false},
		{"stop long above target", command.Stop, 1, 4_000, true},
		{"stop long below target", command.Stop, 1, 2_000, false},
		{"stop short below target", command.Stop, -1, 2_000, true},
		{"stop short above target", command.Stop, -1, 4_000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			acct := f.newAccount(t, alice)
			f.execute(t, acct, alice,
				deposit(500),
				placeOrder(tc.orderType, 100, tc.sizeUnits, 3_000, 3_000, false))

			f.eth.SetPrice(toWei(tc.price))
			valid, err := f.engine.Checker(acct, 0)
			require.NoError(t, err)
			require.Equal(t, tc.valid, valid)
		})
	}
}

func TestCheckerInvalidPrice(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	f.execute(t, acct, alice, deposit(500), placeLimitLong(100, 1, 1900, 1950))

	f.eth.SetPriceInvalid(true)
	_, err := f.engine.Checker(acct, 0)
	require.ErrorIs(t, err, venue.ErrInvalidPrice)

	_, err = f.engine.Checker(acct, 7)
	require.ErrorIs(t, err, account.ErrOrderNotFound)
}

func TestExecuteConditionalOrderFills(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	// price 2000, limit long target 2900: executable immediately
	f.execute(t, acct, alice, deposit(1_000), placeLimitLong(100, 2, 2_900, 3_000))

	require.NoError(t, f.engine.ExecuteConditionalOrder(acct, 0))

	_, err := f.engine.Order(acct, 0)
	require.ErrorIs(t, err, account.ErrOrderNotFound)
	committed, err := f.engine.CommittedMargin(acct)
	require.NoError(t, err)
	requireWei(t, big.NewInt(0), committed)
	require.Zero(t, f.network.TaskCount())

	// margin moved to the market, protocol fee left to the treasury:
	// 2 size * (5+5) bps * 2000 price = 4
	balance := f.bank.BalanceOf(acct)
	requireWei(t, toWei(1_000-100-4), balance)
	requireWei(t, toWei(4), f.bank.BalanceOf(f.cfg.Protocol.Treasury))

	// keeper fee settled in native
	requireWei(t, f.cfg.Keeper.ExecutionFee, f.bank.NativeBalanceOf(f.cfg.Keeper.Collector))

	// the trade landed at the venue as a tracked offchain delayed order
	delayed, exists := f.eth.DelayedOrder(acct)
	require.True(t, exists)
	requireWei(t, toWei(2), delayed.SizeDelta)
	require.True(t, delayed.Offchain)
	require.Equal(t, account.TrackingTag, delayed.TrackingTag)

	ev := f.rec.Last("conditional_order_filled")
	require.NotNil(t, ev)
	fill := ev.(events.ConditionalOrderFilled)
	requireWei(t, toWei(2_000), fill.FillPrice)
	requireWei(t, toWei(4), fill.ProtocolFee)
}

func TestExecuteConditionalOrderNotReady(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	// limit long target 1500 with price at 2000: not executable
	f.execute(t, acct, alice, deposit(500), placeLimitLong(100, 1, 1_500, 1_550))

	err := f.engine.ExecuteConditionalOrder(acct, 0)
	require.ErrorIs(t, err, account.ErrCannotExecute)

	// nothing changed: order still pending, margin still committed
	_, err = f.engine.Order(acct, 0)
	require.NoError(t, err)
	committed, err := f.engine.CommittedMargin(acct)
	require.NoError(t, err)
	requireWei(t, toWei(100), committed)
}

func TestExecuteConditionalOrderTwice(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	f.execute(t, acct, alice, deposit(1_000), placeLimitLong(100, 1, 2_900, 3_000))

	require.NoError(t, f.engine.ExecuteConditionalOrder(acct, 0))
	err := f.engine.ExecuteConditionalOrder(acct, 0)
	require.ErrorIs(t, err, account.ErrOrderNotFound)
	require.Equal(t, 1, f.rec.Count("conditional_order_filled"))
}

func TestReduceOnlyAbortsWhenGrowingExposure(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	f.execute(t, acct, alice, deposit(1_000))
	f.openLong(t, acct, alice, 5)

	// same sign as the +5 position: would grow exposure
	f.execute(t, acct, alice, placeOrder(command.Limit, 50, 2, 2_900, 3_000, true))
	require.NoError(t, f.engine.ExecuteConditionalOrder(acct, 0))

	_, err := f.engine.Order(acct, 0)
	require.ErrorIs(t, err, account.ErrOrderNotFound)
	committed, err := f.engine.CommittedMargin(acct)
	require.NoError(t, err)
	requireWei(t, big.NewInt(0), committed)

	ev := f.rec.Last("conditional_order_cancelled")
	require.NotNil(t, ev)
	require.Equal(t, events.ReasonNotReduceOnly, ev.(events.ConditionalOrderCancelled).Reason)

	// no trade reached the venue and the automation task was left to the
	// network to retire
	_, exists := f.eth.DelayedOrder(acct)
	require.False(t, exists)
	require.Equal(t, 1, f.network.TaskCount())
}

func TestReduceOnlyAbortsWithoutPosition(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	f.execute(t, acct, alice, deposit(1_000), placeOrder(command.Limit, 50, -2, 1_900, 1_850, true))

	f.eth.SetPrice(toWei(1_900))
	require.NoError(t, f.engine.ExecuteConditionalOrder(acct, 0))

	ev := f.rec.Last("conditional_order_cancelled")
	require.NotNil(t, ev)
	require.Equal(t, events.ReasonNotReduceOnly, ev.(events.ConditionalOrderCancelled).Reason)
	_, exists := f.eth.DelayedOrder(acct)
	require.False(t, exists)
}

func TestReduceOnlyClampsOversizedOrder(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	f.execute(t, acct, alice, deposit(1_000))
	f.openLong(t, acct, alice, 5)

	// -10 against a +5 position: fills clamped to -5, never flips short
	f.execute(t, acct, alice, placeOrder(command.Limit, 0, -10, 1_900, 1_850, true))
	f.eth.SetPrice(toWei(1_900))
	require.NoError(t, f.engine.ExecuteConditionalOrder(acct, 0))

	delayed, exists := f.eth.DelayedOrder(acct)
	require.True(t, exists)
	requireWei(t, new(big.Int).Neg(toWei(5)), delayed.SizeDelta)
}

func TestKeeperDrivenExecution(t *testing.T) {
	f := newFixture(t)
	acct := f.newAccount(t, alice)
	// not executable yet: limit long target 1500, price 2000
	f.execute(t, acct, alice, deposit(1_000), placeLimitLong(100, 1, 1_500, 1_550))

	f.network.Poll()
	_, err := f.engine.Order(acct, 0)
	require.NoError(t, err)

	// price crosses the target, the next poll fills
	f.eth.SetPrice(toWei(1_400))
	f.network.Poll()

	_, err = f.engine.Order(acct, 0)
	require.ErrorIs(t, err, account.ErrOrderNotFound)
	require.Zero(t, f.network.TaskCount())
	require.Equal(t, 1, f.rec.Count("conditional_order_filled"))
}
