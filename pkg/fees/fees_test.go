package fees_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/perpkit/smartmargin/params"
	"github.com/perpkit/smartmargin/pkg/collateral"
	"github.com/perpkit/smartmargin/pkg/command"
	"github.com/perpkit/smartmargin/pkg/fees"
	"github.com/perpkit/smartmargin/pkg/venue"
)

func toWei(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1e18))
}

func newCalculator(t *testing.T, priceUnits int64) (*fees.Calculator, *venue.SimMarket) {
	t.Helper()
	cfg := params.Default()
	markets := venue.NewSimRegistry()
	m := venue.NewSimMarket("sETH-PERP", "sETH", collateral.NewBank(), toWei(priceUnits))
	require.NoError(t, markets.Register(m))
	return fees.NewCalculator(cfg.Protocol, markets), m
}

func TestFee(t *testing.T) {
	calc, _ := newCalculator(t, 2_000)

	// 1 base unit at 5 bps and a 2000 price: 0.0005 * 2000 = 1
	fee, err := calc.Fee("sETH-PERP", toWei(1), 0)
	require.NoError(t, err)
	require.Zero(t, toWei(1).Cmp(fee), "got %s", fee)

	// sign of the size never matters
	negFee, err := calc.Fee("sETH-PERP", new(big.Int).Neg(toWei(1)), 0)
	require.NoError(t, err)
	require.Zero(t, fee.Cmp(negFee))

	// conditional-order surcharge stacks on the base rate
	withExtra, err := calc.Fee("sETH-PERP", toWei(1), 5)
	require.NoError(t, err)
	require.Zero(t, toWei(2).Cmp(withExtra), "got %s", withExtra)

	// zero size, zero fee
	zero, err := calc.Fee("sETH-PERP", big.NewInt(0), 10)
	require.NoError(t, err)
	require.Zero(t, zero.Sign())
}

func TestFeeFailures(t *testing.T) {
	calc, m := newCalculator(t, 2_000)

	_, err := calc.Fee("sDOGE-PERP", toWei(1), 0)
	require.ErrorIs(t, err, venue.ErrMarketNotFound)

	m.SetPriceInvalid(true)
	_, err = calc.Fee("sETH-PERP", toWei(1), 0)
	require.ErrorIs(t, err, venue.ErrInvalidPrice)
}

func TestConditionalOrderBps(t *testing.T) {
	calc, _ := newCalculator(t, 2_000)
	cfg := params.Default()

	require.Equal(t, cfg.Protocol.LimitOrderFeeBps, calc.ConditionalOrderBps(command.Limit))
	require.Equal(t, cfg.Protocol.StopOrderFeeBps, calc.ConditionalOrderBps(command.Stop))
}
