// Package fees computes basis-point protocol fees denominated in the margin
// asset. Imposition (the actual transfer to treasury) lives in the account
// engine, which owns the ledger.
package fees

import (
	"fmt"
	"math/big"

	"github.com/perpkit/smartmargin/params"
	"github.com/perpkit/smartmargin/pkg/command"
	"github.com/perpkit/smartmargin/pkg/venue"
)

var (
	// MaxBps is the basis-point denominator (10000 bps = 100%).
	MaxBps = big.NewInt(10_000)
	// Unit is the 18-decimal fixed-point denominator.
	Unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

type Calculator struct {
	settings params.Protocol
	markets  venue.Registry
}

func NewCalculator(settings params.Protocol, markets venue.Registry) *Calculator {
	return &Calculator{settings: settings, markets: markets}
}

// Fee computes |sizeDelta| * (tradeFeeBps + extraBps) / 10000, converted
// from base-asset units into margin-asset units at the market's current
// price. Fails when the venue reports the price invalid.
func (c *Calculator) Fee(marketKey string, sizeDelta *big.Int, extraBps uint64) (*big.Int, error) {
	m, err := c.markets.MarketByKey(marketKey)
	if err != nil {
		return nil, err
	}
	price, invalid := m.AssetPrice()
	if invalid {
		return nil, fmt.Errorf("fee for %s: %w", marketKey, venue.ErrInvalidPrice)
	}

	rate := new(big.Int).SetUint64(c.settings.TradeFee() + extraBps)
	fee := new(big.Int).Abs(sizeDelta)
	fee.Mul(fee, rate)
	fee.Div(fee, MaxBps)
	fee.Mul(fee, price)
	fee.Div(fee, Unit)
	return fee, nil
}

// ConditionalOrderBps returns the extra fee rate a conditional order of the
// given type pays on top of the base trade fee.
func (c *Calculator) ConditionalOrderBps(t command.ConditionalOrderType) uint64 {
	if t == command.Stop {
		return c.settings.StopOrderFee()
	}
	return c.settings.LimitOrderFee()
}
