package command

import "errors"

var (
	ErrZeroSizeDelta   = errors.New("size delta cannot be zero")
	ErrZeroAmount      = errors.New("amount cannot be zero")
	ErrMissingAmount   = errors.New("missing amount")
	ErrMissingPrice    = errors.New("missing price")
	ErrMissingMarket   = errors.New("missing market key")
	ErrBadOrderType    = errors.New("unknown conditional order type")
)

type AccountModifyMargin struct {
	// Amount is signed: positive deposits into the account, negative
	// withdraws from it.
	Amount *BigInt `json:"amount"`
}

type AccountWithdrawEth struct {
	Amount *BigInt `json:"amount"`
}

type PerpsMarketModifyMargin struct {
	MarketKey string  `json:"market_key"`
	Amount    *BigInt `json:"amount"`
}

type PerpsMarketWithdrawAllMargin struct {
	MarketKey string `json:"market_key"`
}

type PerpsMarketSubmitAtomicOrder struct {
	MarketKey        string  `json:"market_key"`
	SizeDelta        *BigInt `json:"size_delta"`
	DesiredFillPrice *BigInt `json:"desired_fill_price"`
}

type PerpsMarketSubmitDelayedOrder struct {
	MarketKey          string  `json:"market_key"`
	SizeDelta          *BigInt `json:"size_delta"`
	DesiredTimeDeltaMs int64   `json:"desired_time_delta_ms"`
	DesiredFillPrice   *BigInt `json:"desired_fill_price"`
}

type PerpsMarketSubmitOffchainDelayedOrder struct {
	MarketKey        string  `json:"market_key"`
	SizeDelta        *BigInt `json:"size_delta"`
	DesiredFillPrice *BigInt `json:"desired_fill_price"`
}

type PerpsMarketClosePosition struct {
	MarketKey        string  `json:"market_key"`
	DesiredFillPrice *BigInt `json:"desired_fill_price"`
}

type PerpsMarketSubmitCloseDelayedOrder struct {
	MarketKey          string  `json:"market_key"`
	DesiredTimeDeltaMs int64   `json:"desired_time_delta_ms"`
	DesiredFillPrice   *BigInt `json:"desired_fill_price"`
}

type PerpsMarketSubmitCloseOffchainDelayedOrder struct {
	MarketKey        string  `json:"market_key"`
	DesiredFillPrice *BigInt `json:"desired_fill_price"`
}

type PerpsMarketCancelDelayedOrder struct {
	MarketKey string `json:"market_key"`
}

type PerpsMarketCancelOffchainDelayedOrder struct {
	MarketKey string `json:"market_key"`
}

type PlaceConditionalOrder struct {
	MarketKey        string               `json:"market_key"`
	MarginDelta      *BigInt              `json:"margin_delta"`
	SizeDelta        *BigInt              `json:"size_delta"`
	TargetPrice      *BigInt              `json:"target_price"`
	OrderType        ConditionalOrderType `json:"order_type"`
	DesiredFillPrice *BigInt              `json:"desired_fill_price"`
	ReduceOnly       bool                 `json:"reduce_only"`
}

type CancelConditionalOrder struct {
	OrderID uint64 `json:"order_id"`
}

func (p *AccountModifyMargin) validate() error {
	if p.Amount == nil {
		return ErrMissingAmount
	}
	if p.Amount.Int().Sign() == 0 {
		return ErrZeroAmount
	}
	return nil
}

func (p *AccountWithdrawEth) validate() error {
	if p.Amount == nil {
		return ErrMissingAmount
	}
	if p.Amount.Int().Sign() <= 0 {
		return ErrZeroAmount
	}
	return nil
}

func (p *PerpsMarketModifyMargin) validate() error {
	if p.MarketKey == "" {
		return ErrMissingMarket
	}
	if p.Amount == nil {
		return ErrMissingAmount
	}
	if p.Amount.Int().Sign() == 0 {
		return ErrZeroAmount
	}
	return nil
}

func (p *PerpsMarketWithdrawAllMargin) validate() error {
	if p.MarketKey == "" {
		return ErrMissingMarket
	}
	return nil
}

func (p *PerpsMarketSubmitAtomicOrder) validate() error {
	return validateTrade(p.MarketKey, p.SizeDelta, p.DesiredFillPrice)
}

func (p *PerpsMarketSubmitDelayedOrder) validate() error {
	return validateTrade(p.MarketKey, p.SizeDelta, p.DesiredFillPrice)
}

func (p *PerpsMarketSubmitOffchainDelayedOrder) validate() error {
	return validateTrade(p.MarketKey, p.SizeDelta, p.DesiredFillPrice)
}

func (p *PerpsMarketClosePosition) validate() error {
	return validateClose(p.MarketKey, p.DesiredFillPrice)
}

func (p *PerpsMarketSubmitCloseDelayedOrder) validate() error {
	return validateClose(p.MarketKey, p.DesiredFillPrice)
}

func (p *PerpsMarketSubmitCloseOffchainDelayedOrder) validate() error {
	return validateClose(p.MarketKey, p.DesiredFillPrice)
}

func (p *PerpsMarketCancelDelayedOrder) validate() error {
	if p.MarketKey == "" {
		return ErrMissingMarket
	}
	return nil
}

func (p *PerpsMarketCancelOffchainDelayedOrder) validate() error {
	if p.MarketKey == "" {
		return ErrMissingMarket
	}
	return nil
}

func (p *PlaceConditionalOrder) validate() error {
	if p.MarketKey == "" {
		return ErrMissingMarket
	}
	if p.SizeDelta == nil || p.MarginDelta == nil {
		return ErrMissingAmount
	}
	if p.SizeDelta.Int().Sign() == 0 {
		return ErrZeroSizeDelta
	}
	if p.TargetPrice == nil || p.DesiredFillPrice == nil {
		return ErrMissingPrice
	}
	if !p.OrderType.Valid() {
		return ErrBadOrderType
	}
	return nil
}

func (p *CancelConditionalOrder) validate() error { return nil }

func validateTrade(marketKey string, sizeDelta, desiredFillPrice *BigInt) error {
	if marketKey == "" {
		return ErrMissingMarket
	}
	if sizeDelta == nil {
		return ErrMissingAmount
	}
	if sizeDelta.Int().Sign() == 0 {
		return ErrZeroSizeDelta
	}
	if desiredFillPrice == nil {
		return ErrMissingPrice
	}
	return nil
}

func validateClose(marketKey string, desiredFillPrice *BigInt) error {
	if marketKey == "" {
		return ErrMissingMarket
	}
	if desiredFillPrice == nil {
		return ErrMissingPrice
	}
	return nil
}
