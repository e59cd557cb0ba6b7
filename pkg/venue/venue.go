// Package venue defines the surface of the external derivatives venue the
// execution core trades against. The core only ever sees these interfaces;
// SimMarket/SimRegistry provide an in-memory venue for the node binary and
// the test suites.
package venue

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrMarketNotFound  = errors.New("market not found")
	ErrInvalidPrice    = errors.New("invalid asset price")
	ErrNoPosition      = errors.New("no open position")
	ErrPendingOrder    = errors.New("pending delayed order exists")
	ErrNoPendingOrder  = errors.New("no pending delayed order")
	ErrPriceImpact     = errors.New("fill price exceeds desired fill price")
	ErrInsufficientMargin = errors.New("insufficient market margin")
)

// Position is the venue's view of an account's perp position in one market.
// Size is signed (+long/-short); both values are 18-decimal fixed point.
type Position struct {
	Size   *big.Int `json:"size"`
	Margin *big.Int `json:"margin"`
}

// DelayedOrder is a pending delayed or off-chain delayed order at the venue.
type DelayedOrder struct {
	SizeDelta        *big.Int      `json:"size_delta"`
	DesiredFillPrice *big.Int      `json:"desired_fill_price"`
	DesiredTimeDelta time.Duration `json:"desired_time_delta"`
	Offchain         bool          `json:"offchain"`
	TrackingTag      string        `json:"tracking_tag"`
}

// Market is one perp market at the venue.
type Market interface {
	MarketKey() string
	BaseAsset() string
	// AssetPrice returns the current base-asset price in 18-decimal fixed
	// point and whether the quote is invalid/stale.
	AssetPrice() (price *big.Int, invalid bool)

	// TransferMargin moves collateral between the account and its margin
	// balance at this market; delta is signed.
	TransferMargin(account common.Address, delta *big.Int) error
	// WithdrawAllMargin returns all market margin to the account. Fails
	// while a position is open.
	WithdrawAllMargin(account common.Address) error

	ModifyPositionWithTracking(account common.Address, sizeDelta, desiredFillPrice *big.Int, tracking string) error
	ClosePositionWithTracking(account common.Address, desiredFillPrice *big.Int, tracking string) error

	SubmitDelayedOrderWithTracking(account common.Address, sizeDelta *big.Int, desiredTimeDelta time.Duration, desiredFillPrice *big.Int, tracking string) error
	SubmitOffchainDelayedOrderWithTracking(account common.Address, sizeDelta, desiredFillPrice *big.Int, tracking string) error
	SubmitCloseDelayedOrderWithTracking(account common.Address, desiredTimeDelta time.Duration, desiredFillPrice *big.Int, tracking string) error
	SubmitCloseOffchainDelayedOrderWithTracking(account common.Address, desiredFillPrice *big.Int, tracking string) error
	CancelDelayedOrder(account common.Address) error
	CancelOffchainDelayedOrder(account common.Address) error

	Position(account common.Address) Position
	DelayedOrder(account common.Address) (DelayedOrder, bool)
}

// Registry resolves an opaque market key to its market.
type Registry interface {
	MarketByKey(key string) (Market, error)
}
