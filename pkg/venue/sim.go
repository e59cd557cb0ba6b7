package venue

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/perpkit/smartmargin/pkg/collateral"
)

// SimRegistry manages sim markets in a thread-safe manner.
type SimRegistry struct {
	mu      sync.RWMutex
	markets map[string]*SimMarket
}

func NewSimRegistry() *SimRegistry {
	return &SimRegistry{markets: make(map[string]*SimMarket)}
}

func (r *SimRegistry) Register(m *SimMarket) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markets[m.key]; exists {
		return fmt.Errorf("market %s already registered", m.key)
	}
	r.markets[m.key] = m
	return nil
}

func (r *SimRegistry) MarketByKey(key string) (Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, exists := r.markets[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, key)
	}
	return m, nil
}

// SimMarket is an in-memory perp market. Orders fill at the current asset
// price, bounded by the caller's desired fill price. Margin moves against
// the collateral bank so account balances stay consistent with the ledger
// the execution core sees.
type SimMarket struct {
	mu        sync.Mutex
	key       string
	baseAsset string
	addr      common.Address
	bank      collateral.Token

	price        *big.Int
	priceInvalid bool

	positions map[common.Address]*Position
	margins   map[common.Address]*big.Int
	delayed   map[common.Address]*DelayedOrder
	lastTrack map[common.Address]string
}

func NewSimMarket(key, baseAsset string, bank collateral.Token, initialPrice *big.Int) *SimMarket {
	return &SimMarket{
		key:       key,
		baseAsset: baseAsset,
		addr:      common.BytesToAddress(crypto.Keccak256([]byte("sim-market:" + key))[12:]),
		bank:      bank,
		price:     new(big.Int).Set(initialPrice),
		positions: make(map[common.Address]*Position),
		margins:   make(map[common.Address]*big.Int),
		delayed:   make(map[common.Address]*DelayedOrder),
		lastTrack: make(map[common.Address]string),
	}
}

func (m *SimMarket) MarketKey() string      { return m.key }
func (m *SimMarket) BaseAsset() string      { return m.baseAsset }
func (m *SimMarket) Address() common.Address { return m.addr }

// SetPrice updates the oracle price (test control surface).
func (m *SimMarket) SetPrice(price *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = new(big.Int).Set(price)
}

// SetPriceInvalid marks the quote stale (test control surface).
func (m *SimMarket) SetPriceInvalid(invalid bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceInvalid = invalid
}

func (m *SimMarket) AssetPrice() (*big.Int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.price), m.priceInvalid
}

func (m *SimMarket) TransferMargin(account common.Address, delta *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	margin := m.marginLocked(account)
	switch delta.Sign() {
	case 0:
		return nil
	case 1:
		if err := m.bank.Transfer(account, m.addr, delta); err != nil {
			return err
		}
		m.margins[account] = new(big.Int).Add(margin, delta)
	default:
		out := new(big.Int).Neg(delta)
		if margin.Cmp(out) < 0 {
			return fmt.Errorf("%w: have %s, want %s", ErrInsufficientMargin, margin, out)
		}
		if err := m.bank.Transfer(m.addr, account, out); err != nil {
			return err
		}
		m.margins[account] = new(big.Int).Sub(margin, out)
	}
	return nil
}

func (m *SimMarket) WithdrawAllMargin(account common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos := m.positionLocked(account); pos.Size.Sign() != 0 {
		return fmt.Errorf("cannot withdraw all margin: %w", ErrNoPosition)
	}
	margin := m.marginLocked(account)
	if margin.Sign() == 0 {
		return nil
	}
	if err := m.bank.Transfer(m.addr, account, margin); err != nil {
		return err
	}
	m.margins[account] = big.NewInt(0)
	return nil
}

func (m *SimMarket) ModifyPositionWithTracking(account common.Address, sizeDelta, desiredFillPrice *big.Int, tracking string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.fillPriceLocked(sizeDelta, desiredFillPrice); err != nil {
		return err
	}
	pos := m.positionLocked(account)
	pos.Size = new(big.Int).Add(pos.Size, sizeDelta)
	m.positions[account] = pos
	m.lastTrack[account] = tracking
	return nil
}

func (m *SimMarket) ClosePositionWithTracking(account common.Address, desiredFillPrice *big.Int, tracking string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.positionLocked(account)
	if pos.Size.Sign() == 0 {
		return ErrNoPosition
	}
	closeDelta := new(big.Int).Neg(pos.Size)
	if _, err := m.fillPriceLocked(closeDelta, desiredFillPrice); err != nil {
		return err
	}
	pos.Size = big.NewInt(0)
	m.positions[account] = pos
	m.lastTrack[account] = tracking
	return nil
}

func (m *SimMarket) SubmitDelayedOrderWithTracking(account common.Address, sizeDelta *big.Int, desiredTimeDelta time.Duration, desiredFillPrice *big.Int, tracking string) error {
	return m.submitDelayed(account, sizeDelta, desiredTimeDelta, desiredFillPrice, false, tracking)
}

func (m *SimMarket) SubmitOffchainDelayedOrderWithTracking(account common.Address, sizeDelta, desiredFillPrice *big.Int, tracking string) error {
	return m.submitDelayed(account, sizeDelta, 0, desiredFillPrice, true, tracking)
}

func (m *SimMarket) SubmitCloseDelayedOrderWithTracking(account common.Address, desiredTimeDelta time.Duration, desiredFillPrice *big.Int, tracking string) error {
	m.mu.Lock()
	pos := m.positionLocked(account)
	m.mu.Unlock()
	if pos.Size.Sign() == 0 {
		return ErrNoPosition
	}
	return m.submitDelayed(account, new(big.Int).Neg(pos.Size), desiredTimeDelta, desiredFillPrice, false, tracking)
}

func (m *SimMarket) SubmitCloseOffchainDelayedOrderWithTracking(account common.Address, desiredFillPrice *big.Int, tracking string) error {
	m.mu.Lock()
	pos := m.positionLocked(account)
	m.mu.Unlock()
	if pos.Size.Sign() == 0 {
		return ErrNoPosition
	}
	return m.submitDelayed(account, new(big.Int).Neg(pos.Size), 0, desiredFillPrice, true, tracking)
}

func (m *SimMarket) submitDelayed(account common.Address, sizeDelta *big.Int, desiredTimeDelta time.Duration, desiredFillPrice *big.Int, offchain bool, tracking string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.priceInvalid {
		return ErrInvalidPrice
	}
	if _, exists := m.delayed[account]; exists {
		return ErrPendingOrder
	}
	m.delayed[account] = &DelayedOrder{
		SizeDelta:        new(big.Int).Set(sizeDelta),
		DesiredFillPrice: new(big.Int).Set(desiredFillPrice),
		DesiredTimeDelta: desiredTimeDelta,
		Offchain:         offchain,
		TrackingTag:      tracking,
	}
	return nil
}

func (m *SimMarket) CancelDelayedOrder(account common.Address) error {
	return m.cancelDelayed(account, false)
}

func (m *SimMarket) CancelOffchainDelayedOrder(account common.Address) error {
	return m.cancelDelayed(account, true)
}

func (m *SimMarket) cancelDelayed(account common.Address, offchain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, exists := m.delayed[account]
	if !exists || ord.Offchain != offchain {
		return ErrNoPendingOrder
	}
	delete(m.delayed, account)
	return nil
}

// ExecuteDelayedOrder applies the pending delayed order at the current
// price (test/dev surface standing in for the venue's own keeper flow).
func (m *SimMarket) ExecuteDelayedOrder(account common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, exists := m.delayed[account]
	if !exists {
		return ErrNoPendingOrder
	}
	if _, err := m.fillPriceLocked(ord.SizeDelta, ord.DesiredFillPrice); err != nil {
		return err
	}
	pos := m.positionLocked(account)
	pos.Size = new(big.Int).Add(pos.Size, ord.SizeDelta)
	m.positions[account] = pos
	m.lastTrack[account] = ord.TrackingTag
	delete(m.delayed, account)
	return nil
}

func (m *SimMarket) Position(account common.Address) Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := m.positionLocked(account)
	return Position{Size: new(big.Int).Set(pos.Size), Margin: new(big.Int).Set(pos.Margin)}
}

func (m *SimMarket) DelayedOrder(account common.Address) (DelayedOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, exists := m.delayed[account]
	if !exists {
		return DelayedOrder{}, false
	}
	out := *ord
	out.SizeDelta = new(big.Int).Set(ord.SizeDelta)
	out.DesiredFillPrice = new(big.Int).Set(ord.DesiredFillPrice)
	return out, true
}

// LastTrackingTag returns the tag recorded with the account's latest fill.
func (m *SimMarket) LastTrackingTag(account common.Address) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTrack[account]
}

func (m *SimMarket) positionLocked(account common.Address) *Position {
	pos, exists := m.positions[account]
	if !exists {
		pos = &Position{Size: big.NewInt(0), Margin: big.NewInt(0)}
		m.positions[account] = pos
	}
	pos.Margin = m.marginLocked(account)
	return pos
}

func (m *SimMarket) marginLocked(account common.Address) *big.Int {
	if margin, exists := m.margins[account]; exists {
		return margin
	}
	return big.NewInt(0)
}

// fillPriceLocked enforces the slippage bound: a buy must not fill above the
// desired price, a sell must not fill below it.
func (m *SimMarket) fillPriceLocked(sizeDelta, desiredFillPrice *big.Int) (*big.Int, error) {
	if m.priceInvalid {
		return nil, ErrInvalidPrice
	}
	if sizeDelta.Sign() > 0 && m.price.Cmp(desiredFillPrice) > 0 {
		return nil, ErrPriceImpact
	}
	if sizeDelta.Sign() < 0 && m.price.Cmp(desiredFillPrice) < 0 {
		return nil, ErrPriceImpact
	}
	return new(big.Int).Set(m.price), nil
}
