package collateral

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the sentinel address conventionally used to mean "the
// chain-native asset" wherever a fee token address is expected.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Token is the margin-asset surface the execution core consumes. Any
// non-success is reported as an error; there are no boolean returns.
type Token interface {
	BalanceOf(addr common.Address) *big.Int
	// Transfer moves amount from one holder to another.
	Transfer(from, to common.Address, amount *big.Int) error
	// TransferFrom moves amount from `from` to `to` on behalf of `spender`.
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
}

// NativeLedger tracks chain-native balances (the ETH analogue), used for
// account ETH withdrawals and native keeper-fee settlement.
type NativeLedger interface {
	NativeBalanceOf(addr common.Address) *big.Int
	NativeTransfer(from, to common.Address, amount *big.Int) error
}
