package params

import (
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Protocol holds venue-wide protocol settings. These mirror the settings
// surface the execution core consumes: fee rates, treasury, and the global
// execution kill-switch. The struct is injected at construction; nothing in
// the core reads ambient global state.
type Protocol struct {
	// Fee rates in basis points (1 bps = 0.01%)
	TradeFeeBps      uint64
	LimitOrderFeeBps uint64
	StopOrderFeeBps  uint64

	// Treasury receives all imposed protocol fees
	Treasury common.Address

	// AccountExecutionEnabled gates every mutating account entry point
	AccountExecutionEnabled bool

	// SingleAccountPerOwner rejects account creation for an owner that
	// already has one (strict 1:1 variant; default is many-per-owner)
	SingleAccountPerOwner bool
}

// Keeper holds automation-network settings for the in-process keeper.
type Keeper struct {
	PollInterval time.Duration
	// Flat execution fee quoted by the network, in native-asset wei
	ExecutionFee *big.Int
	// FeeToken the network wants to be paid in; the native sentinel
	// address means the fee is settled as a native transfer
	FeeToken common.Address
	// Collector receives keeper fee payments
	Collector common.Address
}

type Node struct {
	DataDir    string
	APIAddr    string
	ChainID    *big.Int // EIP-712 domain chain id for signed batches
	LogFile    string   // optional file tee for logs
}

type Config struct {
	Protocol Protocol
	Keeper   Keeper
	Node     Node
}

// TradeFee returns the base trade fee rate in bps.
func (p Protocol) TradeFee() uint64 { return p.TradeFeeBps }

// LimitOrderFee returns the limit conditional-order fee rate in bps.
func (p Protocol) LimitOrderFee() uint64 { return p.LimitOrderFeeBps }

// StopOrderFee returns the stop conditional-order fee rate in bps.
func (p Protocol) StopOrderFee() uint64 { return p.StopOrderFeeBps }

func Default() Config {
	return Config{
		Protocol: Protocol{
			TradeFeeBps:             5, // 0.05%
			LimitOrderFeeBps:        5,
			StopOrderFeeBps:         10,
			Treasury:                common.HexToAddress("0x00000000000000000000000000000000000facee"),
			AccountExecutionEnabled: true,
			SingleAccountPerOwner:   false,
		},
		Keeper: Keeper{
			PollInterval: 500 * time.Millisecond,
			ExecutionFee: big.NewInt(1_000_000_000_000_000), // 0.001 native
			FeeToken:     common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"),
			Collector:    common.HexToAddress("0x000000000000000000000000000000000000beef"),
		},
		Node: Node{
			DataDir: "data",
			APIAddr: ":8080",
			ChainID: big.NewInt(1337),
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("SM_TRADE_FEE_BPS"); v != "" {
		if bps, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Protocol.TradeFeeBps = bps
		}
	}
	if v := os.Getenv("SM_LIMIT_ORDER_FEE_BPS"); v != "" {
		if bps, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Protocol.LimitOrderFeeBps = bps
		}
	}
	if v := os.Getenv("SM_STOP_ORDER_FEE_BPS"); v != "" {
		if bps, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Protocol.StopOrderFeeBps = bps
		}
	}
	if v := os.Getenv("SM_TREASURY"); v != "" {
		cfg.Protocol.Treasury = common.HexToAddress(v)
	}
	if v := os.Getenv("SM_EXECUTION_ENABLED"); v != "" {
		cfg.Protocol.AccountExecutionEnabled = v == "true"
	}
	if v := os.Getenv("SM_SINGLE_ACCOUNT_PER_OWNER"); v != "" {
		cfg.Protocol.SingleAccountPerOwner = v == "true"
	}
	if v := os.Getenv("SM_KEEPER_POLL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Keeper.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("SM_KEEPER_FEE_WEI"); v != "" {
		if fee, ok := new(big.Int).SetString(v, 10); ok {
			cfg.Keeper.ExecutionFee = fee
		}
	}
	if v := os.Getenv("SM_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("SM_API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("SM_CHAIN_ID"); v != "" {
		if id, ok := new(big.Int).SetString(v, 10); ok {
			cfg.Node.ChainID = id
		}
	}
	if v := os.Getenv("SM_LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}

	return cfg
}
