package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/perpkit/smartmargin/params"
	"github.com/perpkit/smartmargin/pkg/account"
	"github.com/perpkit/smartmargin/pkg/api"
	"github.com/perpkit/smartmargin/pkg/collateral"
	smcrypto "github.com/perpkit/smartmargin/pkg/crypto"
	"github.com/perpkit/smartmargin/pkg/events"
	"github.com/perpkit/smartmargin/pkg/fees"
	"github.com/perpkit/smartmargin/pkg/keeper"
	"github.com/perpkit/smartmargin/pkg/registry"
	"github.com/perpkit/smartmargin/pkg/storage"
	"github.com/perpkit/smartmargin/pkg/util"
	"github.com/perpkit/smartmargin/pkg/venue"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := newLogger(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		logger.Fatal("data dir", zap.Error(err))
	}

	// ---- Collateral + venue ----
	bank := collateral.NewBank()
	markets := venue.NewSimRegistry()
	for _, m := range []struct {
		key, base string
		price     *big.Int
	}{
		{"sETH-PERP", "sETH", toWei(3000)},
		{"sBTC-PERP", "sBTC", toWei(60000)},
	} {
		mkt := venue.NewSimMarket(m.key, m.base, bank, m.price)
		if err := markets.Register(mkt); err != nil {
			logger.Fatal("register market", zap.String("market", m.key), zap.Error(err))
		}
		logger.Info("market registered",
			zap.String("market", m.key), zap.String("price", m.price.String()))
	}

	// ---- Storage ----
	store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "accounts"))
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer store.Close()

	// ---- Keeper automation ----
	network := keeper.NewLocalNetwork(cfg.Keeper, logger)

	// ---- Engine ----
	factory := registry.NewFactory(cfg.Protocol.SingleAccountPerOwner)
	hub := api.NewHub(logger)
	engine, err := account.NewEngine(account.Deps{
		Settings: cfg.Protocol,
		Bank:     bank,
		Native:   bank,
		Markets:  markets,
		Fees:     fees.NewCalculator(cfg.Protocol, markets),
		Network:  network,
		Registry: factory,
		Emitter:  events.Tee{events.NewLogEmitter(logger), hub},
		Store:    store,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("engine", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go network.Run(ctx)

	// ---- API ----
	signer := smcrypto.NewBatchSigner(smcrypto.DefaultDomain(cfg.Node.ChainID))
	server := api.NewServer(engine, factory, signer, hub, logger)
	go func() {
		if err := server.Start(cfg.Node.APIAddr); err != nil {
			logger.Fatal("api server", zap.Error(err))
		}
	}()

	logger.Info("accountd started",
		zap.String("api", cfg.Node.APIAddr),
		zap.String("data", cfg.Node.DataDir),
		zap.String("chain_id", cfg.Node.ChainID.String()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	cancel()
}

func newLogger(logFile string) (*zap.Logger, error) {
	if logFile != "" {
		return util.NewLoggerWithFile(logFile)
	}
	return util.NewLogger()
}

func toWei(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1e18))
}
