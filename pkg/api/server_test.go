package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/perpkit/smartmargin/params"
	"github.com/perpkit/smartmargin/pkg/account"
	"github.com/perpkit/smartmargin/pkg/api"
	"github.com/perpkit/smartmargin/pkg/collateral"
	"github.com/perpkit/smartmargin/pkg/command"
	smcrypto "github.com/perpkit/smartmargin/pkg/crypto"
	"github.com/perpkit/smartmargin/pkg/events"
	"github.com/perpkit/smartmargin/pkg/fees"
	"github.com/perpkit/smartmargin/pkg/keeper"
	"github.com/perpkit/smartmargin/pkg/registry"
	"github.com/perpkit/smartmargin/pkg/venue"
)

type harness struct {
	srv    *httptest.Server
	bank   *collateral.Bank
	engine *account.Engine
	signer *smcrypto.BatchSigner
	key    *smcrypto.Signer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := params.Default()

	bank := collateral.NewBank()
	markets := venue.NewSimRegistry()
	require.NoError(t, markets.Register(venue.NewSimMarket("sETH-PERP", "sETH", bank,
		new(big.Int).Mul(big.NewInt(2_000), big.NewInt(1e18)))))

	network := keeper.NewLocalNetwork(cfg.Keeper, zap.NewNop())
	factory := registry.NewFactory(false)
	engine, err := account.NewEngine(account.Deps{
		Settings: cfg.Protocol,
		Bank:     bank,
		Native:   bank,
		Markets:  markets,
		Fees:     fees.NewCalculator(cfg.Protocol, markets),
		Network:  network,
		Registry: factory,
		Emitter:  events.NewRecorder(),
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	key, err := smcrypto.GenerateKey()
	require.NoError(t, err)
	batchSigner := smcrypto.NewBatchSigner(smcrypto.DefaultDomain(cfg.Node.ChainID))

	server := api.NewServer(engine, factory, batchSigner, api.NewHub(zap.NewNop()), zap.NewNop())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &harness{srv: ts, bank: bank, engine: engine, signer: batchSigner, key: key}
}

func (h *harness) getJSON(t *testing.T, path string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func (h *harness) postJSON(t *testing.T, path string, body any, wantStatus int, out any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(h.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	var body map[string]any
	h.getJSON(t, "/health", http.StatusOK, &body)
	require.Equal(t, "ok", body["status"])
}

func TestAccountEndpoints(t *testing.T) {
	h := newHarness(t)
	owner := h.key.Address()

	var created api.CreateAccountResponse
	h.postJSON(t, "/api/v1/accounts", api.CreateAccountRequest{Owner: owner.Hex()}, http.StatusOK, &created)
	require.NotEmpty(t, created.Account)

	var info api.AccountInfo
	h.getJSON(t, "/api/v1/accounts/"+created.Account, http.StatusOK, &info)
	require.Equal(t, owner.Hex(), info.Owner)
	require.Equal(t, "0", info.Balance)
	require.Zero(t, info.OpenOrders)

	var accounts []string
	h.getJSON(t, "/api/v1/owners/"+owner.Hex()+"/accounts", http.StatusOK, &accounts)
	require.Equal(t, []string{created.Account}, accounts)

	h.getJSON(t, "/api/v1/accounts/0x1234000000000000000000000000000000000000", http.StatusNotFound, nil)
	h.getJSON(t, "/api/v1/accounts/not-an-address", http.StatusBadRequest, nil)
	h.postJSON(t, "/api/v1/accounts", api.CreateAccountRequest{Owner: "nope"}, http.StatusBadRequest, nil)
}

func TestSubmitSignedBatch(t *testing.T) {
	h := newHarness(t)
	owner := h.key.Address()

	addr, err := h.engine.CreateAccount(owner)
	require.NoError(t, err)
	h.bank.Mint(owner, new(big.Int).Mul(big.NewInt(1_000), big.NewInt(1e18)))

	sb := &account.SignedBatch{
		Account: addr,
		Nonce:   1,
		Commands: command.Batch{
			command.MustMake(command.OpAccountModifyMargin, &command.AccountModifyMargin{
				Amount: command.NewBigInt(new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))),
			}),
		},
	}
	envelope, err := sb.Envelope()
	require.NoError(t, err)
	sb.Signature, err = h.signer.SignBatch(h.key, envelope)
	require.NoError(t, err)

	h.postJSON(t, "/api/v1/batches", sb, http.StatusOK, nil)

	var info api.AccountInfo
	h.getJSON(t, fmt.Sprintf("/api/v1/accounts/%s", addr.Hex()), http.StatusOK, &info)
	require.Equal(t, "100000000000000000000", info.Balance)
	require.Equal(t, uint64(1), info.Nonce)

	// replay bounces with 401
	h.postJSON(t, "/api/v1/batches", sb, http.StatusUnauthorized, nil)
}

func TestOrderEndpoints(t *testing.T) {
	h := newHarness(t)
	owner := h.key.Address()

	addr, err := h.engine.CreateAccount(owner)
	require.NoError(t, err)
	h.bank.Mint(owner, new(big.Int).Mul(big.NewInt(1_000), big.NewInt(1e18)))

	wei := func(units int64) *command.BigInt {
		return command.NewBigInt(new(big.Int).Mul(big.NewInt(units), big.NewInt(1e18)))
	}
	batch := command.Batch{
		command.MustMake(command.OpAccountModifyMargin, &command.AccountModifyMargin{Amount: wei(500)}),
		command.MustMake(command.OpPlaceConditionalOrder, &command.PlaceConditionalOrder{
			MarketKey:        "sETH-PERP",
			MarginDelta:      wei(100),
			SizeDelta:        wei(1),
			TargetPrice:      wei(1_900),
			OrderType:        command.Limit,
			DesiredFillPrice: wei(1_950),
		}),
	}
	require.NoError(t, h.engine.Execute(addr, owner, batch))

	var orders []api.OrderInfo
	h.getJSON(t, "/api/v1/accounts/"+addr.Hex()+"/orders", http.StatusOK, &orders)
	require.Len(t, orders, 1)
	require.Equal(t, "sETH-PERP", orders[0].MarketKey)
	require.Equal(t, "limit", orders[0].OrderType)

	// price 2000 > target 1900: a limit long is not yet executable
	var check api.CheckResult
	h.getJSON(t, "/api/v1/accounts/"+addr.Hex()+"/orders/0/check", http.StatusOK, &check)
	require.False(t, check.Valid)

	h.getJSON(t, "/api/v1/accounts/"+addr.Hex()+"/orders/9/check", http.StatusNotFound, nil)
	h.getJSON(t, "/api/v1/accounts/"+addr.Hex()+"/orders/abc/check", http.StatusBadRequest, nil)
}
