package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/vault-engine/internal/auth"
	"github.com/atmx/vault-engine/internal/custody"
	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/oracle"
	"github.com/atmx/vault-engine/internal/store"
	"github.com/atmx/vault-engine/internal/trade"
	"github.com/atmx/vault-engine/internal/vault"
)

const (
	alice    = "0xalice"
	bob      = "0xbob"
	governor = "0xgov"
	keeper   = "0xkeeper"
	feeder   = "0xfeed"
)

type testEnv struct {
	t       *testing.T
	apiKey  string
	feed    *oracle.SampleFeed
	custody *custody.Ledger
	store   *store.MemoryStore
	router  http.Handler
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	env := &testEnv{
		t:      t,
		apiKey: apiKey,
		feed:   oracle.NewSampleFeed(3, 0),
		store:  store.NewMemoryStore(),
	}
	env.boot(func(*vault.Engine) (*custody.Ledger, error) { return custody.NewLedger(), nil })
	return env
}

// restart discards the engine and custody and recovers both from the store.
func (e *testEnv) restart() {
	e.t.Helper()
	e.boot(func(engine *vault.Engine) (*custody.Ledger, error) {
		return trade.Recover(context.Background(), e.store, engine)
	})
}

func (e *testEnv) boot(ledgerFor func(*vault.Engine) (*custody.Ledger, error)) {
	e.t.Helper()
	params := vault.DefaultParams()
	params.FundingRateFactor = 0
	params.StableFundingRateFactor = 0

	registry := auth.NewRegistry(governor, feeder)
	engine, err := vault.New(e.feed, registry, e.store, params)
	require.NoError(e.t, err)
	require.NoError(e.t, engine.ConfigureAssets(
		model.AssetConfig{Symbol: "BTC", Decimals: 8, IsShortable: true, MinProfitBasisPoints: 75},
		model.AssetConfig{Symbol: "USDC", Decimals: 6, IsStable: true},
	))

	ledger, err := ledgerFor(engine)
	require.NoError(e.t, err)
	svc := trade.NewService(engine, ledger, e.store, registry, e.feed, nil)
	e.custody = ledger
	e.router = svc.Routes(e.apiKey)
}

func (e *testEnv) do(method, path, caller string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(trade.CallerHeader, caller)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) price(asset string, dollars ...string) {
	e.t.Helper()
	for _, p := range dollars {
		w := e.do("POST", "/api/v1/prices", feeder, trade.PriceRequest{Asset: asset, Price: decimal.RequireFromString(p)})
		require.Equal(e.t, http.StatusAccepted, w.Code, w.Body.String())
	}
}

// openLong deposits 0.0024925 BTC and opens a 90 USD long on 0.00025 BTC
// with BTC quoted 40000/41000.
func (e *testEnv) openLong() trade.PositionView {
	e.t.Helper()
	e.price("BTC", "40000", "40000", "41000")
	w := e.do("POST", "/api/v1/pools/BTC/deposit", governor, trade.DepositRequest{Amount: decimal.RequireFromString("0.0024925")})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())

	w = e.do("POST", "/api/v1/positions/increase", alice, trade.IncreaseRequest{
		CollateralAsset: "BTC",
		IndexAsset:      "BTC",
		IsLong:          true,
		SizeDelta:       decimal.NewFromInt(90),
		CollateralIn:    decimal.RequireFromString("0.00025"),
	})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var view trade.PositionView
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &view))
	return view
}

func (e *testEnv) solvency() (bool, int) {
	e.t.Helper()
	w := e.do("GET", "/api/v1/solvency", "", nil)
	var resp struct {
		Solvent bool             `json:"solvent"`
		Assets  []custody.Report `json:"assets"`
	}
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Solvent, w.Code
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s got %s", want, got)
}

func TestIncreasePosition(t *testing.T) {
	env := newTestEnv(t, "")
	view := env.openLong()

	assert.Equal(t, alice, view.Account)
	assertDecimal(t, "90", view.Size)
	assertDecimal(t, "9.91", view.Collateral)
	assertDecimal(t, "41000", view.AveragePrice)
	assertDecimal(t, "0.00225", view.ReserveAmount)

	assertUintEq(t, "274250", env.custody.BalanceOf("BTC"))

	w := env.do("GET", "/api/v1/pools/BTC", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pool trade.PoolView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pool))
	assertDecimal(t, "0.00274031", pool.PoolAmount)
	assertDecimal(t, "0.00000219", pool.FeeReserves)
	assertDecimal(t, "80.09", pool.GuaranteedUsd)

	solvent, code := env.solvency()
	assert.True(t, solvent)
	assert.Equal(t, http.StatusOK, code)

	w = env.do("GET", "/api/v1/positions/0xalice/BTC/BTC/long", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got trade.PositionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, view.Key, got.Key)

	w = env.do("GET", "/api/v1/positions/0xalice/BTC/BTC/long/leverage", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"leverage_bps":"90817"`)

	w = env.do("GET", "/api/v1/accounts/0xalice/history", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []model.LedgerEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, model.EntryIncrease, entries[0].Kind)
}

func TestIncreasePosition_RejectedRefundsCollateral(t *testing.T) {
	env := newTestEnv(t, "")
	env.price("BTC", "40000", "40000", "41000")

	// No pool to reserve against.
	w := env.do("POST", "/api/v1/positions/increase", alice, trade.IncreaseRequest{
		CollateralAsset: "BTC",
		IndexAsset:      "BTC",
		IsLong:          true,
		SizeDelta:       decimal.NewFromInt(90),
		CollateralIn:    decimal.RequireFromString("0.00025"),
	})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.True(t, env.custody.BalanceOf("BTC").IsZero())

	w = env.do("POST", "/api/v1/positions/increase", bob, trade.IncreaseRequest{
		Account:         alice,
		CollateralAsset: "BTC",
		IndexAsset:      "BTC",
		IsLong:          true,
		SizeDelta:       decimal.NewFromInt(90),
		CollateralIn:    decimal.RequireFromString("0.00025"),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.True(t, env.custody.BalanceOf("BTC").IsZero())
}

func TestDecreasePosition_CloseKeepsCustodySolvent(t *testing.T) {
	env := newTestEnv(t, "")
	env.openLong()

	w := env.do("POST", "/api/v1/positions/decrease", alice, trade.DecreaseRequest{
		CollateralAsset: "BTC",
		IndexAsset:      "BTC",
		IsLong:          true,
		SizeDelta:       decimal.NewFromInt(90),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp trade.DecreaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Closed)
	assert.Equal(t, alice, resp.Receiver)
	assert.True(t, resp.AmountOut.IsPositive())

	paid := env.custody.Paid(alice, "BTC")
	assertDecimal(t, resp.AmountOut.String(), paid.Decimal(8))

	solvent, _ := env.solvency()
	assert.True(t, solvent)

	w = env.do("GET", "/api/v1/positions/0xalice/BTC/BTC/long/delta", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("GET", "/api/v1/accounts/0xalice/positions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestLiquidatePosition(t *testing.T) {
	env := newTestEnv(t, "")
	env.openLong()

	req := trade.LiquidateRequest{Account: alice, CollateralAsset: "BTC", IndexAsset: "BTC", IsLong: true}
	w := env.do("POST", "/api/v1/positions/liquidate", keeper, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	env.price("BTC", "37000", "37000", "37000")
	w = env.do("POST", "/api/v1/positions/liquidate", keeper, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp trade.LiquidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "liquidatable", resp.State)
	assert.Equal(t, keeper, resp.FeeReceiver)
	assertDecimal(t, "0.00013513", resp.FeeOut)
	assertUintEq(t, "13513", env.custody.Paid(keeper, "BTC"))

	solvent, _ := env.solvency()
	assert.True(t, solvent)
}

func TestGovernance(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do("POST", "/api/v1/gov/max-leverage", alice, map[string]uint64{"bps": 200000})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do("POST", "/api/v1/gov/max-leverage", governor, map[string]uint64{"bps": 200000})
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = env.do("POST", "/api/v1/gov/max-leverage", governor, map[string]uint64{"bps": 5000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("POST", "/api/v1/gov/liquidators", governor, map[string]any{"liquidator": keeper, "enabled": true})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do("GET", "/api/v1/params", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var params trade.ParamsView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &params))
	assert.Equal(t, uint64(200000), params.MaxLeverage)
	assert.Equal(t, "inclusive", params.CooldownBoundary)
	assert.Len(t, params.Assets, 2)

	w = env.do("POST", "/api/v1/gov/governor", governor, map[string]string{"governor": "0xnewgov"})
	require.Equal(t, http.StatusNoContent, w.Code)
	w = env.do("POST", "/api/v1/gov/max-leverage", governor, map[string]uint64{"bps": 300000})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do("POST", "/api/v1/gov/max-leverage", "0xnewgov", map[string]uint64{"bps": 300000})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPushPrice_RequiresPriceKeeper(t *testing.T) {
	env := newTestEnv(t, "")
	env.openLong()

	delta := func() bool {
		t.Helper()
		w := env.do("GET", "/api/v1/positions/0xalice/BTC/BTC/long/delta", "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp struct {
			HasProfit bool `json:"has_profit"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.HasProfit
	}

	for i := 0; i < 3; i++ {
		w := env.do("POST", "/api/v1/prices", alice, trade.PriceRequest{Asset: "BTC", Price: decimal.NewFromInt(60000)})
		assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	}
	assert.False(t, delta())

	w := env.do("POST", "/api/v1/prices", bob, trade.PriceRequest{Asset: "BTC", Price: decimal.NewFromInt(60000)})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do("POST", "/api/v1/gov/price-keepers", alice, map[string]any{"keeper": bob, "enabled": true})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do("POST", "/api/v1/gov/price-keepers", governor, map[string]any{"keeper": bob, "enabled": true})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	for i := 0; i < 3; i++ {
		w = env.do("POST", "/api/v1/prices", bob, trade.PriceRequest{Asset: "BTC", Price: decimal.NewFromInt(60000)})
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}
	assert.True(t, delta())
}

func TestRestart_RecoversShortCollateral(t *testing.T) {
	env := newTestEnv(t, "")
	env.price("BTC", "40000", "40000", "41000")
	env.price("USDC", "1")
	w := env.do("POST", "/api/v1/pools/USDC/deposit", governor, trade.DepositRequest{Amount: decimal.NewFromInt(1000)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do("POST", "/api/v1/positions/increase", alice, trade.IncreaseRequest{
		CollateralAsset: "USDC",
		IndexAsset:      "BTC",
		SizeDelta:       decimal.NewFromInt(90),
		CollateralIn:    decimal.NewFromInt(10),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assertUintEq(t, "1010000000", env.custody.BalanceOf("USDC"))

	env.restart()
	// Short collateral is held but never added to the pool.
	assertUintEq(t, "1010000000", env.custody.BalanceOf("USDC"))
	solvent, _ := env.solvency()
	assert.True(t, solvent)

	env.price("BTC", "36000", "36000", "36000")
	w = env.do("POST", "/api/v1/positions/decrease", alice, trade.DecreaseRequest{
		CollateralAsset: "USDC",
		IndexAsset:      "BTC",
		SizeDelta:       decimal.NewFromInt(90),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp trade.DecreaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Closed)
	assertDecimal(t, "18.82", resp.AmountOut)

	assertUintEq(t, "991180000", env.custody.BalanceOf("USDC"))
	solvent, _ = env.solvency()
	assert.True(t, solvent)

	env.restart()
	assertUintEq(t, "991180000", env.custody.BalanceOf("USDC"))
	solvent, _ = env.solvency()
	assert.True(t, solvent)
}

func TestRouterApproval(t *testing.T) {
	env := newTestEnv(t, "")
	env.price("BTC", "40000", "40000", "41000")
	w := env.do("POST", "/api/v1/pools/BTC/deposit", governor, trade.DepositRequest{Amount: decimal.RequireFromString("0.0024925")})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do("POST", "/api/v1/routers/approve", alice, map[string]string{"router": bob})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do("POST", "/api/v1/positions/increase", bob, trade.IncreaseRequest{
		Account:         alice,
		CollateralAsset: "BTC",
		IndexAsset:      "BTC",
		IsLong:          true,
		SizeDelta:       decimal.NewFromInt(90),
		CollateralIn:    decimal.RequireFromString("0.00025"),
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   any
		want   int
	}{
		{"bad side", "GET", "/api/v1/positions/0xalice/BTC/BTC/up", alice, nil, http.StatusBadRequest},
		{"unknown pool", "GET", "/api/v1/pools/DOGE", alice, nil, http.StatusBadRequest},
		{"deposit unknown asset", "POST", "/api/v1/pools/DOGE/deposit", alice, trade.DepositRequest{Amount: decimal.NewFromInt(1)}, http.StatusBadRequest},
		{"price unknown asset", "POST", "/api/v1/prices", feeder, trade.PriceRequest{Asset: "DOGE", Price: decimal.NewFromInt(1)}, http.StatusBadRequest},
		{"trader price", "POST", "/api/v1/prices", alice, trade.PriceRequest{Asset: "BTC", Price: decimal.NewFromInt(1)}, http.StatusForbidden},
		{"zero price", "POST", "/api/v1/prices", feeder, trade.PriceRequest{Asset: "BTC"}, http.StatusBadRequest},
		{"missing price", "POST", "/api/v1/positions/increase", alice, trade.IncreaseRequest{CollateralAsset: "BTC", IndexAsset: "BTC", IsLong: true, SizeDelta: decimal.NewFromInt(90), CollateralIn: decimal.RequireFromString("0.00025")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAPIKey(t *testing.T) {
	env := newTestEnv(t, "secret")

	w := env.do("GET", "/api/v1/pools", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/v1/pools", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest("GET", "/api/v1/pools", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	w = env.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func assertUintEq(t *testing.T, want string, got fixed.Uint) {
	t.Helper()
	assert.Equal(t, want, got.String())
}
