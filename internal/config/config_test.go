package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/risk"
	"github.com/atmx/vault-engine/internal/vault"
)

func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GOVERNOR", "0xgov")
	t.Setenv("ORACLE_MAX_AGE", "90s")
	t.Setenv("PRICE_KEEPERS", "0xfeed1,0xfeed2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "0xgov", cfg.Governor)
	assert.Equal(t, 90*time.Second, cfg.OracleMaxAge)
	assert.Equal(t, 3, cfg.OracleSampleSpace)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, []string{"0xfeed1", "0xfeed2"}, cfg.PriceKeepers)
}

func TestLoad_RejectsBadSampleSpace(t *testing.T) {
	t.Setenv("ORACLE_SAMPLE_SPACE", "0")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadParams_Defaults(t *testing.T) {
	params, assets, err := LoadParams("")
	require.NoError(t, err)
	assert.Equal(t, vault.DefaultParams(), params)
	assert.Equal(t, DefaultAssets(), assets)
}

func writeParams(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadParams_File(t *testing.T) {
	path := writeParams(t, `
private_liquidation_mode = true

[fees]
margin_fee_bps = 20
liquidation_fee_usd = "2.5"

[risk]
max_leverage_bps = 300000
withdrawal_cooldown_seconds = 3600
cooldown_boundary = "exclusive"

[funding]
factor = 100

[[assets]]
symbol = "SOL"
decimals = 9
is_shortable = true

[[assets]]
symbol = "DAI"
decimals = 18
is_stable = true
`)
	params, assets, err := LoadParams(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(20), params.MarginFeeBasisPoints)
	assert.Equal(t, uint64(50), params.TaxBasisPoints, "unset fields keep defaults")
	assert.True(t, fixed.MustParse("2500000000000000000000000000000").Eq(params.Risk.LiquidationFeeUsd))
	assert.Equal(t, uint64(300000), params.Risk.MaxLeverage)
	assert.Equal(t, uint64(25000), params.Risk.MinLeverage)
	assert.Equal(t, time.Hour, params.Risk.WithdrawalCooldown)
	assert.Equal(t, risk.Exclusive, params.Risk.CooldownBoundary)
	assert.Equal(t, uint64(100), params.FundingRateFactor)
	assert.Equal(t, 8*time.Hour, params.FundingInterval)
	assert.True(t, params.PrivateLiquidationMode)

	assert.Equal(t, []model.AssetConfig{
		{Symbol: "SOL", Decimals: 9, IsShortable: true},
		{Symbol: "DAI", Decimals: 18, IsStable: true},
	}, assets)
}

func TestLoadParams_Invalid(t *testing.T) {
	tests := map[string]string{
		"fee too high":     "[fees]\nmargin_fee_bps = 600\n",
		"short interval":   "[funding]\ninterval_seconds = 60\n",
		"max below min":    "[risk]\nmax_leverage_bps = 20000\n",
		"unknown boundary": "[risk]\ncooldown_boundary = \"sometimes\"\n",
		"liquidation fee":  "[fees]\nliquidation_fee_usd = \"101\"\n",
		"malformed toml":   "[fees\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := LoadParams(writeParams(t, body))
			require.Error(t, err)
		})
	}
	_, _, err := LoadParams(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
