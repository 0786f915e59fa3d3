package risk_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/risk"
)

// usd parses a dollar amount such as "9.91" into a 30-decimal value.
func usd(t *testing.T, s string) fixed.Uint {
	t.Helper()
	u, err := fixed.FromDecimal(decimal.RequireFromString(s), fixed.USDDecimals)
	require.NoError(t, err)
	return u
}

var t0 = time.Unix(1_700_000_000, 0)

func openLong(t *testing.T, size, collateral string) *model.Position {
	return &model.Position{
		Account: "alice", CollateralAsset: "BTC", IndexAsset: "BTC", IsLong: true,
		Size:              usd(t, size),
		Collateral:        usd(t, collateral),
		AveragePrice:      fixed.USD(41000),
		ReserveAmount:     fixed.New(225000),
		LastIncreasedTime: t0,
	}
}

func TestLeverage(t *testing.T) {
	lev, err := risk.Leverage(usd(t, "90"), usd(t, "9.91"))
	require.NoError(t, err)
	assert.Equal(t, "90817", lev.String())

	_, err = risk.Leverage(usd(t, "90"), fixed.Zero)
	require.ErrorIs(t, err, model.ErrEmptyPosition)
}

func TestCheckIncrease(t *testing.T) {
	p := risk.DefaultPolicy()

	assert.NoError(t, p.CheckIncrease(openLong(t, "90", "9.91")))
	assert.ErrorIs(t, p.CheckIncrease(openLong(t, "100", "1")), model.ErrLeverageRejected)
	assert.ErrorIs(t, p.CheckIncrease(openLong(t, "10", "9")), model.ErrLeverageRejected)

	p.MinLeverage = 0
	assert.NoError(t, p.CheckIncrease(openLong(t, "10", "9")))
}

func TestCooldown(t *testing.T) {
	p := risk.DefaultPolicy()
	p.WithdrawalCooldown = time.Hour
	pos := openLong(t, "90", "9.91")
	inside := t0.Add(10 * time.Second)

	tests := []struct {
		name            string
		collateralDelta string
		sizeDelta       string
		now             time.Time
		wantErr         error
	}{
		{"withdraw without size change", "5", "0", inside, model.ErrCooldownNotPassed},
		{"withdraw with too small size change", "5", "10", inside, model.ErrCooldownNotPassed},
		{"proportional withdraw", "1", "10", inside, nil},
		{"size only", "0", "10", inside, nil},
		{"full close", "9.91", "90", inside, nil},
		{"after cooldown", "1", "0", t0.Add(time.Hour), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := p.CheckCooldown(pos, usd(t, tc.collateralDelta), usd(t, tc.sizeDelta), tc.now)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCooldownBoundary(t *testing.T) {
	p := risk.DefaultPolicy()
	p.WithdrawalCooldown = time.Hour
	pos := openLong(t, "100", "10")
	now := t0.Add(time.Minute)

	// 1/10 == 10/100: leverage is unchanged.
	assert.NoError(t, p.CheckCooldown(pos, usd(t, "1"), usd(t, "10"), now))

	p.CooldownBoundary = risk.Exclusive
	assert.ErrorIs(t, p.CheckCooldown(pos, usd(t, "1"), usd(t, "10"), now), model.ErrCooldownNotPassed)
	assert.NoError(t, p.CheckCooldown(pos, usd(t, "0.99"), usd(t, "10"), now))

	assert.Equal(t, risk.Exclusive, risk.ParseBoundary("exclusive"))
	assert.Equal(t, risk.Inclusive, risk.ParseBoundary("anything"))
}

func TestCheckDecreased(t *testing.T) {
	p := risk.DefaultPolicy()

	assert.ErrorIs(t, p.CheckDecreased(openLong(t, "40", "20")), model.ErrLeverageTooLow)
	assert.NoError(t, p.CheckDecreased(openLong(t, "40", "6.91")))
	assert.NoError(t, p.CheckDecreased(&model.Position{}))
}

func TestLiquidation(t *testing.T) {
	p := risk.DefaultPolicy()
	fees := usd(t, "0.09")

	tests := []struct {
		name      string
		pos       *model.Position
		ex        risk.Exposure
		wantState risk.LiquidationState
		wantErr   error
		wantFees  fixed.Uint
	}{
		{
			name:      "healthy at small loss",
			pos:       openLong(t, "90", "9.91"),
			ex:        risk.Exposure{Delta: fixed.MustParse("2195121951219512195121951219"), MarginFees: fees},
			wantState: risk.Healthy,
			wantFees:  fees,
		},
		{
			name:      "healthy in profit",
			pos:       openLong(t, "90", "9.91"),
			ex:        risk.Exposure{HasProfit: true, Delta: usd(t, "50"), MarginFees: fees},
			wantState: risk.Healthy,
			wantFees:  fees,
		},
		{
			name:      "losses exceed collateral",
			pos:       openLong(t, "90", "9.91"),
			ex:        risk.Exposure{Delta: usd(t, "9.92"), MarginFees: fees},
			wantState: risk.Liquidatable,
			wantErr:   model.ErrLossesExceedCollateral,
			wantFees:  fees,
		},
		{
			name:      "fees exceed collateral",
			pos:       openLong(t, "90", "9.91"),
			ex:        risk.Exposure{Delta: usd(t, "9.85"), MarginFees: fees},
			wantState: risk.Liquidatable,
			wantErr:   model.ErrFeesExceedCollateral,
			wantFees:  usd(t, "0.06"),
		},
		{
			name:      "liquidation fee not covered",
			pos:       openLong(t, "90", "9.91"),
			ex:        risk.Exposure{Delta: usd(t, "4.85"), MarginFees: fees},
			wantState: risk.Liquidatable,
			wantErr:   model.ErrLiquidationFeesExceedCollateral,
			wantFees:  fees,
		},
		{
			name:      "over max leverage",
			pos:       openLong(t, "1000", "19"),
			ex:        risk.Exposure{HasProfit: true, MarginFees: usd(t, "1")},
			wantState: risk.OverLeveraged,
			wantErr:   model.ErrMaxLeverageExceeded,
			wantFees:  usd(t, "1"),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := p.Liquidation(tc.pos, tc.ex)
			require.NoError(t, err)
			assert.Equal(t, tc.wantState, v.State)
			assert.True(t, tc.wantFees.Eq(v.Fees), "fees %s", v.Fees)
			if tc.wantErr == nil {
				assert.NoError(t, v.Reason)
			} else {
				assert.ErrorIs(t, v.Reason, tc.wantErr)
			}
		})
	}
}
