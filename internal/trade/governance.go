package trade

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/vault"
)

// ParamsView renders the governance parameters.
type ParamsView struct {
	TaxBasisPoints           uint64              `json:"tax_bps"`
	StableTaxBasisPoints     uint64              `json:"stable_tax_bps"`
	MintBurnFeeBasisPoints   uint64              `json:"mint_burn_fee_bps"`
	SwapFeeBasisPoints       uint64              `json:"swap_fee_bps"`
	StableSwapFeeBasisPoints uint64              `json:"stable_swap_fee_bps"`
	MarginFeeBasisPoints     uint64              `json:"margin_fee_bps"`
	HasDynamicFees           bool                `json:"has_dynamic_fees"`
	LiquidationFeeUsd        decimal.Decimal     `json:"liquidation_fee_usd"`
	MinProfitTimeSeconds     int64               `json:"min_profit_time_seconds"`
	FundingIntervalSeconds   int64               `json:"funding_interval_seconds"`
	FundingRateFactor        uint64              `json:"funding_rate_factor"`
	StableFundingRateFactor  uint64              `json:"stable_funding_rate_factor"`
	PrivateLiquidationMode   bool                `json:"private_liquidation_mode"`
	WithdrawalCooldownSecs   int64               `json:"withdrawal_cooldown_seconds"`
	MinLeverage              uint64              `json:"min_leverage_bps"`
	MaxLeverage              uint64              `json:"max_leverage_bps"`
	CooldownBoundary         string              `json:"cooldown_boundary"`
	Assets                   []model.AssetConfig `json:"assets"`
}

// FeesRequest is the JSON body for POST /gov/fees.
type FeesRequest struct {
	TaxBasisPoints           uint64          `json:"tax_bps"`
	StableTaxBasisPoints     uint64          `json:"stable_tax_bps"`
	MintBurnFeeBasisPoints   uint64          `json:"mint_burn_fee_bps"`
	SwapFeeBasisPoints       uint64          `json:"swap_fee_bps"`
	StableSwapFeeBasisPoints uint64          `json:"stable_swap_fee_bps"`
	MarginFeeBasisPoints     uint64          `json:"margin_fee_bps"`
	LiquidationFeeUsd        decimal.Decimal `json:"liquidation_fee_usd"`
	MinProfitTimeSeconds     int64           `json:"min_profit_time_seconds"`
	HasDynamicFees           bool            `json:"has_dynamic_fees"`
}

// FundingRequest is the JSON body for POST /gov/funding.
type FundingRequest struct {
	IntervalSeconds int64  `json:"interval_seconds"`
	Factor          uint64 `json:"factor"`
	StableFactor    uint64 `json:"stable_factor"`
}

// GetParams handles GET /api/v1/params
func (s *Service) GetParams(w http.ResponseWriter, _ *http.Request) {
	p := s.engine.Params()
	writeJSON(w, http.StatusOK, ParamsView{
		TaxBasisPoints:           p.TaxBasisPoints,
		StableTaxBasisPoints:     p.StableTaxBasisPoints,
		MintBurnFeeBasisPoints:   p.MintBurnFeeBasisPoints,
		SwapFeeBasisPoints:       p.SwapFeeBasisPoints,
		StableSwapFeeBasisPoints: p.StableSwapFeeBasisPoints,
		MarginFeeBasisPoints:     p.MarginFeeBasisPoints,
		HasDynamicFees:           p.HasDynamicFees,
		LiquidationFeeUsd:        p.Risk.LiquidationFeeUsd.Decimal(fixed.USDDecimals),
		MinProfitTimeSeconds:     int64(p.MinProfitTime.Seconds()),
		FundingIntervalSeconds:   int64(p.FundingInterval.Seconds()),
		FundingRateFactor:        p.FundingRateFactor,
		StableFundingRateFactor:  p.StableFundingRateFactor,
		PrivateLiquidationMode:   p.PrivateLiquidationMode,
		WithdrawalCooldownSecs:   int64(p.Risk.WithdrawalCooldown.Seconds()),
		MinLeverage:              p.Risk.MinLeverage,
		MaxLeverage:              p.Risk.MaxLeverage,
		CooldownBoundary:         p.Risk.CooldownBoundary.String(),
		Assets:                   s.engine.Assets(),
	})
}

// govHandler decodes a body of type T and applies it as the caller.
func govHandler[T any](op string, apply func(caller string, body T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body T
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		caller := CallerFrom(r.Context())
		if err := apply(caller, body); err != nil {
			writeFailure(w, op, err)
			return
		}
		slog.Info("governance update", "op", op, "caller", caller)
		w.WriteHeader(http.StatusNoContent)
	}
}

// SetMinLeverage handles POST /api/v1/gov/min-leverage
func (s *Service) SetMinLeverage() http.HandlerFunc {
	return govHandler("min leverage", func(caller string, b struct {
		Bps uint64 `json:"bps"`
	}) error {
		return s.engine.SetMinLeverage(caller, b.Bps)
	})
}

// SetMaxLeverage handles POST /api/v1/gov/max-leverage
func (s *Service) SetMaxLeverage() http.HandlerFunc {
	return govHandler("max leverage", func(caller string, b struct {
		Bps uint64 `json:"bps"`
	}) error {
		return s.engine.SetMaxLeverage(caller, b.Bps)
	})
}

// SetCooldown handles POST /api/v1/gov/cooldown
func (s *Service) SetCooldown() http.HandlerFunc {
	return govHandler("cooldown", func(caller string, b struct {
		Seconds int64 `json:"seconds"`
	}) error {
		return s.engine.SetWithdrawalCooldownDuration(caller, time.Duration(b.Seconds)*time.Second)
	})
}

// SetFees handles POST /api/v1/gov/fees
func (s *Service) SetFees() http.HandlerFunc {
	return govHandler("fees", func(caller string, b FeesRequest) error {
		liqFee, err := usd(b.LiquidationFeeUsd)
		if err != nil {
			return model.ErrInvalidFee
		}
		return s.engine.SetFees(caller, vault.FeeSchedule{
			TaxBasisPoints:           b.TaxBasisPoints,
			StableTaxBasisPoints:     b.StableTaxBasisPoints,
			MintBurnFeeBasisPoints:   b.MintBurnFeeBasisPoints,
			SwapFeeBasisPoints:       b.SwapFeeBasisPoints,
			StableSwapFeeBasisPoints: b.StableSwapFeeBasisPoints,
			MarginFeeBasisPoints:     b.MarginFeeBasisPoints,
			LiquidationFeeUsd:        liqFee,
			MinProfitTime:            time.Duration(b.MinProfitTimeSeconds) * time.Second,
			HasDynamicFees:           b.HasDynamicFees,
		})
	})
}

// SetFunding handles POST /api/v1/gov/funding
func (s *Service) SetFunding() http.HandlerFunc {
	return govHandler("funding", func(caller string, b FundingRequest) error {
		return s.engine.SetFundingRate(caller, time.Duration(b.IntervalSeconds)*time.Second, b.Factor, b.StableFactor)
	})
}

// SetAsset handles POST /api/v1/gov/assets
func (s *Service) SetAsset() http.HandlerFunc {
	return govHandler("asset", func(caller string, b model.AssetConfig) error {
		return s.engine.SetAssetConfig(caller, b)
	})
}

// SetLiquidationMode handles POST /api/v1/gov/liquidation-mode
func (s *Service) SetLiquidationMode() http.HandlerFunc {
	return govHandler("liquidation mode", func(caller string, b struct {
		Private bool `json:"private"`
	}) error {
		return s.engine.SetPrivateLiquidationMode(caller, b.Private)
	})
}

// SetRouter handles POST /api/v1/gov/routers
func (s *Service) SetRouter() http.HandlerFunc {
	return govHandler("router", func(caller string, b struct {
		Router  string `json:"router"`
		Enabled bool   `json:"enabled"`
	}) error {
		return s.auth.SetRouter(caller, b.Router, b.Enabled)
	})
}

// SetLiquidator handles POST /api/v1/gov/liquidators
func (s *Service) SetLiquidator() http.HandlerFunc {
	return govHandler("liquidator", func(caller string, b struct {
		Liquidator string `json:"liquidator"`
		Enabled    bool   `json:"enabled"`
	}) error {
		return s.auth.SetLiquidator(caller, b.Liquidator, b.Enabled)
	})
}

type routerBody struct {
	Router string `json:"router"`
}

// ApproveRouter handles POST /api/v1/routers/approve
// The caller approves a router to act for its own account.
func (s *Service) ApproveRouter() http.HandlerFunc {
	return govHandler("approve router", func(caller string, b routerBody) error {
		if caller == "" || b.Router == "" {
			return model.ErrInvalidParams
		}
		s.auth.ApproveRouter(caller, b.Router)
		return nil
	})
}

// DenyRouter handles POST /api/v1/routers/deny
func (s *Service) DenyRouter() http.HandlerFunc {
	return govHandler("deny router", func(caller string, b routerBody) error {
		if caller == "" || b.Router == "" {
			return model.ErrInvalidParams
		}
		s.auth.DenyRouter(caller, b.Router)
		return nil
	})
}

// SetGovernor handles POST /api/v1/gov/governor
func (s *Service) SetGovernor() http.HandlerFunc {
	return govHandler("governor", func(caller string, b struct {
		Governor string `json:"governor"`
	}) error {
		if b.Governor == "" {
			return model.ErrInvalidParams
		}
		return s.auth.SetGovernor(caller, b.Governor)
	})
}

// SetPriceKeeper handles POST /api/v1/gov/price-keepers
func (s *Service) SetPriceKeeper() http.HandlerFunc {
	return govHandler("price keeper", func(caller string, b struct {
		Keeper  string `json:"keeper"`
		Enabled bool   `json:"enabled"`
	}) error {
		return s.auth.SetPriceKeeper(caller, b.Keeper, b.Enabled)
	})
}
