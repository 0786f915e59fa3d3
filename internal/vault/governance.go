package vault

import (
	"time"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// FeeSchedule is the argument of SetFees.
type FeeSchedule struct {
	TaxBasisPoints           uint64
	StableTaxBasisPoints     uint64
	MintBurnFeeBasisPoints   uint64
	SwapFeeBasisPoints       uint64
	StableSwapFeeBasisPoints uint64
	MarginFeeBasisPoints     uint64
	LiquidationFeeUsd        fixed.Uint
	MinProfitTime            time.Duration
	HasDynamicFees           bool
}

// update validates next and swaps it in. The caller holds e.mu.
func (e *Engine) update(caller string, fn func(p *Params)) error {
	if !e.auth.IsGovernor(caller) {
		return model.ErrUnauthorized
	}
	next := e.params
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	e.params = next
	e.logger.Info("vault params updated", "caller", caller)
	return nil
}

func (e *Engine) SetWithdrawalCooldownDuration(caller string, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(caller, func(p *Params) { p.Risk.WithdrawalCooldown = d })
}

func (e *Engine) SetMinLeverage(caller string, bps uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(caller, func(p *Params) { p.Risk.MinLeverage = bps })
}

func (e *Engine) SetMaxLeverage(caller string, bps uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(caller, func(p *Params) { p.Risk.MaxLeverage = bps })
}

// SetFees replaces the whole fee schedule.
func (e *Engine) SetFees(caller string, fs FeeSchedule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(caller, func(p *Params) {
		p.TaxBasisPoints = fs.TaxBasisPoints
		p.StableTaxBasisPoints = fs.StableTaxBasisPoints
		p.MintBurnFeeBasisPoints = fs.MintBurnFeeBasisPoints
		p.SwapFeeBasisPoints = fs.SwapFeeBasisPoints
		p.StableSwapFeeBasisPoints = fs.StableSwapFeeBasisPoints
		p.MarginFeeBasisPoints = fs.MarginFeeBasisPoints
		p.Risk.LiquidationFeeUsd = fs.LiquidationFeeUsd
		p.MinProfitTime = fs.MinProfitTime
		p.HasDynamicFees = fs.HasDynamicFees
	})
}

func (e *Engine) SetFundingRate(caller string, interval time.Duration, factor, stableFactor uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(caller, func(p *Params) {
		p.FundingInterval = interval
		p.FundingRateFactor = factor
		p.StableFundingRateFactor = stableFactor
	})
}

func (e *Engine) SetPrivateLiquidationMode(caller string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.update(caller, func(p *Params) { p.PrivateLiquidationMode = enabled })
}

// SetAssetConfig adds or replaces a whitelist entry. Decimals cannot change
// while the pool holds units of the asset.
func (e *Engine) SetAssetConfig(caller string, cfg model.AssetConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.auth.IsGovernor(caller) {
		return model.ErrUnauthorized
	}
	return e.setAsset(cfg)
}

// ConfigureAssets installs the whitelist at startup without a governor.
func (e *Engine) ConfigureAssets(cfgs ...model.AssetConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cfg := range cfgs {
		if err := e.setAsset(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) setAsset(cfg model.AssetConfig) error {
	if cfg.Symbol == "" || cfg.Decimals > 36 || cfg.MinProfitBasisPoints > fixed.BasisPoints {
		return model.ErrInvalidParams
	}
	if cur, ok := e.assets[cfg.Symbol]; ok && cur.Decimals != cfg.Decimals {
		if p, ok := e.pools[cfg.Symbol]; ok && !(p.PoolAmount.IsZero() && p.FeeReserves.IsZero()) {
			return model.ErrInvalidParams
		}
	}
	e.assets[cfg.Symbol] = cfg
	e.logger.Info("asset configured",
		"symbol", cfg.Symbol,
		"decimals", cfg.Decimals,
		"stable", cfg.IsStable,
		"shortable", cfg.IsShortable,
	)
	return nil
}
