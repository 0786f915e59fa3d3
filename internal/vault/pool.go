package vault

import (
	"context"
	"fmt"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

func (t *tx) increasePoolAmount(asset string, amount fixed.Uint) error {
	pool := t.pool(asset)
	next, err := pool.PoolAmount.Add(amount)
	if err != nil {
		return err
	}
	pool.PoolAmount = next
	return nil
}

// decreasePoolAmount fails if the pool would drop below zero or below the
// reserved amount.
func (t *tx) decreasePoolAmount(asset string, amount fixed.Uint) error {
	pool := t.pool(asset)
	next, err := pool.PoolAmount.Sub(amount)
	if err != nil {
		return model.ErrPoolAmountExceeded
	}
	pool.PoolAmount = next
	if pool.ReservedAmount.Gt(pool.PoolAmount) {
		return model.ErrPoolExceeded
	}
	return nil
}

func (t *tx) increaseReservedAmount(asset string, amount fixed.Uint) error {
	pool := t.pool(asset)
	next, err := pool.ReservedAmount.Add(amount)
	if err != nil {
		return err
	}
	pool.ReservedAmount = next
	if pool.ReservedAmount.Gt(pool.PoolAmount) {
		return model.ErrPoolExceeded
	}
	return nil
}

func (t *tx) decreaseReservedAmount(asset string, amount fixed.Uint) error {
	pool := t.pool(asset)
	next, err := pool.ReservedAmount.Sub(amount)
	if err != nil {
		return fmt.Errorf("release reserve: %w", err)
	}
	pool.ReservedAmount = next
	return nil
}

func (t *tx) increaseGuaranteedUsd(asset string, usd fixed.Uint) error {
	pool := t.pool(asset)
	next, err := pool.GuaranteedUsd.Add(usd)
	if err != nil {
		return err
	}
	pool.GuaranteedUsd = next
	return nil
}

// decreaseGuaranteedUsd clamps at zero.
func (t *tx) decreaseGuaranteedUsd(asset string, usd fixed.Uint) {
	pool := t.pool(asset)
	pool.GuaranteedUsd = pool.GuaranteedUsd.SubFloor(usd)
}

func (t *tx) increaseGlobalShortSize(asset string, usd fixed.Uint) error {
	pool := t.pool(asset)
	next, err := pool.GlobalShortSize.Add(usd)
	if err != nil {
		return err
	}
	pool.GlobalShortSize = next
	return nil
}

// decreaseGlobalShortSize clamps at zero.
func (t *tx) decreaseGlobalShortSize(asset string, usd fixed.Uint) {
	pool := t.pool(asset)
	pool.GlobalShortSize = pool.GlobalShortSize.SubFloor(usd)
}

// DirectPoolDeposit adds units the custodian already holds to an asset's
// pool without minting anything against them.
func (e *Engine) DirectPoolDeposit(ctx context.Context, caller, asset string, amount fixed.Uint) (model.PoolEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.assets[asset]; !ok {
		return model.PoolEntry{}, fmt.Errorf("deposit %s: %w", asset, model.ErrUnsupportedAsset)
	}
	if amount.IsZero() {
		return model.PoolEntry{}, fmt.Errorf("deposit %s: %w", asset, model.ErrZeroDelta)
	}

	t := e.begin(ctx)
	if err := t.increasePoolAmount(asset, amount); err != nil {
		return model.PoolEntry{}, fmt.Errorf("deposit %s: %w", asset, err)
	}
	t.record(model.LedgerEntry{
		Kind:            model.EntryDeposit,
		Account:         caller,
		CollateralAsset: asset,
		AmountIn:        amount,
	})
	if err := e.commit(t); err != nil {
		return model.PoolEntry{}, fmt.Errorf("deposit %s: %w", asset, err)
	}

	e.logger.Info("pool deposit",
		"asset", asset,
		"amount", amount.String(),
		"pool_amount", e.pools[asset].PoolAmount.String(),
	)
	return *e.pools[asset], nil
}
