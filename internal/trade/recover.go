package trade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atmx/vault-engine/internal/custody"
	"github.com/atmx/vault-engine/internal/store"
	"github.com/atmx/vault-engine/internal/vault"
)

// Recover restores the engine from st and rebuilds custody from the
// journal's asset flows. Short collateral and pending fee reserves are
// held in custody without being pool liquidity, so pool counters alone
// cannot reproduce the balances.
func Recover(ctx context.Context, st store.Store, engine *vault.Engine) (*custody.Ledger, error) {
	positions, pools, err := st.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if err := engine.Restore(positions, pools); err != nil {
		return nil, fmt.Errorf("restore state: %w", err)
	}
	flows, err := st.AssetFlows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load asset flows: %w", err)
	}
	ledger, err := custody.FromFlows(flows)
	if err != nil {
		return nil, err
	}

	reports := custody.CheckSolvency(ledger.Balances(), engine.Pools())
	for _, r := range reports {
		if !r.Solvent {
			slog.Error("custody does not cover pool", "asset", r.Asset, "reason", r.Reason,
				"balance", r.Balance.String(), "pool_amount", r.PoolAmount.String())
		}
	}
	slog.Info("state restored", "positions", len(positions), "pools", len(pools), "solvent", custody.Solvent(reports))
	return ledger, nil
}
