package custody

import (
	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/model"
)

// Report is the solvency state of one asset.
type Report struct {
	Asset          string     `json:"asset"`
	Balance        fixed.Uint `json:"balance"`
	PoolAmount     fixed.Uint `json:"pool_amount"`
	ReservedAmount fixed.Uint `json:"reserved_amount"`
	FeeReserves    fixed.Uint `json:"fee_reserves"`
	Solvent        bool       `json:"solvent"`
	Reason         string     `json:"reason,omitempty"`
}

// CheckSolvency compares held balances with pool counters. An asset is
// solvent when reserved <= pool and the vault holds at least pool plus fee
// reserves. Assets held without a pool entry are reported too.
func CheckSolvency(balances map[string]fixed.Uint, pools []model.PoolEntry) []Report {
	seen := make(map[string]bool, len(pools))
	out := make([]Report, 0, len(pools))
	for _, p := range pools {
		seen[p.Asset] = true
		r := Report{
			Asset:          p.Asset,
			Balance:        balances[p.Asset],
			PoolAmount:     p.PoolAmount,
			ReservedAmount: p.ReservedAmount,
			FeeReserves:    p.FeeReserves,
			Solvent:        true,
		}
		owed, err := p.PoolAmount.Add(p.FeeReserves)
		switch {
		case p.ReservedAmount.Gt(p.PoolAmount):
			r.Solvent, r.Reason = false, "reserved exceeds pool"
		case err != nil:
			r.Solvent, r.Reason = false, err.Error()
		case r.Balance.Lt(owed):
			r.Solvent, r.Reason = false, "balance below pool plus fee reserves"
		}
		out = append(out, r)
	}
	for _, a := range sortedKeys(balances) {
		if !seen[a] {
			out = append(out, Report{Asset: a, Balance: balances[a], Solvent: true})
		}
	}
	return out
}

// Solvent reports whether every asset in reports is solvent.
func Solvent(reports []Report) bool {
	for _, r := range reports {
		if !r.Solvent {
			return false
		}
	}
	return true
}
