package vault

import (
	"github.com/atmx/vault-engine/internal/model"
)

// validateAssets enforces pairing: a long is collateralised by its own
// non-stable index asset, a short by a stable asset against a shortable
// non-stable index.
func (e *Engine) validateAssets(collateralAsset, indexAsset string, isLong bool) error {
	collateral, ok := e.assets[collateralAsset]
	if !ok {
		return model.ErrUnsupportedAsset
	}
	index, ok := e.assets[indexAsset]
	if !ok {
		return model.ErrUnsupportedAsset
	}
	if isLong {
		if collateralAsset != indexAsset || collateral.IsStable {
			return model.ErrAssetMismatch
		}
		return nil
	}
	if !collateral.IsStable || index.IsStable || !index.IsShortable {
		return model.ErrAssetMismatch
	}
	return nil
}

// validatePosition requires the empty record or size >= collateral.
func validatePosition(p *model.Position) error {
	if p.Size.IsZero() {
		if !p.Collateral.IsZero() {
			return model.ErrInvalidPositionSize
		}
		return nil
	}
	if p.Size.Lt(p.Collateral) {
		return model.ErrSizeBelowCollateral
	}
	return nil
}
