// Package trade provides the HTTP surface of the vault: position
// operations, pool and price feeds, governance, and a WebSocket stream of
// committed changes.
//
// Amounts cross the API as shopspring/decimal strings in human units (USD
// or whole asset units) and are converted to fixed-point at the boundary.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/auth"
	"github.com/atmx/vault-engine/internal/custody"
	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/store"
	"github.com/atmx/vault-engine/internal/vault"
)

// PriceSink accepts oracle rounds. Both oracle feeds implement it.
type PriceSink interface {
	Push(ctx context.Context, asset string, price fixed.Uint) error
}

// Service wires the engine to custody. The mutex serializes the
// receive → engine → payout sequence so custody balances and pool counters
// move together.
type Service struct {
	engine  *vault.Engine
	custody *custody.Ledger
	store   store.Store
	auth    *auth.Registry
	prices  PriceSink
	mu      sync.Mutex
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed, and nil for
// prices when the feed is fed from elsewhere.
func NewService(engine *vault.Engine, ledger *custody.Ledger, st store.Store, registry *auth.Registry, prices PriceSink, hub *WSHub) *Service {
	return &Service{
		engine:  engine,
		custody: ledger,
		store:   st,
		auth:    registry,
		prices:  prices,
		wsHub:   hub,
	}
}

// --- Response types ---

// PositionView is a position rendered in human units.
type PositionView struct {
	Key               string          `json:"key"`
	Account           string          `json:"account"`
	CollateralAsset   string          `json:"collateral_asset"`
	IndexAsset        string          `json:"index_asset"`
	IsLong            bool            `json:"is_long"`
	Size              decimal.Decimal `json:"size"`          // USD
	Collateral        decimal.Decimal `json:"collateral"`    // USD
	AveragePrice      decimal.Decimal `json:"average_price"` // USD
	EntryFundingRate  decimal.Decimal `json:"entry_funding_rate"`
	ReserveAmount     decimal.Decimal `json:"reserve_amount"` // collateral units
	RealisedPnl       decimal.Decimal `json:"realised_pnl"`   // USD
	HasRealisedProfit bool            `json:"has_realised_profit"`
	LastIncreasedTime time.Time       `json:"last_increased_time"`
}

// PoolView is a pool entry rendered in human units.
type PoolView struct {
	Asset                   string          `json:"asset"`
	PoolAmount              decimal.Decimal `json:"pool_amount"`
	ReservedAmount          decimal.Decimal `json:"reserved_amount"`
	FeeReserves             decimal.Decimal `json:"fee_reserves"`
	GuaranteedUsd           decimal.Decimal `json:"guaranteed_usd"`
	CumulativeFundingRate   decimal.Decimal `json:"cumulative_funding_rate"`
	LastFundingTime         int64           `json:"last_funding_time"`
	GlobalShortSize         decimal.Decimal `json:"global_short_size"`
	GlobalShortAveragePrice decimal.Decimal `json:"global_short_average_price"`
}

func (s *Service) decimals(asset string) int32 {
	a, _ := s.engine.Asset(asset)
	return int32(a.Decimals)
}

func (s *Service) positionView(p model.Position) PositionView {
	return PositionView{
		Key:               p.Key().Hex(),
		Account:           p.Account,
		CollateralAsset:   p.CollateralAsset,
		IndexAsset:        p.IndexAsset,
		IsLong:            p.IsLong,
		Size:              p.Size.Decimal(fixed.USDDecimals),
		Collateral:        p.Collateral.Decimal(fixed.USDDecimals),
		AveragePrice:      p.AveragePrice.Decimal(fixed.USDDecimals),
		EntryFundingRate:  p.EntryFundingRate.Decimal(fixed.FundingRateDecimals),
		ReserveAmount:     p.ReserveAmount.Decimal(s.decimals(p.CollateralAsset)),
		RealisedPnl:       p.RealisedPnl.Decimal(fixed.USDDecimals),
		HasRealisedProfit: !p.RealisedPnl.Negative && !p.RealisedPnl.Abs.IsZero(),
		LastIncreasedTime: p.LastIncreasedTime,
	}
}

func (s *Service) poolView(p model.PoolEntry) PoolView {
	d := s.decimals(p.Asset)
	return PoolView{
		Asset:                   p.Asset,
		PoolAmount:              p.PoolAmount.Decimal(d),
		ReservedAmount:          p.ReservedAmount.Decimal(d),
		FeeReserves:             p.FeeReserves.Decimal(d),
		GuaranteedUsd:           p.GuaranteedUsd.Decimal(fixed.USDDecimals),
		CumulativeFundingRate:   p.CumulativeFundingRate.Decimal(fixed.FundingRateDecimals),
		LastFundingTime:         p.LastFundingTime,
		GlobalShortSize:         p.GlobalShortSize.Decimal(fixed.USDDecimals),
		GlobalShortAveragePrice: p.GlobalShortAveragePrice.Decimal(fixed.USDDecimals),
	}
}

// usd converts a human USD amount.
func usd(d decimal.Decimal) (fixed.Uint, error) {
	return fixed.FromDecimal(d, fixed.USDDecimals)
}

// units converts whole asset units to the asset's smallest unit.
func (s *Service) units(asset string, d decimal.Decimal) (fixed.Uint, error) {
	a, ok := s.engine.Asset(asset)
	if !ok {
		return fixed.Zero, model.ErrUnsupportedAsset
	}
	return fixed.FromDecimal(d, int32(a.Decimals))
}

// refreshGauges updates pool and position gauges after a commit.
func (s *Service) refreshGauges() {
	decimals := make(map[string]uint8)
	for _, a := range s.engine.Assets() {
		decimals[a.Symbol] = a.Decimals
	}
	metrics.RecordPools(s.engine.Pools(), decimals)
	metrics.OpenPositions.Set(float64(len(s.engine.Positions(""))))
}

func (s *Service) broadcast(msg WSMessage) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
}

// statusFor maps an error to its HTTP status by kind.
func statusFor(err error) int {
	if errors.Is(err, auth.ErrNotGovernor) {
		return http.StatusForbidden
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, custody.ErrInsufficientBalance) {
		return http.StatusConflict
	}
	switch model.KindOf(err) {
	case model.KindAuthorization:
		return http.StatusForbidden
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindSolvency, model.KindPolicy:
		return http.StatusConflict
	case model.KindOracle:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure logs a rejected operation and writes the mapped status.
func writeFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", "err", err)
	} else {
		slog.Warn(op+" rejected", "err", err, "kind", model.KindOf(err).String())
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
