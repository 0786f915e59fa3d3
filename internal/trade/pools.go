package trade

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/custody"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
)

// DepositRequest is the JSON body for POST /pools/{asset}/deposit.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"` // whole units
}

// PriceRequest is the JSON body for POST /prices.
type PriceRequest struct {
	Asset string          `json:"asset"`
	Price decimal.Decimal `json:"price"` // USD per whole unit
}

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, _ *http.Request) {
	pools := s.engine.Pools()
	views := make([]PoolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, s.poolView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetPool handles GET /api/v1/pools/{asset}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.Pool(chi.URLParam(r, "asset"))
	if err != nil {
		writeFailure(w, "pool", err)
		return
	}
	writeJSON(w, http.StatusOK, s.poolView(pool))
}

// Deposit handles POST /api/v1/pools/{asset}/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	amount, err := s.units(asset, req.Amount)
	if err != nil {
		writeFailure(w, "deposit", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.custody.Receive(asset, amount); err != nil {
		writeFailure(w, "deposit", err)
		return
	}
	pool, err := s.engine.DirectPoolDeposit(r.Context(), CallerFrom(r.Context()), asset, amount)
	metrics.ObserveOperation(model.EntryDeposit, false, start, err)
	if err != nil {
		if rerr := s.custody.Refund(asset, amount); rerr != nil {
			slog.Error("deposit refund failed", "asset", asset, "err", rerr)
		}
		writeFailure(w, "deposit", err)
		return
	}

	s.refreshGauges()
	view := s.poolView(pool)
	s.broadcast(WSMessage{Type: "pool_updated", CollateralAsset: asset, PoolAmount: view.PoolAmount.String()})
	writeJSON(w, http.StatusOK, view)
}

// PushPrice handles POST /api/v1/prices
// Only price keepers and the governor may push rounds.
func (s *Service) PushPrice(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		writeError(w, "price ingestion disabled", http.StatusNotFound)
		return
	}
	caller := CallerFrom(r.Context())
	if !s.auth.IsPriceKeeper(caller) {
		writeFailure(w, "price", model.ErrUnauthorized)
		return
	}
	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, ok := s.engine.Asset(req.Asset); !ok {
		writeFailure(w, "price", model.ErrUnsupportedAsset)
		return
	}
	price, err := usd(req.Price)
	if err != nil || price.IsZero() {
		writeError(w, "price must be positive", http.StatusBadRequest)
		return
	}
	if err := s.prices.Push(r.Context(), req.Asset, price); err != nil {
		writeFailure(w, "price", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"asset": req.Asset, "price": req.Price.String()})
}

// Solvency handles GET /api/v1/solvency
func (s *Service) Solvency(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	reports := custody.CheckSolvency(s.custody.Balances(), s.engine.Pools())
	s.mu.Unlock()

	status := http.StatusOK
	if !custody.Solvent(reports) {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"solvent": custody.Solvent(reports),
		"assets":  reports,
	})
}
