package trade

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/vault-engine/internal/fixed"
	"github.com/atmx/vault-engine/internal/metrics"
	"github.com/atmx/vault-engine/internal/model"
	"github.com/atmx/vault-engine/internal/vault"
)

// IncreaseRequest is the JSON body for POST /positions/increase.
type IncreaseRequest struct {
	Account         string          `json:"account"` // defaults to the caller
	CollateralAsset string          `json:"collateral_asset"`
	IndexAsset      string          `json:"index_asset"`
	IsLong          bool            `json:"is_long"`
	SizeDelta       decimal.Decimal `json:"size_delta"`    // USD
	CollateralIn    decimal.Decimal `json:"collateral_in"` // whole units of the collateral asset
}

// DecreaseRequest is the JSON body for POST /positions/decrease.
type DecreaseRequest struct {
	Account         string          `json:"account"`
	CollateralAsset string          `json:"collateral_asset"`
	IndexAsset      string          `json:"index_asset"`
	IsLong          bool            `json:"is_long"`
	CollateralDelta decimal.Decimal `json:"collateral_delta"` // USD
	SizeDelta       decimal.Decimal `json:"size_delta"`       // USD
	Receiver        string          `json:"receiver"`         // defaults to the account
}

// LiquidateRequest is the JSON body for POST /positions/liquidate.
type LiquidateRequest struct {
	Account         string `json:"account"`
	CollateralAsset string `json:"collateral_asset"`
	IndexAsset      string `json:"index_asset"`
	IsLong          bool   `json:"is_long"`
	FeeReceiver     string `json:"fee_receiver"` // defaults to the caller
}

// DecreaseResponse reports the payout of a decrease.
type DecreaseResponse struct {
	Position    PositionView    `json:"position"`
	Closed      bool            `json:"closed"`
	Receiver    string          `json:"receiver"`
	AmountOut   decimal.Decimal `json:"amount_out"` // collateral units
	Fee         decimal.Decimal `json:"fee"`        // USD
	RealisedPnl decimal.Decimal `json:"realised_pnl"`
}

// LiquidateResponse reports the outcome of a liquidation.
type LiquidateResponse struct {
	State       string            `json:"state"`
	Reason      string            `json:"reason"`
	Fees        decimal.Decimal   `json:"fees"` // USD
	FeeReceiver string            `json:"fee_receiver,omitempty"`
	FeeOut      decimal.Decimal   `json:"fee_out"` // collateral units
	Decrease    *DecreaseResponse `json:"decrease,omitempty"`
}

// IncreasePosition handles POST /api/v1/positions/increase
// The collateral is taken into custody first and returned if the engine
// rejects the increase.
func (s *Service) IncreasePosition(w http.ResponseWriter, r *http.Request) {
	var req IncreaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	caller := CallerFrom(r.Context())
	if req.Account == "" {
		req.Account = caller
	}

	sizeDelta, err := usd(req.SizeDelta)
	if err != nil {
		writeError(w, "invalid size_delta", http.StatusBadRequest)
		return
	}
	collateralIn, err := s.units(req.CollateralAsset, req.CollateralIn)
	if err != nil {
		writeFailure(w, "increase", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.custody.Receive(req.CollateralAsset, collateralIn); err != nil {
		writeFailure(w, "increase", err)
		return
	}
	pos, err := s.engine.IncreasePosition(r.Context(), vault.IncreaseRequest{
		Caller:          caller,
		Account:         req.Account,
		CollateralAsset: req.CollateralAsset,
		IndexAsset:      req.IndexAsset,
		IsLong:          req.IsLong,
		SizeDelta:       sizeDelta,
		CollateralIn:    collateralIn,
	})
	metrics.ObserveOperation(model.EntryIncrease, req.IsLong, start, err)
	if err != nil {
		if rerr := s.custody.Refund(req.CollateralAsset, collateralIn); rerr != nil {
			slog.Error("collateral refund failed", "asset", req.CollateralAsset, "err", rerr)
		}
		writeFailure(w, "increase", err)
		return
	}

	s.refreshGauges()
	view := s.positionView(pos)
	s.broadcast(positionMessage("position_increased", view))
	writeJSON(w, http.StatusOK, view)
}

// DecreasePosition handles POST /api/v1/positions/decrease
func (s *Service) DecreasePosition(w http.ResponseWriter, r *http.Request) {
	var req DecreaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	caller := CallerFrom(r.Context())
	if req.Account == "" {
		req.Account = caller
	}
	if req.Receiver == "" {
		req.Receiver = req.Account
	}

	collateralDelta, err := usd(req.CollateralDelta)
	if err != nil {
		writeError(w, "invalid collateral_delta", http.StatusBadRequest)
		return
	}
	sizeDelta, err := usd(req.SizeDelta)
	if err != nil {
		writeError(w, "invalid size_delta", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res, err := s.engine.DecreasePosition(r.Context(), vault.DecreaseRequest{
		Caller:          caller,
		Account:         req.Account,
		CollateralAsset: req.CollateralAsset,
		IndexAsset:      req.IndexAsset,
		IsLong:          req.IsLong,
		CollateralDelta: collateralDelta,
		SizeDelta:       sizeDelta,
		Receiver:        req.Receiver,
	})
	metrics.ObserveOperation(model.EntryDecrease, req.IsLong, start, err)
	if err != nil {
		writeFailure(w, "decrease", err)
		return
	}
	if err := s.custody.Send(req.CollateralAsset, res.Receiver, res.AmountOut); err != nil {
		payoutFailed(w, req.CollateralAsset, res.Receiver, res.AmountOut, err)
		return
	}

	s.refreshGauges()
	resp := s.decreaseResponse(res)
	s.broadcast(positionMessage("position_decreased", resp.Position))
	writeJSON(w, http.StatusOK, resp)
}

// LiquidatePosition handles POST /api/v1/positions/liquidate
func (s *Service) LiquidatePosition(w http.ResponseWriter, r *http.Request) {
	var req LiquidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	caller := CallerFrom(r.Context())
	if req.FeeReceiver == "" {
		req.FeeReceiver = caller
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res, err := s.engine.LiquidatePosition(r.Context(), vault.LiquidateRequest{
		Caller:          caller,
		Account:         req.Account,
		CollateralAsset: req.CollateralAsset,
		IndexAsset:      req.IndexAsset,
		IsLong:          req.IsLong,
		FeeReceiver:     req.FeeReceiver,
	})
	metrics.ObserveOperation(model.EntryLiquidation, req.IsLong, start, err)
	if err != nil {
		writeFailure(w, "liquidate", err)
		return
	}

	resp := LiquidateResponse{
		State:       res.State.String(),
		Reason:      res.Reason,
		Fees:        res.Fees.Decimal(fixed.USDDecimals),
		FeeReceiver: res.FeeReceiver,
		FeeOut:      res.FeeOut.Decimal(s.decimals(req.CollateralAsset)),
	}
	if err := s.custody.Send(req.CollateralAsset, req.FeeReceiver, res.FeeOut); err != nil {
		payoutFailed(w, req.CollateralAsset, req.FeeReceiver, res.FeeOut, err)
		return
	}
	if res.Decrease != nil {
		if err := s.custody.Send(req.CollateralAsset, res.Decrease.Receiver, res.Decrease.AmountOut); err != nil {
			payoutFailed(w, req.CollateralAsset, res.Decrease.Receiver, res.Decrease.AmountOut, err)
			return
		}
		dec := s.decreaseResponse(*res.Decrease)
		resp.Decrease = &dec
	}

	s.refreshGauges()
	s.broadcast(WSMessage{
		Type:            "position_liquidated",
		PositionKey:     model.PositionKey(req.Account, req.CollateralAsset, req.IndexAsset, req.IsLong).Hex(),
		Account:         req.Account,
		CollateralAsset: req.CollateralAsset,
		IndexAsset:      req.IndexAsset,
		IsLong:          req.IsLong,
		State:           resp.State,
	})
	writeJSON(w, http.StatusOK, resp)
}

// payoutFailed reports a payout custody could not make after the engine
// committed. The units are owed to receiver and need operator action.
func payoutFailed(w http.ResponseWriter, asset, receiver string, amount fixed.Uint, err error) {
	slog.Error("payout failed after commit",
		"asset", asset,
		"receiver", receiver,
		"amount", amount.String(),
		"err", err,
	)
	writeError(w, "committed but payout failed: "+err.Error(), http.StatusInternalServerError)
}

func (s *Service) decreaseResponse(res vault.DecreaseResult) DecreaseResponse {
	return DecreaseResponse{
		Position:    s.positionView(res.Position),
		Closed:      res.Closed,
		Receiver:    res.Receiver,
		AmountOut:   res.AmountOut.Decimal(s.decimals(res.Position.CollateralAsset)),
		Fee:         res.Fee.Decimal(fixed.USDDecimals),
		RealisedPnl: res.RealisedPnl.Decimal(fixed.USDDecimals),
	}
}

// positionParams reads {account}/{collateral}/{index}/{side}.
func positionParams(r *http.Request) (account, collateral, index string, isLong bool, ok bool) {
	switch chi.URLParam(r, "side") {
	case "long":
		isLong = true
	case "short":
	default:
		return "", "", "", false, false
	}
	return chi.URLParam(r, "account"), chi.URLParam(r, "collateral"), chi.URLParam(r, "index"), isLong, true
}

// GetPosition handles GET /api/v1/positions/{account}/{collateral}/{index}/{side}
// An unopened position is returned as the empty record.
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	account, collateral, index, isLong, ok := positionParams(r)
	if !ok {
		writeError(w, "side must be long or short", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.positionView(s.engine.GetPosition(account, collateral, index, isLong)))
}

// GetPositionDelta handles GET /api/v1/positions/{account}/{collateral}/{index}/{side}/delta
func (s *Service) GetPositionDelta(w http.ResponseWriter, r *http.Request) {
	account, collateral, index, isLong, ok := positionParams(r)
	if !ok {
		writeError(w, "side must be long or short", http.StatusBadRequest)
		return
	}
	hasProfit, delta, err := s.engine.GetPositionDelta(r.Context(), account, collateral, index, isLong)
	if err != nil {
		writeFailure(w, "delta", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"has_profit": hasProfit,
		"delta":      delta.Decimal(fixed.USDDecimals),
	})
}

// GetPositionLeverage handles GET /api/v1/positions/{account}/{collateral}/{index}/{side}/leverage
func (s *Service) GetPositionLeverage(w http.ResponseWriter, r *http.Request) {
	account, collateral, index, isLong, ok := positionParams(r)
	if !ok {
		writeError(w, "side must be long or short", http.StatusBadRequest)
		return
	}
	lev, err := s.engine.GetPositionLeverage(account, collateral, index, isLong)
	if err != nil {
		writeFailure(w, "leverage", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leverage_bps": lev.String(),
		"leverage":     lev.Decimal(4),
	})
}

// ListPositions handles GET /api/v1/accounts/{account}/positions
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := s.engine.Positions(chi.URLParam(r, "account"))
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, s.positionView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetHistory handles GET /api/v1/accounts/{account}/history
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.GetLedgerEntriesByAccount(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, "failed to get history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
