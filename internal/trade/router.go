package trade

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atmx/vault-engine/internal/metrics"
)

// Routes builds the HTTP router. Everything under /api/v1 except the
// WebSocket stream requires apiKey when it is set.
func (s *Service) Routes(apiKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(CORS)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "vault-engine"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.wsHub != nil {
			r.Get("/ws", s.wsHub.HandleWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(APIKey(apiKey))
			r.Use(Caller)

			r.Post("/positions/increase", s.IncreasePosition)
			r.Post("/positions/decrease", s.DecreasePosition)
			r.Post("/positions/liquidate", s.LiquidatePosition)
			r.Get("/positions", s.ListPositions)
			r.Get("/positions/{account}/{collateral}/{index}/{side}", s.GetPosition)
			r.Get("/positions/{account}/{collateral}/{index}/{side}/delta", s.GetPositionDelta)
			r.Get("/positions/{account}/{collateral}/{index}/{side}/leverage", s.GetPositionLeverage)
			r.Get("/accounts/{account}/positions", s.ListPositions)
			r.Get("/accounts/{account}/history", s.GetHistory)

			r.Get("/pools", s.ListPools)
			r.Get("/pools/{asset}", s.GetPool)
			r.Post("/pools/{asset}/deposit", s.Deposit)
			r.Post("/prices", s.PushPrice)
			r.Get("/solvency", s.Solvency)
			r.Get("/params", s.GetParams)

			r.Post("/routers/approve", s.ApproveRouter())
			r.Post("/routers/deny", s.DenyRouter())

			r.Route("/gov", func(r chi.Router) {
				r.Post("/min-leverage", s.SetMinLeverage())
				r.Post("/max-leverage", s.SetMaxLeverage())
				r.Post("/cooldown", s.SetCooldown())
				r.Post("/fees", s.SetFees())
				r.Post("/funding", s.SetFunding())
				r.Post("/assets", s.SetAsset())
				r.Post("/liquidation-mode", s.SetLiquidationMode())
				r.Post("/routers", s.SetRouter())
				r.Post("/liquidators", s.SetLiquidator())
				r.Post("/governor", s.SetGovernor())
				r.Post("/price-keepers", s.SetPriceKeeper())
			})
		})
	})
	return r
}
