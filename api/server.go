/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. withLogger: Request-scoped slog logger on the context
  5. CORS:       Cross-origin requests for channel frontends

ROUTE GROUPS:
  /healthz                        Liveness and storage ping
  /api/owners/{owner}/wallets/*   Wallets and balances
  /api/owners/{owner}/transactions/*
  /api/owners/{owner}/transfers
  /api/owners/{owner}/savings/*   Deposits, withdrawals, summary, health
  /api/owners/{owner}/goals/*     Goals and allocations
  /api/owners/{owner}/chat        Classify and stage
  /api/owners/{owner}/pending/*   Confirm, edit, cancel one proposal
  /api/owners/{owner}/batches/*   Confirm or cancel a batch
  /api/owners/{owner}/callbacks   Channel button presses
  /api/scenarios/*                Demo data

SECURITY NOTE:
  No authentication middleware. The owner id in the path is trusted; put
  the server behind whatever authenticates the channel.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/ledger-engine/logctx"
)

// DefaultCORSOrigins is used when no origins are configured.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured. logger may be
// nil to use slog.Default.
func NewRouter(h *Handler, logger *slog.Logger, corsOrigins []string) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(withLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/owners/{owner}", func(r chi.Router) {
			// Wallet routes
			r.Route("/wallets", func(r chi.Router) {
				r.Get("/", h.ListWallets)
				r.Post("/", h.CreateWallet)
				r.Patch("/{wallet}", h.UpdateWallet)
				r.Get("/{wallet}/balance", h.GetWalletBalance)
				r.Get("/{wallet}/transactions", h.GetWalletTransactions)
			})

			// Transaction routes
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", h.ListTransactions)
				r.Post("/expense", h.CreateExpense)
				r.Post("/income", h.CreateIncome)
				r.Post("/investment", h.CreateInvestment)
				r.Patch("/{id}", h.UpdateTransaction)
				r.Delete("/{id}", h.DeleteTransaction)
			})
			r.Post("/transfers", h.CreateTransfer)

			// Savings routes
			r.Route("/savings", func(r chi.Router) {
				r.Post("/deposit", h.DepositToSavings)
				r.Post("/withdraw", h.WithdrawFromSavings)
				r.Get("/summary", h.GetSavingsSummary)
				r.Get("/health", h.GetSavingsHealth)
			})

			// Goal routes
			r.Route("/goals", func(r chi.Router) {
				r.Get("/", h.ListGoals)
				r.Post("/", h.CreateGoal)
				r.Delete("/{goal}", h.DeleteGoal)
				r.Post("/{goal}/allocate", h.AllocateGoal)
				r.Post("/{goal}/deallocate", h.DeallocateGoal)
				r.Put("/{goal}/allocation", h.SetGoalAllocation)
				r.Get("/{goal}/history", h.GetGoalHistory)
			})

			// Confirmation routes
			r.Post("/chat", h.Chat)
			r.Route("/pending/{token}", func(r chi.Router) {
				r.Post("/confirm", h.ConfirmPending)
				r.Post("/edit", h.EditPending)
				r.Post("/cancel", h.CancelPending)
			})
			r.Route("/batches/{batch}", func(r chi.Router) {
				r.Post("/confirm", h.ConfirmBatch)
				r.Post("/cancel", h.CancelBatch)
			})
			r.Post("/callbacks", h.HandleCallback)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// withLogger puts a logger tagged with the request id on the request
// context, where services pick it up through logctx.From.
func withLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := base.With("request_id", middleware.GetReqID(r.Context()))
			next.ServeHTTP(w, r.WithContext(logctx.WithLogger(r.Context(), l)))
		})
	}
}
