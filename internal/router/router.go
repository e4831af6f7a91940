package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/jikoni-pos/api/internal/config"
	"github.com/jikoni-pos/api/internal/database"
	"github.com/jikoni-pos/api/internal/enum"
	"github.com/jikoni-pos/api/internal/handler"
	mw "github.com/jikoni-pos/api/internal/middleware"
	"github.com/jikoni-pos/api/internal/service"
	"github.com/jikoni-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication, hotel scoping, and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, log *logrus.Logger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/hotels/{hid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	notifier := ws.NewNotifier(hub)

	cartService := service.NewCartService(pool, func(db database.DBTX) service.CartStore {
		return database.New(db)
	}, notifier, log)
	lifecycleService := service.NewLifecycleService(queries, pool, func(db database.DBTX) service.LifecycleStore {
		return database.New(db)
	}, notifier, log)
	settlementService := service.NewSettlementService(pool, func(db database.DBTX) service.SettlementStore {
		return database.New(db)
	}, notifier, log)
	redistributionService := service.NewRedistributionService(pool, func(db database.DBTX) service.RedistributionStore {
		return database.New(db)
	}, notifier, log)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Hotel-scoped routes
		r.Route("/hotels/{hid}", func(r chi.Router) {
			r.Use(mw.RequireHotel)

			// Menu: writes are management-only, reads open to all staff
			menuHandler := handler.NewMenuHandler(queries)
			r.Route("/menu", func(r chi.Router) {
				r.Get("/", menuHandler.List)
				r.With(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager)).Post("/", menuHandler.Create)
			})

			// Orders
			orderHandler := handler.NewOrderHandler(cartService, lifecycleService, queries)
			r.Route("/orders", func(r chi.Router) {
				orderHandler.RegisterRoutes(r)

				// Payments (nested under orders)
				paymentHandler := handler.NewPaymentHandler(settlementService, redistributionService)
				r.Route("/{id}/payments", paymentHandler.RegisterRoutes)
			})

			// Debt ledger view
			debtHandler := handler.NewDebtHandler(queries)
			r.Route("/debts", debtHandler.RegisterRoutes)
		})
	})

	log.Info("router initialized with all handlers")
	return r
}
