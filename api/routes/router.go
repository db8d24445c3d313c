package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minalesh/marketplace-backend/api/controllers"
	"github.com/minalesh/marketplace-backend/api/middleware"
	checkoutsvc "github.com/minalesh/marketplace-backend/internal/checkout"
	internalorders "github.com/minalesh/marketplace-backend/internal/orders"
	"github.com/minalesh/marketplace-backend/internal/payments"
	"github.com/minalesh/marketplace-backend/pkg/config"
	"github.com/minalesh/marketplace-backend/pkg/db"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	"github.com/minalesh/marketplace-backend/pkg/logger"
	"github.com/minalesh/marketplace-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Checkout checkoutsvc.Service
	Orders   internalorders.Service
	Payments payments.Service
	Sweeper  controllers.ReservationSweeper
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Post("/checkout/intent", controllers.CreateCheckoutIntent(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
			r.Get("/{orderId}/events", controllers.OrderEvents(deps.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.Post("/{orderId}/intent", controllers.EnsurePaymentIntent(deps.Payments, logg))
			r.Post("/{orderId}/capture", controllers.CaptureOrder(deps.Payments, logg))
			r.Get("/{orderId}/capture", controllers.CaptureStatus(deps.Payments, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

		r.Post("/orders/{orderId}/status", controllers.UpdateOrderStatus(deps.Orders, logg))
		r.Post("/reservations/sweep", controllers.SweepReservations(deps.Sweeper, logg))
	})

	return r
}
