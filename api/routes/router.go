package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fulfillment-backend/api/controllers"
	allocationcontrollers "github.com/angelmondragon/fulfillment-backend/api/controllers/allocations"
	ordercontrollers "github.com/angelmondragon/fulfillment-backend/api/controllers/orders"
	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/internal/allocation"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

// Dependencies groups what the router hands to controllers. RedisPinger and
// Idempotency stay nil when Redis is not configured.
type Dependencies struct {
	DB                controllers.Pinger
	RedisPinger       controllers.Pinger
	Idempotency       redis.IdempotencyStore
	AllocationService allocation.Service
	OrdersService     orders.Service
	Metrics           http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.RedisPinger))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenant(logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Get("/ping", controllers.TenantPing())

		r.Route("/allocations", func(r chi.Router) {
			r.Get("/", allocationcontrollers.List(deps.AllocationService, logg))
			r.Post("/{allocationId}/allocate", allocationcontrollers.Allocate(deps.AllocationService, logg))
			r.Post("/{allocationId}/release", allocationcontrollers.Release(deps.AllocationService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(deps.OrdersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.OrdersService, logg))
			r.Put("/{orderId}/lines", ordercontrollers.ReplaceLines(deps.OrdersService, logg))
			r.Post("/{orderId}/status", ordercontrollers.UpdateStatus(deps.OrdersService, logg))
			r.Post("/{orderId}/allocate", ordercontrollers.Allocate(deps.OrdersService, logg))
			r.Post("/{orderId}/release", ordercontrollers.Release(deps.OrdersService, logg))
		})
	})

	return r
}
