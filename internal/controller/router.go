package controller

import (
	"time"

	"github.com/cassiomorais/cardgateway/internal/application/checkout"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/config"
	"github.com/cassiomorais/cardgateway/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/cardgateway/internal/infrastructure/redis"
	customMW "github.com/cassiomorais/cardgateway/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	OrderRepo   order.Repository
	Port        checkout.PaymentGatewayPort
	Locks       *infraRedis.LockManager
	Dedup       *infraRedis.NotificationDedup
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
	Checkout    config.CheckoutConfig
	CORSConfig  config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	checkoutH := NewCheckoutController(
		deps.Port, deps.OrderRepo, deps.Locks, deps.Dedup,
		deps.Checkout, deps.Logger, deps.Metrics,
	)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", checkoutH.CreateOrder)
		r.Get("/orders/{orderID}", checkoutH.GetOrder)

		r.Post("/checkout/{orderID}/pay", checkoutH.Pay)

		r.Post("/orders/{orderID}/capture", checkoutH.Capture)
		r.Post("/orders/{orderID}/void", checkoutH.Void)
		r.Post("/orders/{orderID}/refund", checkoutH.Refund)
	})

	// Gateway-facing callbacks: the ACS posts step-up results, the hosted
	// checkout page returns via GET, and the gateway pushes notifications.
	r.Route("/gateway", func(r chi.Router) {
		r.Get("/return/{orderID}", checkoutH.Return)
		r.Post("/return/{orderID}", checkoutH.Return)
		r.Post("/notify", checkoutH.Notify)
	})

	return r
}
