package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lifecart/orderflow-backend/api/controllers"
	"github.com/lifecart/orderflow-backend/api/middleware"
	cartsvc "github.com/lifecart/orderflow-backend/internal/cart"
	"github.com/lifecart/orderflow-backend/internal/catalog"
	ordersvc "github.com/lifecart/orderflow-backend/internal/orders"
	"github.com/lifecart/orderflow-backend/pkg/config"
	"github.com/lifecart/orderflow-backend/pkg/db"
	"github.com/lifecart/orderflow-backend/pkg/logger"
	"github.com/lifecart/orderflow-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	catalogRepo catalog.Repository,
	cartService cartsvc.Service,
	orderService ordersvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
		middleware.Session(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ProductsList(catalogRepo, logg))
		r.Get("/{id}", controllers.ProductGet(catalogRepo, logg))
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.RequireSession(logg))
		r.Get("/", controllers.CartGet(cartService, logg))
		r.Post("/items", controllers.CartAddItem(cartService, logg))
		r.Put("/items/{itemID}", controllers.CartUpdateItem(cartService, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/", controllers.OrdersList(orderService, logg))
		r.Get("/{id}", controllers.OrderGet(orderService, logg))
		r.With(middleware.RequireSession(logg)).Post("/", controllers.OrderCreate(orderService, logg))
	})

	return r
}
