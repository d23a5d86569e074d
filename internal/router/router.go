package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/orderdesk/internal/apiclient"
	"github.com/kiwari-pos/orderdesk/internal/config"
	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/handler"
	"github.com/kiwari-pos/orderdesk/internal/metrics"
	mw "github.com/kiwari-pos/orderdesk/internal/middleware"
	"github.com/kiwari-pos/orderdesk/internal/ws"
	"github.com/sirupsen/logrus"
)

// Deps are the components the router mounts.
type Deps struct {
	Drafts    *handler.DraftHandler
	Orders    *handler.OrderHandler
	Products  *handler.ProductHandler
	Alerts    *handler.AlertHandler
	Reference *handler.ReferenceHandler
	Hub       *ws.Hub
	Metrics   *metrics.Metrics
	Log       logrus.FieldLogger
}

// New creates a Chi router with all application routes wired up.
// Applies authentication and feature-based middleware as needed.
func New(cfg *config.Config, d Deps) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(d.Log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", d.Metrics.Handler())

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(d.Hub, cfg.JWTSecret, d.Log, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(forwardToken)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireFeature(enum.FeatureOrders))
			r.Route("/drafts", d.Drafts.RegisterRoutes)
			r.Route("/orders", d.Orders.RegisterRoutes)
			r.Route("/reference", d.Reference.RegisterRoutes)
			r.Route("/products", d.Products.RegisterRoutes)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireFeature(enum.FeatureDashboard))
			r.Get("/alerts", d.Alerts.List)
		})
	})

	d.Log.Info("router initialized")
	return r
}

// forwardToken makes the caller's bearer token the credential for remote API
// calls made on behalf of this request.
func forwardToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := apiclient.WithToken(r.Context(), mw.TokenFromContext(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
