package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"callinsight-backend/internal/handlers"
	"callinsight-backend/internal/logger"
	"callinsight-backend/internal/middleware"
)

func New(
	auth *middleware.Authenticator,
	activityHandler *handlers.ActivityHandler,
	analysisHandler *handlers.AnalysisHandler,
	customerHandler *handlers.CustomerHandler,
	userHandler *handlers.UserHandler,
	uploadHandler *handlers.UploadHandler,
	log *logger.Logger,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(frontendURL))

	// Activity writes: 120 req/min per caller. Uploads: 10 req/min per caller.
	activityLimiter := middleware.NewRateLimiter(120, time.Minute)
	uploadLimiter := middleware.NewRateLimiter(10, time.Minute)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/auth/session", handlers.Session)

		// ──── Activity Routes ────
		r.Route("/activity", func(r chi.Router) {
			r.With(activityLimiter.Middleware).Post("/", activityHandler.Record)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/", activityHandler.List)
				r.Get("/stats", activityHandler.Stats)
				r.Get("/anomalies", activityHandler.Anomalies)
				r.Get("/user-stats", activityHandler.UserStats)
				r.Get("/export", activityHandler.Export)
			})
		})

		// ──── Analysis Routes ────
		r.Route("/analyses", func(r chi.Router) {
			r.Get("/", analysisHandler.List)
			r.Post("/", analysisHandler.Create)
			r.Get("/stats", analysisHandler.Stats)
			r.Get("/export", analysisHandler.Export)
			r.Get("/{id}", analysisHandler.Get)
			r.Put("/{id}", analysisHandler.Update)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/batch", analysisHandler.Batch)
				r.Delete("/{id}", analysisHandler.Delete)
			})
		})

		// ──── Customer Routes ────
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", customerHandler.List)
			r.Post("/", customerHandler.Create)
			r.Get("/{id}", customerHandler.Get)
			r.Put("/{id}", customerHandler.Update)
			r.With(middleware.RequireAdmin).Delete("/{id}", customerHandler.Delete)
		})

		// ──── Recording Upload ────
		r.With(uploadLimiter.Middleware).Post("/upload", uploadHandler.Upload)

		// ──── Admin User Directory ────
		r.Route("/admin/users", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/", userHandler.List)
			r.Post("/", userHandler.Create)
			r.Get("/{id}", userHandler.Get)
			r.Put("/{id}", userHandler.Update)
			r.Delete("/{id}", userHandler.Delete)
			r.Post("/{id}/reset-password", userHandler.ResetPassword)
		})
	})

	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	)
}
