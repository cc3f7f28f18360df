package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"insights-service/internal/token"
	"insights-service/internal/util"
)

// HealthFunc reports per-dependency status; a non-empty error set maps
// to 503.
type HealthFunc func(ctx context.Context) map[string]error

// NewRouter assembles the chi router with the full middleware stack
// and mounts every API route.
func NewRouter(
	authHandler *AuthHandler,
	analyticsHandler *AnalyticsHandler,
	issuer *token.Issuer,
	health HealthFunc,
	logger *zap.Logger,
) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler(health))

	gate := Gate(issuer)
	optionalGate := OptionalGate(issuer)

	router.Route("/api", func(r chi.Router) {
		authHandler.RegisterRoutes(r, gate)
		analyticsHandler.RegisterRoutes(r, gate, optionalGate)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse(errors.New("endpoint not found"), "Endpoint not found"))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse(errors.New("method not allowed"), "Method not allowed"))
	})

	return router
}

func healthHandler(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dependencies := make(map[string]string)
		healthy := true
		for name, err := range health(ctx) {
			if err != nil {
				dependencies[name] = err.Error()
				healthy = false
			} else {
				dependencies[name] = "ok"
			}
		}

		status := http.StatusOK
		state := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}

		writeJSON(w, status, map[string]interface{}{
			"status":       state,
			"service":      "insights-service",
			"dependencies": dependencies,
		})
	}
}

// LoggerMiddleware logs every HTTP request with status and latency.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
