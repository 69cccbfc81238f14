package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthFunc supplies the current health document served on /healthz.
type HealthFunc func(ctx context.Context) (status int, body interface{})

// JSONFunc produces the document for an extra read-only ops route.
type JSONFunc func(ctx context.Context) interface{}

// Route is an additional GET endpoint on the ops router.
type Route struct {
	Pattern string
	Handler JSONFunc
}

// Server is the ops HTTP surface: liveness, metrics, and a few
// read-only inspection routes.
type Server struct {
	http *http.Server
}

// New builds the ops server on the given port
func New(port string, registry *prometheus.Registry, health HealthFunc, routes ...Route) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status, body := health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	for _, route := range routes {
		handler := route.Handler
		router.Get(route.Pattern, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(handler(r.Context()))
		})
	}

	return &Server{
		http: &http.Server{
			Addr:    ":" + port,
			Handler: router,
		},
	}
}

// Run serves until the listener fails or Stop is called
func (s *Server) Run(logger *zap.Logger) {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ERR_SERVE_HTTP", zap.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
