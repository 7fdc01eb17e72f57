package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/assurnet/vigil/internal/domain"
	"github.com/assurnet/vigil/internal/notify"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server around an assembled handler. The hub
// is optional; passing nil disables the websocket endpoint.
func NewServer(cfg domain.ServerConfig, handler *Handler, hub *notify.Hub) *Server {
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// WebSocket notification stream
	if hub != nil {
		router.Get("/ws", hub.ServeHTTP)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/fraud", func(r chi.Router) {
			// Consensus prediction
			r.Post("/predict", handler.Predict)

			r.Get("/health", handler.Health)
			r.Get("/statistics", handler.Statistics)

			// Alert lifecycle
			r.Post("/alerts", handler.CreateAlert)
			r.Get("/alerts", handler.ListAlerts)
			r.Get("/alerts/{id}", handler.GetAlert)
			r.Patch("/alerts/{id}/status", handler.UpdateAlertStatus)

			// Fraud cases
			r.Get("/cases", handler.ListCases)
			r.Post("/cases/record", handler.RecordCase)
			r.Patch("/cases/{id}", handler.ReviewCase)
		})

		// Rule-based claim scoring
		r.Post("/claims/score", handler.ScoreClaim)

		// Claim rule management
		r.Get("/claim-rules", handler.ListClaimRules)
		r.Post("/claim-rules", handler.CreateClaimRule)
		r.Post("/claim-rules/reload", handler.ReloadClaimRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
