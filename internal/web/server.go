// Package web provides the HTTP API and the import history page.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/config"
	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
	"github.com/JonMunkholm/VehicleTaxonomy/internal/web/middleware"
)

// Server is the HTTP server for the taxonomy service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	limiter       *rateLimiter
	importLimiter *rateLimiter
}

// NewServer creates a Server with its routes and middleware installed.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.limiter = newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.importLimiter = newRateLimiter(cfg.Rate.ImportLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))
	if s.limiter != nil {
		s.router.Use(s.limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/imports", s.handleImportsPage)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))

		// Imports carry their own timeout and a stricter rate limit.
		r.Route("/data-import", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if s.importLimiter != nil {
					r.Use(s.importLimiter.middleware)
				}
				r.Post("/taxonomy", s.handleImport(core.ImportModeRun))
				r.Post("/taxonomy/validate", s.handleImport(core.ImportModeValidate))
			})
			r.Get("/jobs", s.handleListJobs)
			r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)
			r.Get("/history", s.handleImportHistory)
		})

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

			r.Route("/makes", func(r chi.Router) {
				r.Get("/", s.handleListMakes)
				r.Post("/", s.handleAddMake)
				r.Get("/is-unique", s.handleIsMakeUnique)
				r.Delete("/{makeID}", s.handleDeleteMake)

				r.Route("/{makeID}/models", func(r chi.Router) {
					r.Get("/", s.handleListModels)
					r.Post("/", s.handleAddModel)
					r.Get("/is-unique", s.handleIsModelUnique)
					r.Delete("/{modelID}", s.handleDeleteModel)

					r.Route("/{modelID}/variants", func(r chi.Router) {
						r.Get("/", s.handleListVariants)
						r.Post("/", s.handleAddVariant)
						r.Get("/is-unique", s.handleIsVariantUnique)
						r.Delete("/{variantID}", s.handleDeleteVariant)
					})
				})
			})
		})
	})
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server starting", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
		s.importLimiter.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.ImportLimiterStatus(),
	})
}

// securityHeaders adds the hardening headers to every response.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; frame-ancestors 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v with the given status. Encoding errors are only
// logged since the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}

// writeCommand writes a command envelope: 200 when valid, 400 otherwise.
func writeCommand[T any](w http.ResponseWriter, resp core.CommandResponse[T]) {
	status := http.StatusOK
	if !resp.IsValid {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}
