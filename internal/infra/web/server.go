// File: internal/infra/web/server.go
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ai-stream-relay/internal/breaker"
	"ai-stream-relay/internal/usecase"
)

type Server struct {
	jobUC     usecase.JobUseCase
	providers usecase.ProviderRegistry
	breakers  *breaker.Registry
	auth      *AuthManager
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(
	jobUC usecase.JobUseCase,
	providers usecase.ProviderRegistry,
	breakers *breaker.Registry,
	auth *AuthManager,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "web").Logger()
	return &Server{
		jobUC:     jobUC,
		providers: providers,
		breakers:  breakers,
		auth:      auth,
		apiKey:    apiKey,
		log:       &l,
	}
}

// Routes builds the HTTP surface: the public job API, health and metrics, and
// the JWT-guarded admin endpoints.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", s.createJobHandler)
		r.Get("/jobs/{id}", s.getJobHandler)
		r.Delete("/jobs/{id}", s.cancelJobHandler)
		r.Get("/conversations/{id}/active", s.activeJobHandler)

		r.Post("/admin/login", s.loginHandler)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAdmin)
			r.Get("/admin/stats", s.statsHandler)
			r.Post("/admin/sweep", s.sweepHandler)
			r.Post("/admin/reap", s.reapHandler)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
