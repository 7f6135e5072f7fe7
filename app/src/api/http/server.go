package httpapi

import (
	"net/http"
	"strings"

	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"
	"head-monitor/app/src/shared/constants"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Server exposes the HTTP transport for the head monitor.
type Server struct {
	handler http.Handler
}

// NewServer constructs an HTTP server over the monitor status and the delay archive. delays may be nil.
func NewServer(status domain.StatusReader, delays domain.DelayArchive, logger *infra.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(correlationID)
	router.Use(infra.HTTPMiddleware)

	h := &handler{status: status, delays: delays, logger: logger}
	registerRoutes(router, h)

	return &Server{handler: router}
}

// Router returns the configured HTTP handler for reuse in tests or external HTTP servers.
func (s *Server) Router() http.Handler {
	return s.handler
}

// ServeHTTP allows Server to satisfy the http.Handler interface directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// correlationID reuses the caller's request id or generates one, and echoes it back.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(constants.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(constants.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(infra.WithCorrelationID(r.Context(), id)))
	})
}
