package httpserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/pool"
)

// Executor is the execution boundary the HTTP layer depends on,
// implemented by pool.Dispatcher
type Executor interface {
	Execute(ctx context.Context, req pool.ExecuteRequest) (pool.ExecuteResult, error)
}

// Server is the authenticated HTTP API over the session pool
type Server struct {
	config   *config.Config
	logger   *zap.Logger
	pool     *pool.SessionPool
	executor Executor
	router   chi.Router
	http     *http.Server
}

// New creates a new Server
func New(cfg *config.Config, logger *zap.Logger, sessionPool *pool.SessionPool, executor Executor) *Server {
	s := &Server{
		config:   cfg,
		logger:   logger,
		pool:     sessionPool,
		executor: executor,
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Unauthenticated service banner
	r.Get("/", s.handleRoot)

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearerToken)
		r.Use(jsonContentType)

		r.Get("/health", s.handleHealth)
		r.Get("/languages", s.handleLanguages)
		r.Get("/pool/stats", s.handlePoolStats)
		r.Post("/execute", s.handleExecute)
		r.Post("/session/create", s.handleCreateSession)
		r.Delete("/session/{id}", s.handleCloseSession)
	})
}

// Router exposes the configured routes, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// requireBearerToken rejects requests whose Authorization header does not
// carry the configured bearer token
func (s *Server) requireBearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Auth.Token)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusUnauthorized, "invalid authentication token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonContentType sets Content-Type to application/json for API routes
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins listening on the configured port
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Server.HTTPPort)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting HTTP API", zap.String("addr", addr))
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP API")
	return s.http.Shutdown(ctx)
}
