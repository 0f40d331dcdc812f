// Package server exposes the scan and account API over HTTP. Every
// owner-scoped route authenticates the bearer api key itself and passes the
// resolved user down explicitly.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mikey/email-guardian/internal/core"
)

// Options carries the server's transport configuration.
type Options struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// SecondaryConfigured and StorageType feed the health endpoint.
	SecondaryConfigured bool
	StorageType         string
}

// Server is the HTTP front end.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	scans      *core.ScanService
	creds      *core.CredentialService

	secondaryConfigured bool
	storageType         string
	shutdownTimeout     time.Duration
}

// New creates a new HTTP server.
func New(scans *core.ScanService, creds *core.CredentialService, logger *zap.Logger, opts Options) *Server {
	s := &Server{
		logger:              logger,
		scans:               scans,
		creds:               creds,
		secondaryConfigured: opts.SecondaryConfigured,
		storageType:         opts.StorageType,
		shutdownTimeout:     opts.ShutdownTimeout,
	}
	s.httpServer = &http.Server{
		Addr:         opts.ListenAddress,
		Handler:      s.routes(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/{id:[0-9]+}", s.handleScanDetails).Methods(http.MethodGet)
	api.HandleFunc("/scan/{id:[0-9]+}", s.handleScanDelete).Methods(http.MethodDelete)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/cleanup", s.handleCleanup).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// Start begins serving in the background. Listen errors after startup are
// logged rather than returned.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
