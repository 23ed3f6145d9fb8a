package server

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"stackbot-deployment/internal/config"
	"stackbot-deployment/internal/github"
	"stackbot-deployment/internal/handlers"
	"stackbot-deployment/internal/logger"
)

type Server struct {
	config  *config.Config
	handler *handlers.Handler
	router  *mux.Router
	httpSrv *http.Server
	nrApp   *newrelic.Application
	logger  *logrus.Entry
}

func NewServer(cfg *config.Config, db *sql.DB, nrApp *newrelic.Application, dispatcher handlers.Dispatcher) *Server {
	serverLogger := logger.WithModule("server")

	s := &Server{
		config:  cfg,
		handler: handlers.NewHandler(db, dispatcher, nrApp),
		router:  mux.NewRouter(),
		nrApp:   nrApp,
		logger:  serverLogger,
	}
	s.httpSrv = &http.Server{Addr: ":" + cfg.Port, Handler: s.router}

	if cfg.WebhookSecret == "" {
		serverLogger.Warn("WEBHOOK_SECRET is not set, webhook signatures will not be verified")
	}

	s.setupRoutes()
	return s
}

// Router exposes the routes for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc(newrelic.WrapHandleFunc(s.nrApp, "/health", s.handler.Health)).Methods("GET")

	protectedRouter := s.router.PathPrefix("").Subrouter()
	protectedRouter.Use(s.signatureMiddleware)
	protectedRouter.HandleFunc(newrelic.WrapHandleFunc(s.nrApp, "/webhook", s.handler.Webhook)).Methods("POST")
}

func (s *Server) signatureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.WebhookSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if !github.ValidSignature(s.config.WebhookSecret, body, r.Header.Get("X-Hub-Signature-256")) {
			s.logger.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"method": r.Method,
				"ip":     r.RemoteAddr,
			}).Warn("Invalid webhook signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.config.Port).Info("Server starting")
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight stack actions.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.handler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Shutdown deadline reached with stack actions still running")
	}
	return err
}
