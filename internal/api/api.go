// Package api exposes the staff review surface over HTTP: token issuance for
// the two review roles and submission listing, approval, rejection and
// applicant notification.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/store"
)

// Notifier delivers review outcomes back to applicants over the chat
// transport.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, body string) error
}

// Opts holds API server configuration.
type Opts struct {
	Addr               string
	JWTSecret          string
	DoctorPassword     string
	AccountantPassword string
	TokenTTL           time.Duration
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithJWTSecret sets the token signing secret.
func WithJWTSecret(secret string) Option {
	return func(o *Opts) { o.JWTSecret = secret }
}

// WithRoleCredentials sets the doctor and accountant passwords.
func WithRoleCredentials(doctor, accountant string) Option {
	return func(o *Opts) {
		o.DoctorPassword = doctor
		o.AccountantPassword = accountant
	}
}

// WithTokenTTL overrides the issued token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TokenTTL = ttl }
}

// Server is the staff review HTTP server.
type Server struct {
	opts     Opts
	store    store.Store
	notifier Notifier
	httpSrv  *http.Server
}

// NewServer wires the review API around the submission store and the chat
// transport used for applicant notifications.
func NewServer(st store.Store, notifier Notifier, opts ...Option) (*Server, error) {
	o := Opts{
		Addr:     ":8080",
		TokenTTL: 12 * time.Hour,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.JWTSecret == "" {
		return nil, fmt.Errorf("API server requires a JWT secret")
	}
	s := &Server{opts: o, store: st, notifier: notifier}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", s.handleToken)
	mux.Handle("GET /patients", s.requireRole(http.HandlerFunc(s.handleList)))
	mux.Handle("GET /patients/{id}", s.requireRole(http.HandlerFunc(s.handleGet)))
	mux.Handle("POST /patients/{id}/approve", s.requireRole(http.HandlerFunc(s.handleApprove)))
	mux.Handle("POST /patients/{id}/reject", s.requireRole(http.HandlerFunc(s.handleReject)))
	mux.Handle("POST /patients/{id}/notify", s.requireRole(http.HandlerFunc(s.handleNotify)))
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:         o.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	slog.Info("api.Server.Start: listening", "addr", s.opts.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("api.writeJSONResponse: encoding failed", "error", err)
	}
}
