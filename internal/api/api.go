// Package api provides HTTP handlers and the main API server logic for SafeBot.
//
// It exposes RESTful endpoints for the verification web form, incident
// submission and triage, and the admin dashboard login. The API integrates
// with the store, verification gate, and conversation engine modules.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/campussafe/safebot/internal/models"
	"github.com/campussafe/safebot/internal/store"
	"github.com/campussafe/safebot/internal/verify"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// VerificationNotifier receives the outcome of the verification handshake so
// the conversation engine can update the chat.
type VerificationNotifier interface {
	OnVerified(ctx context.Context, chatID string, identity *models.StudentInfo) error
	OnRevoked(ctx context.Context, chatID string) error
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr      string
	JWTSecret string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithJWTSecret sets the HMAC secret for admin session tokens.
func WithJWTSecret(secret string) Option {
	return func(o *Opts) { o.JWTSecret = secret }
}

// Server hosts the SafeBot HTTP API.
type Server struct {
	addr       string
	jwtSecret  []byte
	st         store.Store
	gate       *verify.Gate
	notifier   VerificationNotifier
	httpServer *http.Server
}

// NewServer creates an API server over the given store and verification gate.
func NewServer(st store.Store, gate *verify.Gate, notifier VerificationNotifier, opts ...Option) (*Server, error) {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret must be provided")
	}
	return &Server{
		addr:      cfg.Addr,
		jwtSecret: []byte(cfg.JWTSecret),
		st:        st,
		gate:      gate,
		notifier:  notifier,
	}, nil
}

// routes builds the request multiplexer.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/api/incidents", s.incidentsHandler)
	mux.HandleFunc("/api/incidents/", s.incidentHandler)
	mux.HandleFunc("/api/auth/create-session", s.createSessionHandler)
	mux.HandleFunc("/api/auth/verify-student", s.verifyStudentHandler)
	mux.HandleFunc("/api/auth/confirm-verification", s.confirmVerificationHandler)
	mux.HandleFunc("/api/auth/verification-status/", s.verificationStatusHandler)
	mux.HandleFunc("/api/auth/revoke-verification", s.revokeVerificationHandler)
	mux.HandleFunc("/api/admin/login", s.adminLoginHandler)
	return mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Server.Start: API listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server.Start: listener failed", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	slog.Info("Server.Shutdown: stopping API")
	return s.httpServer.Shutdown(ctx)
}
