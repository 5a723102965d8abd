// Package api provides the HTTP server for MeetingAssistant.
//
// It exposes a direct turn endpoint, read-only views of stored flows, profiles, receipts
// and responses, and mounts the Twilio webhook and the webchat WebSocket when configured.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/MeetingAssistant/internal/bot"
	"github.com/BTreeMap/MeetingAssistant/internal/messaging"
	"github.com/BTreeMap/MeetingAssistant/internal/store"
	"github.com/BTreeMap/MeetingAssistant/internal/webchat"
)

// Constants for HTTP server configuration
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds optional server components.
type Opts struct {
	Addr    string
	Twilio  *messaging.TwilioService
	Webchat *webchat.Handler
}

// Option configures the Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTwilioWebhook mounts POST /twilio/webhook on the given service.
func WithTwilioWebhook(svc *messaging.TwilioService) Option {
	return func(o *Opts) { o.Twilio = svc }
}

// WithWebchat mounts GET /webchat on the given handler.
func WithWebchat(h *webchat.Handler) Option {
	return func(o *Opts) { o.Webchat = h }
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	st    store.Store
	turns bot.TurnHandler
	opts  Opts
	http  *http.Server
}

// NewServer creates a Server. Both the store and the turn handler are required.
func NewServer(st store.Store, turns bot.TurnHandler, opts ...Option) (*Server, error) {
	if st == nil {
		return nil, errors.New("api: store is required")
	}
	if turns == nil {
		return nil, errors.New("api: turn handler is required")
	}
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{st: st, turns: turns, opts: cfg}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /turns", s.turnHandler)
	mux.HandleFunc("GET /conversations/{id}/flow", s.flowHandler)
	mux.HandleFunc("GET /users/{id}/profile", s.profileHandler)
	mux.HandleFunc("GET /receipts", s.receiptsHandler)
	mux.HandleFunc("GET /responses", s.responsesHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	if s.opts.Twilio != nil {
		mux.HandleFunc("POST /twilio/webhook", s.opts.Twilio.TwilioWebhookHandler)
	}
	if s.opts.Webchat != nil {
		mux.Handle("GET /webchat", s.opts.Webchat)
	}
	return mux
}

// Start serves HTTP until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}
	slog.Info("API server listening", "addr", s.opts.Addr, "twilio_webhook", s.opts.Twilio != nil, "webchat", s.opts.Webchat != nil)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes webchat sessions, and waits for handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.opts.Webchat != nil {
		s.opts.Webchat.Close()
	}
	if s.http == nil {
		return nil
	}
	slog.Info("API server shutting down")
	return s.http.Shutdown(ctx)
}
