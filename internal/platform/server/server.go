package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vrcrugby/subgate/internal/platform/middleware"
	"github.com/vrcrugby/subgate/internal/platform/telemetry"
	"github.com/vrcrugby/subgate/internal/subscriptions"
	"github.com/vrcrugby/subgate/internal/webhook"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	SubscriptionHandler *subscriptions.Handler
	WebhookHandler      *webhook.Handler
	Metrics             *telemetry.Metrics
	Logger              *slog.Logger
	CORSAllowedOrigins  []string
}

type Server struct {
	httpServer *http.Server
	handler    http.Handler
	ready      bool
	logger     *slog.Logger
}

func New(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			ReadTimeout: 15 * time.Second,
			// Handlers wait on the remote API for up to its own timeout.
			WriteTimeout: 45 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		// Readiness reflects wiring only: the remote API is never pinged, and
		// cmd/subgate refuses to start without a client, so a running binary is ready.
		ready:  deps.SubscriptionHandler != nil && deps.WebhookHandler != nil,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.SubscriptionHandler != nil {
		deps.SubscriptionHandler.RegisterRoutes(mux)
	}
	if deps.WebhookHandler != nil {
		deps.WebhookHandler.RegisterRoutes(mux)
	}

	// Wrap mux with observability middleware
	var handler http.Handler = mux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	s.logger.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "mercadopago client not configured",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
