// Package rest exposes the gateway to sync clients over HTTP.
//
// Every request names its account with the sync_adapter, account_name and
// account_type query parameters and its caller with the X-Syncgw-Caller
// header. Resource paths mirror gateway paths under /v1.
package rest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/entrybook/syncgw/internal/gateway"
	"github.com/entrybook/syncgw/internal/notify"
)

// CallerHeader names the calling application.
const CallerHeader = "X-Syncgw-Caller"

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: 127.0.0.1:8765)
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxBodyBytes caps request bodies, attachment uploads included.
	MaxBodyBytes int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8765",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		MaxBodyBytes: 32 << 20,
	}
}

// Server serves the gateway, backing files and the change stream.
type Server struct {
	config Config
	gw     *gateway.Gateway
	hub    *notify.Hub

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup

	logger *slog.Logger
}

// NewServer creates a server. hub may be nil, which disables /ws.
func NewServer(config Config, gw *gateway.Gateway, hub *notify.Hub, logger *slog.Logger) *Server {
	def := DefaultConfig()
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = def.MaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config: config,
		gw:     gw,
		hub:    hub,
		logger: logger.With("component", "rest"),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/{entity}", s.handleQuery)
	mux.HandleFunc("GET /v1/{entity}/{id}", s.handleQuery)
	mux.HandleFunc("POST /v1/{entity}", s.handleInsert)
	mux.HandleFunc("PATCH /v1/{entity}", s.handleUpdate)
	mux.HandleFunc("PATCH /v1/{entity}/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /v1/{entity}", s.handleDelete)
	mux.HandleFunc("DELETE /v1/{entity}/{id}", s.handleDelete)
	mux.HandleFunc("GET /v1/relatedto/{id}/targets", s.handleRelated)

	mux.HandleFunc("GET /v1/attachment/{id}/file", s.handleAttachmentRead)
	mux.HandleFunc("PUT /v1/attachment/{id}/file", s.handleAttachmentWrite)
	mux.HandleFunc("GET /files/{name}", s.handleFileRead)
	mux.HandleFunc("PUT /files/{name}", s.handleFileWrite)

	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.logRequests(mux)
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.mu.Lock()
	s.listener = ln
	s.server = srv
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()
	s.logger.Info("server stopped")
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrade on /ws.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps gateway error kinds to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, gateway.ErrUnknownResource), errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrMissingAccountScope):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrUnauthorizedCaller):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrInvalidRecurrenceRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gateway.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
