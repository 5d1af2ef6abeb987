// Package server exposes the engine and session store over HTTP: a
// streaming chat endpoint plus session management.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/codeassist/codeassist/internal/config"
	"github.com/codeassist/codeassist/internal/engine"
	"github.com/codeassist/codeassist/internal/fault"
	"github.com/codeassist/codeassist/internal/log"
)

// Server wires the HTTP surface to the engine.
type Server struct {
	engine   *engine.Engine
	settings config.Settings
	server   *http.Server
}

// New creates a Server listening on settings.Addr.
func New(settings config.Settings, eng *engine.Engine) *Server {
	s := &Server{
		engine:   eng,
		settings: settings,
	}
	s.server = &http.Server{
		Addr:    settings.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat/smart-chat-v2", s.handleChat)
	mux.HandleFunc("GET /sessions/list", s.handleSessionList)
	mux.HandleFunc("GET /sessions/load/{task_id}", s.handleSessionLoad)
	mux.HandleFunc("POST /sessions/toggle-favorite/{task_id}", s.handleToggleFavorite)
	mux.HandleFunc("POST /sessions/delete/{task_id}", s.handleSessionDelete)

	return corsMiddleware(mux)
}

// ListenAndServe runs the server until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	log.Logger().Info("server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusCanceled is the nginx convention for client-closed requests.
const statusCanceled = 499

// statusOf maps a fault kind to an HTTP status code.
func statusOf(err error) int {
	switch fault.KindOf(err) {
	case fault.InvalidPath, fault.InvalidParameters:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.ModelFailure:
		return http.StatusBadGateway
	case fault.Cancelled:
		return statusCanceled
	case fault.BudgetExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	if kind == "" {
		kind = fault.IOError
	}
	writeJSON(w, statusOf(err), map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}
