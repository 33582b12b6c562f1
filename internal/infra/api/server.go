// File: internal/infra/api/server.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ai-chat-session-manager/internal/domain"
	"ai-chat-session-manager/internal/domain/model"
	"ai-chat-session-manager/internal/infra/metrics"
	"ai-chat-session-manager/internal/usecase"
)

// Server exposes the session synchronizer to a local frontend. The API is a
// thin translation layer: every behavioral rule lives in the use case, the
// handlers only map errors to status codes.
type Server struct {
	uc  usecase.SessionUseCase
	log *zerolog.Logger
}

func NewServer(uc usecase.SessionUseCase, logger *zerolog.Logger) *Server {
	return &Server{uc: uc, log: logger}
}

// Routes builds the router. Middlewares that need wiring knobs (timeouts)
// are layered on by the caller via Chain.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/messages", s.handleSubmit)
		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions/new", s.handleNewSession)
		r.Post("/sessions/{id}/select", s.handleSelectSession)
		r.Patch("/sessions/{id}", s.handleRenameSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
	})
	return r
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.uc.Snapshot())
}

type submitRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IncSubmit("invalid")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.uc.Submit(r.Context(), req.Text); err != nil {
		metrics.IncSubmit(submitResult(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	metrics.IncSubmit("ok")
	writeJSON(w, http.StatusOK, s.uc.Snapshot())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.uc.Sessions(r.Context())
	if err != nil {
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	response := struct {
		Data []model.SessionInfo `json:"data"`
	}{Data: sessions}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	s.uc.NewSession(r.Context())
	metrics.IncReset()
	writeJSON(w, http.StatusOK, s.uc.Snapshot())
}

func (s *Server) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.uc.SelectSession(r.Context(), id); err != nil {
		metrics.IncSwitch(switchResult(err))
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	metrics.IncSwitch("ok")
	snap := s.uc.Snapshot()
	metrics.AddReplayTurns(countUserTurns(snap.Messages))
	writeJSON(w, http.StatusOK, snap)
}

func countUserTurns(msgs []model.Message) int {
	n := 0
	for _, m := range msgs {
		if m.IsUser {
			n++
		}
	}
	return n
}

type renameRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.uc.RenameSession(r.Context(), id, req.Title); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.uc.DeleteSession(r.Context(), id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrEmptyTitle):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCreateSession),
		errors.Is(err, domain.ErrLoadSession),
		errors.Is(err, domain.ErrCompletion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func submitResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrEmptyMessage):
		return "invalid"
	case errors.Is(err, domain.ErrCompletion):
		return "completion_error"
	default:
		return "error"
	}
}

func switchResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrLoadSession):
		return "load_error"
	default:
		return "error"
	}
}
