package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"linka/internal/linker"
	"linka/internal/models"
	"linka/internal/provider"
)

// Server is the thin HTTP surface over the linker service. Callers poll
// GET /api/links/{id} to observe attempt progress.
type Server struct {
	service *linker.Service
	log     zerolog.Logger
}

func NewServer(service *linker.Service, log zerolog.Logger) *Server {
	return &Server{service: service, log: log.With().Str("component", "http").Logger()}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/links", s.handleStartLink)
	mux.HandleFunc("GET /api/links/{id}", s.handleGetLink)
	mux.HandleFunc("POST /api/links/{id}/mfa", s.handleSubmitForm)
	mux.HandleFunc("POST /api/links/{id}/refresh", s.handleRefreshLink)
	mux.HandleFunc("DELETE /api/links/{id}", s.handleDeleteLink)
	mux.HandleFunc("GET /health", handleHealth)
	return s.logging(mux)
}

type startLinkRequest struct {
	UserID       string              `json:"userId"`
	ProviderID   string              `json:"providerId"`
	ProviderName string              `json:"providerName"`
	Form         *provider.LoginForm `json:"form"`
}

type linkResponse struct {
	ID           string              `json:"id"`
	ProviderID   string              `json:"providerId"`
	ProviderName string              `json:"providerName"`
	Status       models.LinkStatus   `json:"status"`
	LoginForm    *provider.LoginForm `json:"loginForm,omitempty"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

func toLinkResponse(link *models.AccountLink) linkResponse {
	resp := linkResponse{
		ID:           link.ID,
		ProviderID:   link.ProviderID,
		ProviderName: link.ProviderName,
		Status:       link.Status,
		UpdatedAt:    link.UpdatedAt,
	}
	// The pending MFA form is only surfaced while the attempt waits on it.
	if link.Status.MFA() {
		if pa := link.SourceOfTruth.ProviderAccount; pa != nil {
			resp.LoginForm = pa.LoginForm
		}
	}
	return resp
}

func (s *Server) handleStartLink(w http.ResponseWriter, r *http.Request) {
	var req startLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.ProviderID == "" {
		writeError(w, http.StatusBadRequest, "userId and providerId are required")
		return
	}

	link, err := s.service.StartLink(r.Context(), req.UserID, req.ProviderID, req.ProviderName, req.Form)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toLinkResponse(link))
}

func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	link, err := s.service.GetLink(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	var form provider.LoginForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.service.SubmitLoginForm(r.Context(), r.PathValue("id"), &form); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshLink(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.RefreshLink(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteLink(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, linker.ErrLinkNotFound):
		writeError(w, http.StatusNotFound, "account link not found")
	case errors.Is(err, linker.ErrDuplicateAttempt):
		writeError(w, http.StatusConflict, "a linking attempt is already in progress")
	case errors.Is(err, linker.ErrNoPendingForm):
		writeError(w, http.StatusConflict, "link has no pending login form")
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request handled")
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
