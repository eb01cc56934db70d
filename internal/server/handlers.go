package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/easeaico/project-nudge/internal/agent"
	"github.com/easeaico/project-nudge/internal/traits"
)

const (
	maxBodyBytes = 64 << 10
	maxLimit     = 100
)

type turnRequest struct {
	UserID  string `json:"user_id" validate:"required,max=128"`
	Message string `json:"message" validate:"required,max=8000"`
}

type traitRequest struct {
	Value any `json:"value"`
}

type editRequest struct {
	Content string `json:"content" validate:"required,max=8000"`
}

type traitsResponse struct {
	UserID string        `json:"user_id"`
	Traits traits.Traits `json:"traits"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.cfg.Version,
		"uptime":    time.Since(s.started).Seconds(),
		"generator": s.coach != nil && s.coach.Enabled(),
	})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	res, err := s.pipeline.Turn(r.Context(), req.UserID, req.Message)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if s.coach == nil {
		handleError(w, r, agent.ErrNoGenerator)
		return
	}
	reply, err := s.coach.Chat(r.Context(), req.UserID, req.Message)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxLimit {
			writeError(w, r, http.StatusBadRequest, codeBadRequest, "limit must be an integer between 0 and 100", nil)
			return
		}
		limit = n
	}
	ranked, err := s.pipeline.Context(r.Context(), userID, limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "memories": ranked})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	entries, err := s.pipeline.History(r.Context(), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "entries": entries})
}

func (s *Server) handleResetUser(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.ResetUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTraits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	tr, err := s.pipeline.Traits(r.Context(), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, traitsResponse{UserID: userID, Traits: tr})
}

func (s *Server) handleSetTrait(w http.ResponseWriter, r *http.Request) {
	var req traitRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "value is required", nil)
		return
	}
	userID := chi.URLParam(r, "userID")
	key := strings.ToLower(chi.URLParam(r, "key"))
	if err := s.pipeline.SetTrait(r.Context(), userID, key, req.Value); err != nil {
		handleError(w, r, err)
		return
	}
	tr, err := s.pipeline.Traits(r.Context(), userID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, traitsResponse{UserID: userID, Traits: tr})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.StartSession(r.Context(), chi.URLParam(r, "userID")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEditMemory(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	entry, err := s.pipeline.EditMemory(r.Context(), chi.URLParam(r, "entryID"), req.Content)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.DeleteMemory(r.Context(), chi.URLParam(r, "entryID")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
