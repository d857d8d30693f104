package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/opencode/internal/apperror"
)

type startTurnRequest struct {
	Content string `json:"content"`
}

func (s *Server) startTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}

	var req startTurnRequest
	if !decodeJSONBody(r, &req) || req.Content == "" {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "content is required")
		return
	}

	turn, err := s.scheduler.StartTurn(r.Context(), sess, req.Content)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, turn)
}

func (s *Server) cancelTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !s.scheduler.Cancel(sessionID) {
		writeError(w, http.StatusConflict, string(apperror.CodeNotFound), "no active turn for this session")
		return
	}
	writeSuccess(w)
}

func (s *Server) listTurns(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	turns, err := s.store.ListTurns(sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) getTurn(w http.ResponseWriter, r *http.Request) {
	turn, err := s.store.GetTurn(chi.URLParam(r, "turnID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) listSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.store.ListSteps(chi.URLParam(r, "turnID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}
