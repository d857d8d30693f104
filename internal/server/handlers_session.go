package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/opencode/internal/apperror"
)

type createSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	decodeJSONBody(r, &req) // missing/empty body is fine; CreateSession defaults the title

	sess, err := s.store.CreateSession(req.Title)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	turns, err := s.store.ListTurns(sess.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"turns":   turns,
	})
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) renameSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req renameSessionRequest
	if !decodeJSONBody(r, &req) {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "invalid JSON body")
		return
	}
	if err := s.store.RenameSession(sessionID, req.Title); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.scheduler.DeleteSession(sessionID)
	s.permissions.ClearSession(sessionID)
	if err := s.store.DeleteSession(sessionID); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) getModelOverride(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"model": sess.ModelOverride})
}

type setModelRequest struct {
	Model string `json:"model"`
}

func (s *Server) setModelOverride(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req setModelRequest
	if !decodeJSONBody(r, &req) {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "invalid JSON body")
		return
	}
	if err := s.store.SetModelOverride(sessionID, req.Model); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) clearModelOverride(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.store.SetModelOverride(sessionID, ""); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}
