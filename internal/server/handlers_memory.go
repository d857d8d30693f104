package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/opencode/internal/apperror"
)

func (s *Server) listMemory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.GetMemory()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type putMemoryRequest struct {
	Value string `json:"value"`
}

func (s *Server) putMemory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req putMemoryRequest
	if !decodeJSONBody(r, &req) {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "invalid JSON body")
		return
	}
	if err := s.store.PutMemory(key, req.Value); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) deleteMemory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.store.DeleteMemory(key); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}
