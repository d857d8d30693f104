package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/opencode/internal/apperror"
	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/pkg/types"
)

func (s *Server) listPendingPermissions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	pending, err := s.store.ListPendingPermissionRequests(sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

type resolvePermissionRequest struct {
	Status string `json:"status"`
	Scope  string `json:"scope"`
}

func (s *Server) resolvePermission(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	var req resolvePermissionRequest
	if !decodeJSONBody(r, &req) {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "invalid JSON body")
		return
	}

	status := types.PermissionStatus(req.Status)
	if status != types.PermissionApproved && status != types.PermissionDenied {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "status must be \"approved\" or \"denied\"")
		return
	}
	scope := types.PermissionScope(req.Scope)
	switch scope {
	case types.ScopeOnce, types.ScopeSession, types.ScopeAlways:
	case "":
		scope = types.ScopeOnce
	default:
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "scope must be once, session, or always")
		return
	}

	if err := s.permissions.Resolve(requestID, status, scope); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

type permissionModeRequest struct {
	Mode string `json:"mode"`
}

// getPermissionMode reports the durable global policy for every tool in the
// default tool set.
func (s *Server) getPermissionMode(w http.ResponseWriter, r *http.Request) {
	policies, err := s.store.GetToolPolicies()
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make(map[string]types.Policy, len(tool.FullToolIDs))
	for _, id := range tool.FullToolIDs {
		if p, ok := policies[id]; ok {
			out[id] = p
		} else {
			out[id] = types.PolicyAsk
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// setPermissionMode bulk-sets every tool's durable global policy to "ask"
// or "allow" in one call.
func (s *Server) setPermissionMode(w http.ResponseWriter, r *http.Request) {
	var req permissionModeRequest
	if !decodeJSONBody(r, &req) {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "invalid JSON body")
		return
	}
	var policy types.Policy
	switch req.Mode {
	case "ask":
		policy = types.PolicyAsk
	case "allow":
		policy = types.PolicyAllow
	default:
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "mode must be \"ask\" or \"allow\"")
		return
	}
	for _, id := range tool.FullToolIDs {
		if id == "spawn_subagent" {
			continue
		}
		if err := s.store.UpsertToolPolicy(id, policy); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeSuccess(w)
}
