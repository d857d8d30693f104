package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opencode-ai/opencode/internal/apperror"
	"github.com/opencode-ai/opencode/internal/store"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// writeSuccess writes a success response.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeErr maps an error to the HTTP status its apperror.Code implies and
// writes it as an ErrorResponse. store.ErrNotFound (no taxonomy code of its
// own) maps to 404 directly; everything else goes through apperror.CodeOf.
func writeErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, string(apperror.CodeNotFound), "not found")
		return
	}
	code := apperror.CodeOf(err)
	status := statusForCode(code)
	writeError(w, status, string(code), err.Error())
}

func statusForCode(code apperror.Code) int {
	switch code {
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeInvalidRequest:
		return http.StatusBadRequest
	case apperror.CodeBusy:
		return http.StatusConflict
	case apperror.CodeCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
