package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const defaultEventPageSize = 500

// listEvents serves a one-shot replay window; clients that want to keep
// following use /event (SSE) instead.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := queryInt(r, "limit", defaultEventPageSize)

	if sinceSeq := r.URL.Query().Get("since_seq"); sinceSeq != "" {
		events, err := s.store.SessionEventsSinceSeq(sessionID, queryInt64(r, "since_seq", 0), limit)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	events, err := s.store.SessionEventsSince(sessionID, queryInt64(r, "since", 0), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type sessionExport struct {
	Session any `json:"session"`
	Turns   []turnExport
}

type turnExport struct {
	Turn  any
	Steps []any
}

func (s *Server) buildExport(sessionID string) (*sessionExport, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := s.store.ListTurns(sessionID)
	if err != nil {
		return nil, err
	}
	export := &sessionExport{Session: sess}
	for _, t := range turns {
		steps, err := s.store.ListSteps(t.ID)
		if err != nil {
			return nil, err
		}
		stepsAny := make([]any, len(steps))
		for i, st := range steps {
			stepsAny[i] = st
		}
		export.Turns = append(export.Turns, turnExport{Turn: t, Steps: stepsAny})
	}
	return export, nil
}

func (s *Server) exportJSON(w http.ResponseWriter, r *http.Request) {
	export, err := s.buildExport(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

// exportMarkdown renders a human-readable transcript: the user text for
// each turn followed by its final assistant message (the last completed
// step's "final" event, recovered from the session's persisted events).
func (s *Server) exportMarkdown(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	turns, err := s.store.ListTurns(sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	events, err := s.store.SessionEventsSince(sessionID, 0, 1_000_000)
	if err != nil {
		writeErr(w, err)
		return
	}

	finalBySessionTurn := make(map[string]string)
	for _, ev := range events {
		if ev.Type != "final" {
			continue
		}
		if text, ok := ev.Payload["text"].(string); ok {
			finalBySessionTurn[ev.TurnID] = text
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", sess.Title)
	for _, t := range turns {
		fmt.Fprintf(&b, "## User\n\n%s\n\n", t.UserText)
		if reply, ok := finalBySessionTurn[t.ID]; ok {
			fmt.Fprintf(&b, "## Assistant\n\n%s\n\n", reply)
		}
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}
