package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/opencode/internal/apperror"
	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/pkg/types"
)

func (s *Server) listFileChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := s.store.ListFileChanges(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) listTerminalChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := s.store.ListTerminalChunks(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (s *Server) listContextItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListContextItems(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type treeEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
}

// fsTree lists every file/directory under the sandboxed root, relative to
// it. Session-scoped only by the route shape: the sandbox root itself is
// process-wide, resolved once at startup.
func (s *Server) fsTree(w http.ResponseWriter, r *http.Request) {
	root, err := tool.ResolvePath(s.cfg.AllowedRoot, ".")
	if err != nil {
		writeErr(w, err)
		return
	}
	var entries []treeEntry
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		entries = append(entries, treeEntry{Path: filepath.ToSlash(rel), IsDir: d.IsDir()})
		return nil
	})
	if walkErr != nil {
		writeErr(w, apperror.Wrap(apperror.CodeInternal, "walk workspace", walkErr))
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) fsRead(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "path is required")
		return
	}
	resolved, err := tool.ResolvePath(s.cfg.AllowedRoot, path)
	if err != nil {
		writeErr(w, err)
		return
	}
	data, readErr := os.ReadFile(resolved)
	if readErr != nil {
		writeError(w, http.StatusNotFound, string(apperror.CodeNotFound), readErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path, "content": string(data)})
}

func (s *Server) fsVersions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "path is required")
		return
	}
	versions, err := s.store.ListFileVersions(sessionID, path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) fsVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.GetFileVersion(chi.URLParam(r, "versionID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

type fsRollbackRequest struct {
	Path      string `json:"path"`
	VersionID string `json:"versionId"`
}

// fsRollback restores path's on-disk content to a prior FileVersion,
// recording the restore as a new version (rather than deleting history) and
// emitting an fs_rollback event.
func (s *Server) fsRollback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req fsRollbackRequest
	if !decodeJSONBody(r, &req) || req.Path == "" || req.VersionID == "" {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "path and versionId are required")
		return
	}

	version, err := s.store.GetFileVersion(req.VersionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if version.SessionID != sessionID || version.Path != req.Path {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "version does not belong to this session/path")
		return
	}

	resolved, err := tool.ResolvePath(s.cfg.AllowedRoot, req.Path)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		writeErr(w, apperror.Wrap(apperror.CodeInternal, "create parent directory", err))
		return
	}
	if err := os.WriteFile(resolved, []byte(version.Content), 0o644); err != nil {
		writeErr(w, apperror.Wrap(apperror.CodeInternal, "write rollback content", err))
		return
	}

	restored, err := s.store.AddVersion(sessionID, req.Path, version.Content, "rollback to "+req.VersionID, "", "")
	if err != nil {
		writeErr(w, err)
		return
	}

	if _, err := s.bus.Publish(sessionID, "", "", "fs_rollback", map[string]any{
		"path":           req.Path,
		"restored_from":  req.VersionID,
		"new_version_id": versionIDOrEmpty(restored),
	}); err != nil {
		writeErr(w, err)
		return
	}

	writeSuccess(w)
}

func versionIDOrEmpty(v *types.FileVersion) string {
	if v == nil {
		return ""
	}
	return v.ID
}

type contextRefRequest struct {
	ID string `json:"id"`
}

func (s *Server) contextPin(w http.ResponseWriter, r *http.Request) {
	s.setContextPinned(w, r, true)
}

func (s *Server) contextUnpin(w http.ResponseWriter, r *http.Request) {
	s.setContextPinned(w, r, false)
}

func (s *Server) setContextPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	var req contextRefRequest
	if !decodeJSONBody(r, &req) || req.ID == "" {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "id is required")
		return
	}
	if err := s.store.SetContextItemPinned(req.ID, pinned); err != nil {
		writeErr(w, err)
		return
	}
	writeSuccess(w)
}

type contextSetPinnedRefRequest struct {
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	ContentRef string `json:"contentRef"`
}

// contextSetPinnedRef upserts and immediately pins a context item, for
// clients that want to add-and-pin in one call.
func (s *Server) contextSetPinnedRef(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req contextSetPinnedRefRequest
	if !decodeJSONBody(r, &req) || req.ContentRef == "" {
		writeError(w, http.StatusBadRequest, string(apperror.CodeInvalidRequest), "contentRef is required")
		return
	}
	kind := types.ContextItemKind(strings.ToLower(req.Kind))
	switch kind {
	case types.ContextDoc, types.ContextFile, types.ContextWeb:
	default:
		kind = types.ContextDoc
	}
	item, err := s.store.UpsertContextItem(sessionID, kind, req.Title, req.ContentRef, true)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
