package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/opencode/pkg/types"
)

// maxFileVersionBytes bounds FileVersion.Content.
const maxFileVersionBytes = 1 << 20 // 1 MB

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// AddFileChange records a historical diff for a single mutation.
func (s *Store) AddFileChange(sessionID, turnID, stepID, path, unifiedDiff string) (*types.FileChange, error) {
	fc := &types.FileChange{
		ID:          ulid.Make().String(),
		SessionID:   sessionID,
		TurnID:      turnID,
		StepID:      stepID,
		Path:        path,
		UnifiedDiff: unifiedDiff,
		CreatedAt:   nowTs(),
	}
	_, err := s.db.Exec(
		`INSERT INTO file_changes (id, session_id, turn_id, step_id, path, unified_diff, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fc.ID, fc.SessionID, fc.TurnID, fc.StepID, fc.Path, fc.UnifiedDiff, fc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("add file change: %w", err)
	}
	return fc, nil
}

// ListFileChanges returns every FileChange for a session, oldest first.
func (s *Store) ListFileChanges(sessionID string) ([]*types.FileChange, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, turn_id, step_id, path, unified_diff, created_at FROM file_changes WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.FileChange
	for rows.Next() {
		var fc types.FileChange
		if err := rows.Scan(&fc.ID, &fc.SessionID, &fc.TurnID, &fc.StepID, &fc.Path, &fc.UnifiedDiff, &fc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &fc)
	}
	return out, rows.Err()
}

func (s *Store) latestFileVersion(path, sessionID string) (*types.FileVersion, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, path, idx, sha256, content, note, created_at, turn_id, step_id
		 FROM file_versions WHERE session_id = ? AND path = ? ORDER BY idx DESC LIMIT 1`,
		sessionID, path,
	)
	var fv types.FileVersion
	err := row.Scan(&fv.ID, &fv.SessionID, &fv.Path, &fv.Idx, &fv.SHA256, &fv.Content, &fv.Note, &fv.CreatedAt, &fv.TurnID, &fv.StepID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fv, nil
}

// EnsureBaseVersion inserts idx=0 from beforeContent iff no version exists
// yet for (session_id, path); no-op otherwise.
func (s *Store) EnsureBaseVersion(sessionID, path, beforeContent string) error {
	existing, err := s.latestFileVersion(path, sessionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	fv := &types.FileVersion{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Path:      path,
		Idx:       0,
		SHA256:    sha256Hex(beforeContent),
		Content:   beforeContent,
		Note:      "base",
		CreatedAt: nowTs(),
	}
	_, err = s.db.Exec(
		`INSERT INTO file_versions (id, session_id, path, idx, sha256, content, note, created_at, turn_id, step_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', '')`,
		fv.ID, fv.SessionID, fv.Path, fv.Idx, fv.SHA256, fv.Content, fv.Note, fv.CreatedAt,
	)
	return err
}

// AddVersion inserts the next idx for (session_id, path) iff sha256(content)
// differs from the latest version's hash and content is within the size
// bound. Returns the new version, or nil if no version was recorded.
func (s *Store) AddVersion(sessionID, path, content, note, turnID, stepID string) (*types.FileVersion, error) {
	if len(content) > maxFileVersionBytes {
		return nil, nil
	}
	latest, err := s.latestFileVersion(path, sessionID)
	if err != nil {
		return nil, err
	}
	newHash := sha256Hex(content)
	nextIdx := 0
	if latest != nil {
		if latest.SHA256 == newHash {
			return nil, nil
		}
		nextIdx = latest.Idx + 1
	}

	fv := &types.FileVersion{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Path:      path,
		Idx:       nextIdx,
		SHA256:    newHash,
		Content:   content,
		Note:      note,
		CreatedAt: nowTs(),
		TurnID:    turnID,
		StepID:    stepID,
	}
	_, err = s.db.Exec(
		`INSERT INTO file_versions (id, session_id, path, idx, sha256, content, note, created_at, turn_id, step_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fv.ID, fv.SessionID, fv.Path, fv.Idx, fv.SHA256, fv.Content, fv.Note, fv.CreatedAt, fv.TurnID, fv.StepID,
	)
	if err != nil {
		return nil, fmt.Errorf("add file version: %w", err)
	}
	return fv, nil
}

// ListFileVersions returns every version for (session_id, path), idx ascending.
func (s *Store) ListFileVersions(sessionID, path string) ([]*types.FileVersion, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, path, idx, sha256, content, note, created_at, turn_id, step_id
		 FROM file_versions WHERE session_id = ? AND path = ? ORDER BY idx ASC`,
		sessionID, path,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.FileVersion
	for rows.Next() {
		var fv types.FileVersion
		if err := rows.Scan(&fv.ID, &fv.SessionID, &fv.Path, &fv.Idx, &fv.SHA256, &fv.Content, &fv.Note, &fv.CreatedAt, &fv.TurnID, &fv.StepID); err != nil {
			return nil, err
		}
		out = append(out, &fv)
	}
	return out, rows.Err()
}

// GetFileVersion fetches one version row by id.
func (s *Store) GetFileVersion(id string) (*types.FileVersion, error) {
	var fv types.FileVersion
	err := s.db.QueryRow(
		`SELECT id, session_id, path, idx, sha256, content, note, created_at, turn_id, step_id FROM file_versions WHERE id = ?`, id,
	).Scan(&fv.ID, &fv.SessionID, &fv.Path, &fv.Idx, &fv.SHA256, &fv.Content, &fv.Note, &fv.CreatedAt, &fv.TurnID, &fv.StepID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fv, nil
}

// AddTerminalChunk appends a streamed chunk of tool output.
func (s *Store) AddTerminalChunk(sessionID, turnID, stepID, toolCallID string, stream types.TerminalStream, text string) (*types.TerminalChunk, error) {
	tc := &types.TerminalChunk{
		SessionID:  sessionID,
		TurnID:     turnID,
		StepID:     stepID,
		ToolCallID: toolCallID,
		Stream:     stream,
		Text:       text,
		Ts:         nowTs(),
	}
	res, err := s.db.Exec(
		`INSERT INTO terminal_chunks (session_id, turn_id, step_id, tool_call_id, stream, text, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tc.SessionID, tc.TurnID, tc.StepID, tc.ToolCallID, tc.Stream, tc.Text, tc.Ts,
	)
	if err != nil {
		return nil, fmt.Errorf("add terminal chunk: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	tc.ID = id
	return tc, nil
}

// ListTerminalChunks returns every chunk for a session, oldest first.
func (s *Store) ListTerminalChunks(sessionID string) ([]*types.TerminalChunk, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, turn_id, step_id, tool_call_id, stream, text, ts FROM terminal_chunks WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.TerminalChunk
	for rows.Next() {
		var tc types.TerminalChunk
		if err := rows.Scan(&tc.ID, &tc.SessionID, &tc.TurnID, &tc.StepID, &tc.ToolCallID, &tc.Stream, &tc.Text, &tc.Ts); err != nil {
			return nil, err
		}
		out = append(out, &tc)
	}
	return out, rows.Err()
}
