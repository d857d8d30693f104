package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/opencode/pkg/types"
)

// ErrNotFound is returned by Get-style lookups that find no row.
var ErrNotFound = errors.New("store: not found")

// CreateSession inserts a new session with a freshly minted id.
func (s *Store) CreateSession(title string) (*types.ChatSession, error) {
	if title == "" {
		title = "New Chat"
	}
	now := nowTs()
	sess := &types.ChatSession{
		ID:        ulid.Make().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, title, created_at, updated_at, model_override) VALUES (?, ?, ?, ?, '')`,
		sess.ID, sess.Title, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func scanSession(row interface{ Scan(...any) error }) (*types.ChatSession, error) {
	var sess types.ChatSession
	if err := row.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt, &sess.ModelOverride); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(id string) (*types.ChatSession, error) {
	row := s.db.QueryRow(`SELECT id, title, created_at, updated_at, model_override FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns all sessions ordered by most-recently-updated first.
func (s *Store) ListSessions() ([]*types.ChatSession, error) {
	rows, err := s.db.Query(`SELECT id, title, created_at, updated_at, model_override FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ChatSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// RenameSession updates a session's title.
func (s *Store) RenameSession(id, title string) error {
	res, err := s.db.Exec(`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`, title, nowTs(), id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// SetModelOverride sets or clears (empty string) a session's per-session model override.
func (s *Store) SetModelOverride(id, model string) error {
	res, err := s.db.Exec(`UPDATE sessions SET model_override = ?, updated_at = ? WHERE id = ?`, model, nowTs(), id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// TouchSession bumps a session's updated_at to now.
func (s *Store) TouchSession(id string) error {
	res, err := s.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, nowTs(), id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// DeleteSession removes a session and, via ON DELETE CASCADE, every row it owns.
func (s *Store) DeleteSession(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// SessionExists reports whether a session id is present.
func (s *Store) SessionExists(id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func rowsAffectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateTurn inserts a new, never-mutated Turn row.
func (s *Store) CreateTurn(sessionID, userText string) (*types.Turn, error) {
	turn := &types.Turn{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		UserText:  userText,
		CreatedAt: nowTs(),
	}
	_, err := s.db.Exec(
		`INSERT INTO turns (id, session_id, user_text, created_at) VALUES (?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.UserText, turn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create turn: %w", err)
	}
	return turn, nil
}

// GetTurn fetches a turn by id.
func (s *Store) GetTurn(id string) (*types.Turn, error) {
	var t types.Turn
	err := s.db.QueryRow(`SELECT id, session_id, user_text, created_at FROM turns WHERE id = ?`, id).
		Scan(&t.ID, &t.SessionID, &t.UserText, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTurns returns every turn for a session, oldest first.
func (s *Store) ListTurns(sessionID string) ([]*types.Turn, error) {
	rows, err := s.db.Query(`SELECT id, session_id, user_text, created_at FROM turns WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Turn
	for rows.Next() {
		var t types.Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserText, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// CreateStep inserts a new step for a turn at the given idx.
func (s *Store) CreateStep(turnID string, idx int) (*types.Step, error) {
	step := &types.Step{
		ID:        ulid.Make().String(),
		TurnID:    turnID,
		Idx:       idx,
		Status:    types.StepRunning,
		StartedAt: nowTs(),
	}
	_, err := s.db.Exec(
		`INSERT INTO steps (id, turn_id, idx, status, started_at, finished_at) VALUES (?, ?, ?, ?, ?, NULL)`,
		step.ID, step.TurnID, step.Idx, step.Status, step.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create step: %w", err)
	}
	return step, nil
}

// FinishStep marks a step completed or error and stamps finished_at.
func (s *Store) FinishStep(id string, status types.StepStatus) error {
	res, err := s.db.Exec(`UPDATE steps SET status = ?, finished_at = ? WHERE id = ?`, status, nowTs(), id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// ListSteps returns every step for a turn, ordered by idx.
func (s *Store) ListSteps(turnID string) ([]*types.Step, error) {
	rows, err := s.db.Query(`SELECT id, turn_id, idx, status, started_at, finished_at FROM steps WHERE turn_id = ? ORDER BY idx ASC`, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Step
	for rows.Next() {
		var st types.Step
		var finished sql.NullFloat64
		if err := rows.Scan(&st.ID, &st.TurnID, &st.Idx, &st.Status, &st.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			st.FinishedAt = &finished.Float64
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}
