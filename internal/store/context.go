package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/opencode/pkg/types"
)

// UpsertContextItem inserts or, if (session_id, kind, content_ref) already
// exists, updates the title/pinned/summary fields in place.
func (s *Store) UpsertContextItem(sessionID string, kind types.ContextItemKind, title, contentRef string, pinned bool) (*types.ContextItem, error) {
	id := ulid.Make().String()
	now := nowTs()
	pinnedInt := 0
	if pinned {
		pinnedInt = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO context_items (id, session_id, kind, title, content_ref, pinned, created_at, summary, summary_sha256)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '', '')
		 ON CONFLICT(session_id, kind, content_ref) DO UPDATE SET title = excluded.title, pinned = excluded.pinned`,
		id, sessionID, kind, title, contentRef, pinnedInt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert context item: %w", err)
	}
	return s.getContextItemByRef(sessionID, kind, contentRef)
}

func (s *Store) getContextItemByRef(sessionID string, kind types.ContextItemKind, contentRef string) (*types.ContextItem, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, kind, title, content_ref, pinned, created_at, summary, summary_sha256
		 FROM context_items WHERE session_id = ? AND kind = ? AND content_ref = ?`,
		sessionID, kind, contentRef,
	)
	return scanContextItem(row)
}

// SetContextItemPinned sets the pinned flag for a specific item.
func (s *Store) SetContextItemPinned(id string, pinned bool) error {
	pinnedInt := 0
	if pinned {
		pinnedInt = 1
	}
	res, err := s.db.Exec(`UPDATE context_items SET pinned = ? WHERE id = ?`, pinnedInt, id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// SetContextItemSummary stores a cached summary keyed by the raw content's hash.
func (s *Store) SetContextItemSummary(id, summary, summarySHA256 string) error {
	res, err := s.db.Exec(`UPDATE context_items SET summary = ?, summary_sha256 = ? WHERE id = ?`, summary, summarySHA256, id)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// ListContextItems returns every context item for a session.
func (s *Store) ListContextItems(sessionID string) ([]*types.ContextItem, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, kind, title, content_ref, pinned, created_at, summary, summary_sha256
		 FROM context_items WHERE session_id = ? ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ContextItem
	for rows.Next() {
		ci, err := scanContextItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

// ListPinnedContextItems returns only pinned items for a session, for
// rendering into the system prompt.
func (s *Store) ListPinnedContextItems(sessionID string) ([]*types.ContextItem, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, kind, title, content_ref, pinned, created_at, summary, summary_sha256
		 FROM context_items WHERE session_id = ? AND pinned = 1 ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.ContextItem
	for rows.Next() {
		ci, err := scanContextItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

func scanContextItem(row interface{ Scan(...any) error }) (*types.ContextItem, error) {
	var ci types.ContextItem
	var pinnedInt int
	if err := row.Scan(&ci.ID, &ci.SessionID, &ci.Kind, &ci.Title, &ci.ContentRef, &pinnedInt, &ci.CreatedAt, &ci.Summary, &ci.SummarySHA256); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ci.Pinned = pinnedInt != 0
	return &ci, nil
}

// GetMemory returns the entire global memory table.
func (s *Store) GetMemory() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM global_memory ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// PutMemory upserts a single global memory key.
func (s *Store) PutMemory(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO global_memory (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, nowTs(),
	)
	return err
}

// DeleteMemory removes a global memory key.
func (s *Store) DeleteMemory(key string) error {
	res, err := s.db.Exec(`DELETE FROM global_memory WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}
