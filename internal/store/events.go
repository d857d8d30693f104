package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opencode-ai/opencode/pkg/types"
)

// maxSeqRetries bounds the retry loop on a (session_id, seq) uniqueness
// conflict to a small, fixed number of attempts.
const maxSeqRetries = 5

// InsertEvent allocates the next per-session seq under a writer-serializing
// transaction and appends the event. seq is the previous max for that
// session plus one; id is the database-wide monotonic autoincrement.
func (s *Store) InsertEvent(sessionID, turnID, stepID, typ string, payload map[string]any) (*types.Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	ts := nowTs()

	var ev *types.Event
	for attempt := 0; attempt < maxSeqRetries; attempt++ {
		ev, err = s.insertEventOnce(sessionID, turnID, stepID, typ, payload, payloadJSON, ts)
		if err == nil {
			return ev, nil
		}
		if !isUniqueConflict(err) {
			return nil, err
		}
		// Another writer raced us for this session's next seq; retry.
		time.Sleep(time.Millisecond * time.Duration(attempt+1))
	}
	return nil, fmt.Errorf("insert event: exhausted retries on seq conflict: %w", err)
}

func (s *Store) insertEventOnce(sessionID, turnID, stepID, typ string, payload map[string]any, payloadJSON []byte, ts float64) (*types.Event, error) {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(seq) FROM events WHERE session_id = ?`, sessionID).Scan(&maxSeq); err != nil {
		return nil, err
	}
	nextSeq := int64(1)
	if maxSeq.Valid {
		nextSeq = maxSeq.Int64 + 1
	}

	res, err := tx.Exec(
		`INSERT INTO events (session_id, turn_id, step_id, seq, ts, type, payload_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, turnID, stepID, nextSeq, ts, typ, string(payloadJSON),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &types.Event{
		ID:        id,
		SessionID: sessionID,
		TurnID:    turnID,
		StepID:    stepID,
		Seq:       nextSeq,
		Ts:        ts,
		Type:      typ,
		Payload:   payload,
	}, nil
}

func isUniqueConflict(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite surfaces SQLITE_CONSTRAINT_UNIQUE in the error string;
	// there is no typed sentinel, so match on the driver's message text.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}

func scanEvent(rows interface{ Scan(...any) error }) (*types.Event, error) {
	var ev types.Event
	var payloadJSON string
	if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.TurnID, &ev.StepID, &ev.Seq, &ev.Ts, &ev.Type, &payloadJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payloadJSON), &ev.Payload); err != nil {
		ev.Payload = map[string]any{}
	}
	return &ev, nil
}

const eventColumns = `id, session_id, turn_id, step_id, seq, ts, type, payload_json`

// EventsSince returns the global event stream after sinceID (0 = from the
// start), ordered by id ascending, bounded by limit (0 = unbounded).
func (s *Store) EventsSince(sinceID int64, limit int) ([]*types.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id > ? ORDER BY id ASC`
	args := []any{sinceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEvents(query, args...)
}

// SessionEventsSince returns one session's events after sinceID, ordered by
// id ascending (id and seq agree in order for a single session).
func (s *Store) SessionEventsSince(sessionID string, sinceID int64, limit int) ([]*types.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? AND id > ? ORDER BY id ASC`
	args := []any{sessionID, sinceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEvents(query, args...)
}

// SessionEventsSinceSeq is SessionEventsSince filtering on per-session seq
// instead of global id, for clients that only ever tracked seq.
func (s *Store) SessionEventsSinceSeq(sessionID string, sinceSeq int64, limit int) ([]*types.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ? AND seq > ? ORDER BY id ASC`
	args := []any{sessionID, sinceSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEvents(query, args...)
}

func (s *Store) queryEvents(query string, args ...any) ([]*types.Event, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LatestEventID returns the highest event id in the database, or 0 if empty.
func (s *Store) LatestEventID() (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}
