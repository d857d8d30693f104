package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/opencode/pkg/types"
)

// CreatePermissionRequest persists a pending request and returns its id.
func (s *Store) CreatePermissionRequest(sessionID, turnID, stepID, toolName string, input map[string]any) (*types.PermissionRequest, error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal permission input: %w", err)
	}
	pr := &types.PermissionRequest{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		TurnID:    turnID,
		StepID:    stepID,
		ToolName:  toolName,
		Input:     input,
		Status:    types.PermissionPending,
		Scope:     types.ScopeOnce,
		CreatedAt: nowTs(),
	}
	_, err = s.db.Exec(
		`INSERT INTO permission_requests (id, session_id, turn_id, step_id, tool_name, input_json, status, scope, created_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		pr.ID, pr.SessionID, pr.TurnID, pr.StepID, pr.ToolName, string(inputJSON), pr.Status, pr.Scope, pr.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create permission request: %w", err)
	}
	return pr, nil
}

// ResolvePermissionRequest persists a terminal status/scope for a request.
func (s *Store) ResolvePermissionRequest(id string, status types.PermissionStatus, scope types.PermissionScope) error {
	res, err := s.db.Exec(
		`UPDATE permission_requests SET status = ?, scope = ?, resolved_at = ? WHERE id = ?`,
		status, scope, nowTs(), id,
	)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// GetPermissionRequest fetches a request by id.
func (s *Store) GetPermissionRequest(id string) (*types.PermissionRequest, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, turn_id, step_id, tool_name, input_json, status, scope, created_at, resolved_at FROM permission_requests WHERE id = ?`, id,
	)
	return scanPermissionRequest(row)
}

// ListPendingPermissionRequests returns every pending request for a session.
func (s *Store) ListPendingPermissionRequests(sessionID string) ([]*types.PermissionRequest, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, turn_id, step_id, tool_name, input_json, status, scope, created_at, resolved_at
		 FROM permission_requests WHERE session_id = ? AND status = ? ORDER BY created_at ASC`,
		sessionID, types.PermissionPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.PermissionRequest
	for rows.Next() {
		pr, err := scanPermissionRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func scanPermissionRequest(row interface{ Scan(...any) error }) (*types.PermissionRequest, error) {
	var pr types.PermissionRequest
	var inputJSON string
	var resolvedAt sql.NullFloat64
	if err := row.Scan(&pr.ID, &pr.SessionID, &pr.TurnID, &pr.StepID, &pr.ToolName, &inputJSON, &pr.Status, &pr.Scope, &pr.CreatedAt, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(inputJSON), &pr.Input); err != nil {
		pr.Input = map[string]any{}
	}
	if resolvedAt.Valid {
		pr.ResolvedAt = &resolvedAt.Float64
	}
	return &pr, nil
}

// GetToolPolicies returns the durable global tool_name -> policy table.
func (s *Store) GetToolPolicies() (map[string]types.Policy, error) {
	rows, err := s.db.Query(`SELECT tool_name, policy FROM tool_policies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]types.Policy)
	for rows.Next() {
		var name string
		var policy types.Policy
		if err := rows.Scan(&name, &policy); err != nil {
			return nil, err
		}
		out[name] = policy
	}
	return out, rows.Err()
}

// UpsertToolPolicy sets the durable global policy for a tool.
func (s *Store) UpsertToolPolicy(toolName string, policy types.Policy) error {
	_, err := s.db.Exec(
		`INSERT INTO tool_policies (tool_name, policy) VALUES (?, ?)
		 ON CONFLICT(tool_name) DO UPDATE SET policy = excluded.policy`,
		toolName, policy,
	)
	return err
}
