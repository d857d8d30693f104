// Package permission implements the tool permission gate: policy
// resolution, asynchronous approval, and scope memory. Grounded on
// original_source/nanobot/web/permissions.py's durable-scope contract
// (once/session/always decisions, with always persisted as a global
// policy).
package permission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencode-ai/opencode/internal/logging"
	"github.com/opencode-ai/opencode/pkg/types"
)

// Store is the subset of *store.Store the gate depends on.
type Store interface {
	CreatePermissionRequest(sessionID, turnID, stepID, toolName string, input map[string]any) (*types.PermissionRequest, error)
	ResolvePermissionRequest(id string, status types.PermissionStatus, scope types.PermissionScope) error
	GetToolPolicies() (map[string]types.Policy, error)
	UpsertToolPolicy(toolName string, policy types.Policy) error
}

// ToolEnabled reports whether a tool is enabled by configuration at all; a
// disabled tool resolves to deny regardless of any other policy layer.
type ToolEnabled func(toolName string) bool

// ToolDefault returns the configured default policy for a tool (typically ask).
type ToolDefault func(toolName string) types.Policy

// Result is what a pending wait resolves to.
type Result struct {
	Approved bool
	Scope    types.PermissionScope
}

type pending struct {
	ch       chan Result
	once     sync.Once
	sessionID string
	toolName  string
}

func (p *pending) complete(r Result) {
	p.once.Do(func() {
		p.ch <- r
		close(p.ch)
	})
}

// Gate evaluates tool policy, creates pending requests, awaits UI
// resolution, and remembers approval scope.
type Gate struct {
	store       Store
	toolEnabled ToolEnabled
	toolDefault ToolDefault

	mu               sync.Mutex
	pendingRequests  map[string]*pending
	sessionOverrides map[string]map[string]types.Policy
}

// New builds a Gate over store with the given configuration hooks.
func New(store Store, toolEnabled ToolEnabled, toolDefault ToolDefault) *Gate {
	return &Gate{
		store:            store,
		toolEnabled:      toolEnabled,
		toolDefault:      toolDefault,
		pendingRequests:  make(map[string]*pending),
		sessionOverrides: make(map[string]map[string]types.Policy),
	}
}

// EffectivePolicy resolves the policy for (session, tool) in priority order:
// disabled -> spawn_subagent exemption -> session override -> durable global -> configured default.
func (g *Gate) EffectivePolicy(sessionID, toolName string) types.Policy {
	if g.toolEnabled != nil && !g.toolEnabled(toolName) {
		return types.PolicyDeny
	}

	// spawn_subagent is compute-only orchestration; its own tool calls still
	// go through approvals individually.
	if toolName == "spawn_subagent" {
		return types.PolicyAllow
	}

	g.mu.Lock()
	if overrides, ok := g.sessionOverrides[sessionID]; ok {
		if p, ok := overrides[toolName]; ok {
			g.mu.Unlock()
			return p
		}
	}
	g.mu.Unlock()

	if policies, err := g.store.GetToolPolicies(); err == nil {
		if p, ok := policies[toolName]; ok {
			return p
		}
	} else {
		logging.Warn().Err(err).Msg("permission: failed to load durable tool policies")
	}

	if g.toolDefault != nil {
		return g.toolDefault(toolName)
	}
	return types.PolicyAsk
}

// CreateRequest persists a pending PermissionRequest, registers a completion
// handle, and returns the request id.
func (g *Gate) CreateRequest(sessionID, turnID, stepID, toolName string, input map[string]any) (string, error) {
	pr, err := g.store.CreatePermissionRequest(sessionID, turnID, stepID, toolName, input)
	if err != nil {
		return "", fmt.Errorf("create permission request: %w", err)
	}

	g.mu.Lock()
	g.pendingRequests[pr.ID] = &pending{
		ch:        make(chan Result, 1),
		sessionID: sessionID,
		toolName:  toolName,
	}
	g.mu.Unlock()

	return pr.ID, nil
}

// Wait blocks up to timeout for request resolution. On timeout, marks the
// request expired and resolves as {approved:false, scope:once}.
func (g *Gate) Wait(ctx context.Context, requestID string, timeout time.Duration) Result {
	g.mu.Lock()
	p, ok := g.pendingRequests[requestID]
	g.mu.Unlock()
	if !ok {
		return Result{Approved: false, Scope: types.ScopeOnce}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.ch:
		return r
	case <-timer.C:
		if err := g.store.ResolvePermissionRequest(requestID, types.PermissionExpired, types.ScopeOnce); err != nil {
			logging.Warn().Err(err).Str("requestID", requestID).Msg("permission: failed to mark request expired")
		}
		result := Result{Approved: false, Scope: types.ScopeOnce}
		g.finalize(requestID, result)
		return result
	case <-ctx.Done():
		result := Result{Approved: false, Scope: types.ScopeOnce}
		g.finalize(requestID, result)
		return result
	}
}

// Resolve persists a UI decision and completes any waiter. If scope=always,
// the decision becomes a durable global ToolPolicy; if scope=session, it
// becomes an in-memory override for the rest of the session's lifetime.
func (g *Gate) Resolve(requestID string, status types.PermissionStatus, scope types.PermissionScope) error {
	g.mu.Lock()
	p, ok := g.pendingRequests[requestID]
	g.mu.Unlock()

	approved := status == types.PermissionApproved
	if err := g.store.ResolvePermissionRequest(requestID, status, scope); err != nil {
		return fmt.Errorf("resolve permission request: %w", err)
	}

	if ok {
		policy := types.PolicyDeny
		if approved {
			policy = types.PolicyAllow
		}
		switch scope {
		case types.ScopeAlways:
			if err := g.store.UpsertToolPolicy(p.toolName, policy); err != nil {
				logging.Warn().Err(err).Str("tool", p.toolName).Msg("permission: failed to persist durable policy")
			}
		case types.ScopeSession:
			g.mu.Lock()
			if g.sessionOverrides[p.sessionID] == nil {
				g.sessionOverrides[p.sessionID] = make(map[string]types.Policy)
			}
			g.sessionOverrides[p.sessionID][p.toolName] = policy
			g.mu.Unlock()
		}
	}

	g.finalize(requestID, Result{Approved: approved, Scope: scope})
	return nil
}

func (g *Gate) finalize(requestID string, result Result) {
	g.mu.Lock()
	p, ok := g.pendingRequests[requestID]
	delete(g.pendingRequests, requestID)
	g.mu.Unlock()
	if ok {
		p.complete(result)
	}
}

// ClearSession drops any in-memory session-scoped overrides, e.g. on session deletion.
func (g *Gate) ClearSession(sessionID string) {
	g.mu.Lock()
	delete(g.sessionOverrides, sessionID)
	g.mu.Unlock()
}
