// Package scheduler admits and tracks turns: at most one active TurnRunner
// per session at a time, with cancellation and cleanup. Grounded on the
// teacher's own single-flight-per-session idea in
// internal/session/manager.go, generalized to this spec's
// start_turn/cancel/delete_session contract.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencode-ai/opencode/internal/apperror"
	"github.com/opencode-ai/opencode/internal/logging"
	"github.com/opencode-ai/opencode/pkg/types"
)

// Store is the subset of *store.Store the scheduler depends on.
type Store interface {
	CreateTurn(sessionID, userText string) (*types.Turn, error)
	TouchSession(sessionID string) error
	ListTurns(sessionID string) ([]*types.Turn, error)
	CreateStep(turnID string, idx int) (*types.Step, error)
	FinishStep(id string, status types.StepStatus) error
	RenameSession(id, title string) error
	ListSteps(turnID string) ([]*types.Step, error)
}

// nextStepIdx returns the next free step index for turnID, falling back to 0
// if steps can't be listed (the insert will still succeed; idx has no
// uniqueness constraint, only an ordering one).
func nextStepIdx(store Store, turnID string) int {
	steps, err := store.ListSteps(turnID)
	if err != nil || len(steps) == 0 {
		return 0
	}
	return steps[len(steps)-1].Idx + 1
}

// EventBus is the subset of *eventbus.Bus the scheduler depends on.
type EventBus interface {
	Publish(sessionID, turnID, stepID, typ string, payload map[string]any) (*types.Event, error)
}

// TurnRunner is the subset of *turnrunner.Runner the scheduler drives. The
// history/registry a runner needs are supplied by the Titler/RunFunc
// closures the caller wires at construction time, keeping this package free
// of a dependency on internal/tool's concrete registry shape.
type RunFunc func(ctx context.Context, session *types.ChatSession, turn *types.Turn) (string, error)

// TitleFunc generates a short session title from its first user message. It
// runs fire-and-forget; a failure here never fails the turn.
type TitleFunc func(ctx context.Context, userText string) (string, error)

type handle struct {
	turnID string
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler admits at most one active turn per session.
type Scheduler struct {
	store Store
	bus   EventBus
	run   RunFunc
	title TitleFunc

	mu      sync.Mutex
	running map[string]*handle
}

// New builds a Scheduler. run executes a turn to completion (typically
// turnrunner.Runner.Run wrapped to the RunFunc shape); title generates a
// session title fire-and-forget on the first message.
func New(store Store, bus EventBus, run RunFunc, title TitleFunc) *Scheduler {
	return &Scheduler{
		store:   store,
		bus:     bus,
		run:     run,
		title:   title,
		running: make(map[string]*handle),
	}
}

// StartTurn admits a new turn for session if none is currently active,
// persists it, and runs it in its own goroutine. Returns the created Turn
// immediately; completion is observed via the event stream.
func (s *Scheduler) StartTurn(ctx context.Context, session *types.ChatSession, userText string) (*types.Turn, error) {
	s.mu.Lock()
	if h, ok := s.running[session.ID]; ok {
		select {
		case <-h.done:
			delete(s.running, session.ID)
		default:
			s.mu.Unlock()
			return nil, apperror.New(apperror.CodeBusy, fmt.Sprintf("session %s already has an active turn", session.ID))
		}
	}
	s.mu.Unlock()

	turns, err := s.store.ListTurns(session.ID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "list turns", err)
	}
	isFirst := len(turns) == 0

	turn, err := s.store.CreateTurn(session.ID, userText)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "create turn", err)
	}
	if err := s.store.TouchSession(session.ID); err != nil {
		logging.Warn().Err(err).Str("session", session.ID).Msg("scheduler: touch session failed")
	}

	if isFirst && s.title != nil {
		go s.generateTitle(session.ID, userText)
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &handle{turnID: turn.ID, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.running[session.ID] = h
	s.mu.Unlock()

	go s.execute(runCtx, h, session, turn)

	return turn, nil
}

func (s *Scheduler) execute(ctx context.Context, h *handle, session *types.ChatSession, turn *types.Turn) {
	defer close(h.done)
	defer func() {
		s.mu.Lock()
		if s.running[session.ID] == h {
			delete(s.running, session.ID)
		}
		s.mu.Unlock()
	}()

	_, err := s.run(ctx, session, turn)
	if err != nil && apperror.CodeOf(err) == apperror.CodeCancelled {
		s.emitCancelled(session.ID, turn.ID)
	}
}

func (s *Scheduler) generateTitle(sessionID, userText string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("scheduler: title generation panicked")
		}
	}()
	title, err := s.title(context.Background(), userText)
	if err != nil || title == "" {
		return
	}
	if err := s.store.RenameSession(sessionID, title); err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Msg("scheduler: failed to persist generated title")
	}
}

// Cancel requests cancellation of session's active turn, if any. Returns
// false if no turn is currently running.
func (s *Scheduler) Cancel(sessionID string) bool {
	s.mu.Lock()
	h, ok := s.running[sessionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	h.cancel()
	return true
}

// DeleteSession cancels any active turn for sessionID and waits for it to
// observe cancellation before returning, so callers can safely delete the
// session's rows immediately afterward.
func (s *Scheduler) DeleteSession(sessionID string) {
	s.mu.Lock()
	h, ok := s.running[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}
	h.cancel()
	<-h.done
}

// IsActive reports whether a turn is currently running for sessionID.
func (s *Scheduler) IsActive(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[sessionID]
	return ok
}

func (s *Scheduler) emitCancelled(sessionID, turnID string) {
	step, err := s.store.CreateStep(turnID, nextStepIdx(s.store, turnID))
	if err != nil {
		logging.Warn().Err(err).Str("turn", turnID).Msg("scheduler: failed to create cancellation step")
		return
	}
	if _, err := s.bus.Publish(sessionID, turnID, step.ID, "error", map[string]any{
		"code":    string(apperror.CodeCancelled),
		"message": "turn cancelled",
	}); err != nil {
		logging.Warn().Err(err).Msg("scheduler: failed to publish cancellation event")
	}
	_ = s.store.FinishStep(step.ID, types.StepError)
}
