// Package turnsetup assembles the eino message history a turnrunner.Runner
// needs to start a turn: a system prompt, the session's prior turns
// reconstructed from their persisted final replies, pinned context items,
// and the new user message. turnrunner.Runner.Run takes history as an
// already-built parameter by design (it is the loop engine, not the
// history policy), so this glue lives next to the scheduler wiring instead.
package turnsetup

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/opencode/pkg/types"
)

// Store is the subset of *store.Store turnsetup depends on.
type Store interface {
	ListTurns(sessionID string) ([]*types.Turn, error)
	SessionEventsSince(sessionID string, sinceID int64, limit int) ([]*types.Event, error)
	ListPinnedContextItems(sessionID string) ([]*types.ContextItem, error)
}

const maxReplayedEvents = 1_000_000

// BuildHistory reconstructs a session's conversation so far as eino
// messages and appends userText as the new trailing user message.
func BuildHistory(store Store, sessionID, systemPrompt, userText string) ([]*schema.Message, error) {
	turns, err := store.ListTurns(sessionID)
	if err != nil {
		return nil, err
	}
	events, err := store.SessionEventsSince(sessionID, 0, maxReplayedEvents)
	if err != nil {
		return nil, err
	}
	finalByTurn := make(map[string]string, len(turns))
	for _, ev := range events {
		if ev.Type != "final" {
			continue
		}
		if text, ok := ev.Payload["text"].(string); ok {
			finalByTurn[ev.TurnID] = text
		}
	}

	messages := []*schema.Message{
		{Role: schema.System, Content: systemPromptWithContext(store, sessionID, systemPrompt)},
	}
	for _, t := range turns {
		messages = append(messages, &schema.Message{Role: schema.User, Content: t.UserText})
		if reply, ok := finalByTurn[t.ID]; ok {
			messages = append(messages, &schema.Message{Role: schema.Assistant, Content: reply})
		}
	}
	messages = append(messages, &schema.Message{Role: schema.User, Content: userText})
	return messages, nil
}

// systemPromptWithContext appends a rendered list of pinned context items
// (files, web pages, docs the agent pinned across turns) to the base
// system prompt, so pinned material survives beyond the turn that added it.
func systemPromptWithContext(store Store, sessionID, systemPrompt string) string {
	items, err := store.ListPinnedContextItems(sessionID)
	if err != nil || len(items) == 0 {
		return systemPrompt
	}
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nPinned context:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", item.Kind, item.Title, item.ContentRef)
	}
	return b.String()
}
