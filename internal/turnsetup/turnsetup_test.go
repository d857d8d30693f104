package turnsetup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/opencode/pkg/types"
)

type fakeStore struct {
	turns        []*types.Turn
	events       []*types.Event
	pinnedItems  []*types.ContextItem
	eventsErr    error
	turnsErr     error
	pinnedErr    error
}

func (f *fakeStore) ListTurns(sessionID string) ([]*types.Turn, error) {
	return f.turns, f.turnsErr
}

func (f *fakeStore) SessionEventsSince(sessionID string, sinceID int64, limit int) ([]*types.Event, error) {
	return f.events, f.eventsErr
}

func (f *fakeStore) ListPinnedContextItems(sessionID string) ([]*types.ContextItem, error) {
	return f.pinnedItems, f.pinnedErr
}

func TestBuildHistory_EmptySessionJustSystemAndUser(t *testing.T) {
	store := &fakeStore{}
	msgs, err := BuildHistory(store, "sess1", "you are an agent", "hello")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "you are an agent", msgs[0].Content)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestBuildHistory_ReplaysPriorTurnsWithFinalReplies(t *testing.T) {
	store := &fakeStore{
		turns: []*types.Turn{
			{ID: "t1", UserText: "first question"},
			{ID: "t2", UserText: "second question"},
		},
		events: []*types.Event{
			{TurnID: "t1", Type: "final", Payload: map[string]any{"text": "first answer"}},
			{TurnID: "t2", Type: "tool_call", Payload: map[string]any{"ignored": true}},
		},
	}

	msgs, err := BuildHistory(store, "sess1", "system prompt", "new question")
	require.NoError(t, err)

	// system, t1 user, t1 assistant, t2 user (no assistant reply found), new user
	require.Len(t, msgs, 4)
	assert.Equal(t, "first question", msgs[1].Content)
	assert.Equal(t, "first answer", msgs[2].Content)
	assert.Equal(t, "new question", msgs[3].Content)
}

func TestBuildHistory_AppendsPinnedContextToSystemPrompt(t *testing.T) {
	store := &fakeStore{
		pinnedItems: []*types.ContextItem{
			{Kind: types.ContextDoc, Title: "README", ContentRef: "file://README.md"},
		},
	}

	msgs, err := BuildHistory(store, "sess1", "base prompt", "hi")
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0].Content, "base prompt")
	assert.Contains(t, msgs[0].Content, "Pinned context:")
	assert.Contains(t, msgs[0].Content, "README")
}

func TestBuildHistory_PinnedContextErrorFallsBackToBarePrompt(t *testing.T) {
	store := &fakeStore{pinnedErr: assertErr{}}
	msgs, err := BuildHistory(store, "sess1", "base prompt", "hi")
	require.NoError(t, err)
	assert.Equal(t, "base prompt", msgs[0].Content)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestBuildHistory_PropagatesTurnsError(t *testing.T) {
	store := &fakeStore{turnsErr: assertErr{}}
	_, err := BuildHistory(store, "sess1", "prompt", "hi")
	assert.Error(t, err)
}
