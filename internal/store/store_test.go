package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/opencode/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSession_CreateGetList(t *testing.T) {
	st := newTestStore(t)

	sess, err := st.CreateSession("My Chat")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "My Chat", sess.Title)

	got, err := st.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "", got.ModelOverride)

	_, err = st.CreateSession("")
	require.NoError(t, err)

	all, err := st.ListSessions()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSession_GetMissingReturnsErrNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetSession("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_RenameSetModelOverrideTouch(t *testing.T) {
	st := newTestStore(t)
	sess, err := st.CreateSession("orig")
	require.NoError(t, err)

	require.NoError(t, st.RenameSession(sess.ID, "renamed"))
	got, err := st.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	require.NoError(t, st.SetModelOverride(sess.ID, "claude-x"))
	got, err = st.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "claude-x", got.ModelOverride)

	require.NoError(t, st.TouchSession(sess.ID))

	err = st.RenameSession("missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_DeleteCascadesAndExists(t *testing.T) {
	st := newTestStore(t)
	sess, err := st.CreateSession("to delete")
	require.NoError(t, err)

	turn, err := st.CreateTurn(sess.ID, "hi")
	require.NoError(t, err)
	_, err = st.CreateStep(turn.ID, 0)
	require.NoError(t, err)

	exists, err := st.SessionExists(sess.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, st.DeleteSession(sess.ID))

	exists, err = st.SessionExists(sess.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	turns, err := st.ListTurns(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)

	err = st.DeleteSession(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTurnAndStepLifecycle(t *testing.T) {
	st := newTestStore(t)
	sess, err := st.CreateSession("s")
	require.NoError(t, err)

	turn, err := st.CreateTurn(sess.ID, "do the thing")
	require.NoError(t, err)

	got, err := st.GetTurn(turn.ID)
	require.NoError(t, err)
	assert.Equal(t, "do the thing", got.UserText)

	_, err = st.GetTurn("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	step0, err := st.CreateStep(turn.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, types.StepRunning, step0.Status)

	step1, err := st.CreateStep(turn.ID, 1)
	require.NoError(t, err)

	require.NoError(t, st.FinishStep(step0.ID, types.StepCompleted))
	require.NoError(t, st.FinishStep(step1.ID, types.StepError))

	steps, err := st.ListSteps(turn.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, types.StepCompleted, steps[0].Status)
	assert.NotNil(t, steps[0].FinishedAt)
	assert.Equal(t, types.StepError, steps[1].Status)

	err = st.FinishStep("missing", types.StepCompleted)
	assert.ErrorIs(t, err, ErrNotFound)

	turns, err := st.ListTurns(sess.ID)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestEvents_InsertAssignsIncreasingSeqPerSession(t *testing.T) {
	st := newTestStore(t)
	sess, err := st.CreateSession("s")
	require.NoError(t, err)
	other, err := st.CreateSession("o")
	require.NoError(t, err)

	ev1, err := st.InsertEvent(sess.ID, "t1", "", "final", map[string]any{"text": "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ev1.Seq)

	ev2, err := st.InsertEvent(sess.ID, "t1", "", "final", map[string]any{"text": "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ev2.Seq)
	assert.Greater(t, ev2.ID, ev1.ID)

	evOther, err := st.InsertEvent(other.ID, "t2", "", "final", map[string]any{"text": "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), evOther.Seq, "seq is per-session, independent of the other session's events")
}

func TestEvents_SinceAndSessionFiltering(t *testing.T) {
	st := newTestStore(t)
	sess, err := st.CreateSession("s")
	require.NoError(t, err)
	other, err := st.CreateSession("o")
	require.NoError(t, err)

	e1, err := st.InsertEvent(sess.ID, "t1", "", "final", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = st.InsertEvent(other.ID, "t2", "", "final", map[string]any{"n": 2})
	require.NoError(t, err)
	e3, err := st.InsertEvent(sess.ID, "t1", "", "final", map[string]any{"n": 3})
	require.NoError(t, err)

	all, err := st.EventsSince(0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	sessOnly, err := st.SessionEventsSince(sess.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, sessOnly, 2)
	assert.Equal(t, e1.ID, sessOnly[0].ID)
	assert.Equal(t, e3.ID, sessOnly[1].ID)
	assert.Equal(t, float64(3), sessOnly[1].Payload["n"])

	afterE1, err := st.SessionEventsSince(sess.ID, e1.ID, 0)
	require.NoError(t, err)
	require.Len(t, afterE1, 1)
	assert.Equal(t, e3.ID, afterE1[0].ID)

	bySeq, err := st.SessionEventsSinceSeq(sess.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, bySeq, 1)
	assert.Equal(t, int64(2), bySeq[0].Seq)

	limited, err := st.EventsSince(0, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	latest, err := st.LatestEventID()
	require.NoError(t, err)
	assert.Equal(t, e3.ID, latest)
}

func TestEvents_LatestEventIDEmptyIsZero(t *testing.T) {
	st := newTestStore(t)
	latest, err := st.LatestEventID()
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest)
}

func TestContextItems_UpsertPinAndSummary(t *testing.T) {
	st := newTestStore(t)
	sess, err := st.CreateSession("s")
	require.NoError(t, err)

	ci, err := st.UpsertContextItem(sess.ID, types.ContextDoc, "README", "file://README.md", true)
	require.NoError(t, err)
	assert.True(t, ci.Pinned)

	// Upserting again with the same (session, kind, ref) updates in place.
	updated, err := st.UpsertContextItem(sess.ID, types.ContextDoc, "README v2", "file://README.md", false)
	require.NoError(t, err)
	assert.Equal(t, ci.ID, updated.ID)
	assert.Equal(t, "README v2", updated.Title)
	assert.False(t, updated.Pinned)

	require.NoError(t, st.SetContextItemPinned(ci.ID, true))
	require.NoError(t, st.SetContextItemSummary(ci.ID, "a summary", "deadbeef"))

	items, err := st.ListContextItems(sess.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a summary", items[0].Summary)

	pinned, err := st.ListPinnedContextItems(sess.ID)
	require.NoError(t, err)
	assert.Len(t, pinned, 1)

	_, err = st.UpsertContextItem(sess.ID, types.ContextFile, "other.go", "file://other.go", false)
	require.NoError(t, err)

	pinned, err = st.ListPinnedContextItems(sess.ID)
	require.NoError(t, err)
	assert.Len(t, pinned, 1, "the unpinned second item must not show up")

	err = st.SetContextItemPinned("missing", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGlobalMemory_PutGetDelete(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.PutMemory("k1", "v1"))
	require.NoError(t, st.PutMemory("k2", "v2"))
	require.NoError(t, st.PutMemory("k1", "v1-updated"))

	mem, err := st.GetMemory()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k1": "v1-updated", "k2": "v2"}, mem)

	require.NoError(t, st.DeleteMemory("k1"))
	mem, err = st.GetMemory()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k2": "v2"}, mem)

	err = st.DeleteMemory("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileChanges_AddAndList(t *testing.T) {
	st := newTestStore(t)
	sess, err := st.CreateSession("s")
	require.NoError(t, err)

	_, err = st.AddFileChange(sess.ID, "t1", "step1", "main.go", "--- a\n+++ b\n")
	require.NoError(t, err)
	_, err = st.AddFileChange(sess.ID, "t1", "step2", "other.go", "--- a\n+++ b\n")
	require.NoError(t, err)

	changes, err := st.ListFileChanges(sess.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "main.go", changes[0].Path)
}

func TestFileVersions_EnsureBaseAndAddVersion(t *testing.T) {
	st := newTestStore(t)
	sess, err := st.CreateSession("s")
	require.NoError(t, err)

	require.NoError(t, st.EnsureBaseVersion(sess.ID, "main.go", "package main\n"))
	// second call is a no-op since a version already exists
	require.NoError(t, st.EnsureBaseVersion(sess.ID, "main.go", "different content"))

	versions, err := st.ListFileVersions(sess.ID, "main.go")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 0, versions[0].Idx)
	assert.Equal(t, "package main\n", versions[0].Content)

	v1, err := st.AddVersion(sess.ID, "main.go", "package main\n\nfunc main() {}\n", "added func", "t1", "step1")
	require.NoError(t, err)
	require.NotNil(t, v1)
	assert.Equal(t, 1, v1.Idx)

	// identical content does not produce a new version
	noop, err := st.AddVersion(sess.ID, "main.go", "package main\n\nfunc main() {}\n", "dup", "t1", "step1")
	require.NoError(t, err)
	assert.Nil(t, noop)

	versions, err = st.ListFileVersions(sess.ID, "main.go")
	require.NoError(t, err)
	require.Len(t, versions, 2)

	got, err := st.GetFileVersion(v1.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, got.ID)

	_, err = st.GetFileVersion("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	tooBig, err := st.AddVersion(sess.ID, "big.go", string(make([]byte, maxFileVersionBytes+1)), "too big", "t1", "step1")
	require.NoError(t, err)
	assert.Nil(t, tooBig)
}

func TestTerminalChunks_AddAndList(t *testing.T) {
	st := newTestStore(t)
	sess, err := st.CreateSession("s")
	require.NoError(t, err)

	_, err = st.AddTerminalChunk(sess.ID, "t1", "step1", "call1", types.StreamStdout, "line 1\n")
	require.NoError(t, err)
	_, err = st.AddTerminalChunk(sess.ID, "t1", "step1", "call1", types.StreamStderr, "warning\n")
	require.NoError(t, err)

	chunks, err := st.ListTerminalChunks(sess.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, types.StreamStdout, chunks[0].Stream)
	assert.Equal(t, types.StreamStderr, chunks[1].Stream)
}

func TestPermissionRequests_CreateResolveList(t *testing.T) {
	st := newTestStore(t)
	sess, err := st.CreateSession("s")
	require.NoError(t, err)

	pr, err := st.CreatePermissionRequest(sess.ID, "t1", "step1", "write_file", map[string]any{"path": "x.go"})
	require.NoError(t, err)
	assert.Equal(t, types.PermissionPending, pr.Status)
	assert.Equal(t, "x.go", pr.Input["path"])

	pending, err := st.ListPendingPermissionRequests(sess.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, st.ResolvePermissionRequest(pr.ID, types.PermissionApproved, types.ScopeSession))

	got, err := st.GetPermissionRequest(pr.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PermissionApproved, got.Status)
	assert.Equal(t, types.ScopeSession, got.Scope)
	require.NotNil(t, got.ResolvedAt)

	pending, err = st.ListPendingPermissionRequests(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = st.GetPermissionRequest("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.ResolvePermissionRequest("missing", types.PermissionDenied, types.ScopeOnce)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToolPolicies_UpsertAndGet(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.UpsertToolPolicy("write_file", types.PolicyAsk))
	require.NoError(t, st.UpsertToolPolicy("read_file", types.PolicyAllow))
	require.NoError(t, st.UpsertToolPolicy("write_file", types.PolicyAllow))

	policies, err := st.GetToolPolicies()
	require.NoError(t, err)
	assert.Equal(t, types.PolicyAllow, policies["write_file"])
	assert.Equal(t, types.PolicyAllow, policies["read_file"])
}
