package turnrunner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/opencode/internal/permission"
	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/pkg/types"
)

type fakeStore struct {
	mu           sync.Mutex
	steps        []string
	finished     map[string]types.StepStatus
	baseVersions map[string]string
	versions     []*types.FileVersion
	fileChanges  []*types.FileChange
	contextItems []*types.ContextItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{finished: map[string]types.StepStatus{}, baseVersions: map[string]string{}}
}

func (f *fakeStore) CreateStep(turnID string, idx int) (*types.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "step-" + turnID + "-" + time.Now().String()
	f.steps = append(f.steps, id)
	return &types.Step{ID: id, TurnID: turnID, Idx: idx, Status: types.StepRunning}, nil
}

func (f *fakeStore) FinishStep(id string, status types.StepStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[id] = status
	return nil
}

func (f *fakeStore) EnsureBaseVersion(sessionID, path, beforeContent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionID + ":" + path
	if _, ok := f.baseVersions[key]; !ok {
		f.baseVersions[key] = beforeContent
	}
	return nil
}

func (f *fakeStore) AddVersion(sessionID, path, content, note, turnID, stepID string) (*types.FileVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := &types.FileVersion{ID: "v1", SessionID: sessionID, Path: path, Content: content, Note: note}
	f.versions = append(f.versions, v)
	return v, nil
}

func (f *fakeStore) AddFileChange(sessionID, turnID, stepID, path, unifiedDiff string) (*types.FileChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fc := &types.FileChange{ID: "fc1", SessionID: sessionID, TurnID: turnID, StepID: stepID, Path: path, UnifiedDiff: unifiedDiff}
	f.fileChanges = append(f.fileChanges, fc)
	return fc, nil
}

func (f *fakeStore) UpsertContextItem(sessionID string, kind types.ContextItemKind, title, contentRef string, pinned bool) (*types.ContextItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ci := &types.ContextItem{ID: "ci1", SessionID: sessionID, Kind: kind, Title: title, ContentRef: contentRef, Pinned: pinned}
	f.contextItems = append(f.contextItems, ci)
	return ci, nil
}

func (f *fakeStore) ListPinnedContextItems(sessionID string) ([]*types.ContextItem, error) {
	return nil, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []map[string]any
	types_    []string
}

func (b *fakeBus) Publish(sessionID, turnID, stepID, typ string, payload map[string]any) (*types.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, payload)
	b.types_ = append(b.types_, typ)
	return &types.Event{SessionID: sessionID, TurnID: turnID, StepID: stepID, Type: typ, Payload: payload}, nil
}

type fakePermissions struct {
	policy      types.Policy
	waitResult  permission.Result
	createErr   error
	createCalls int
}

func (p *fakePermissions) EffectivePolicy(sessionID, toolName string) types.Policy { return p.policy }

func (p *fakePermissions) CreateRequest(sessionID, turnID, stepID, toolName string, input map[string]any) (string, error) {
	p.createCalls++
	if p.createErr != nil {
		return "", p.createErr
	}
	return "req-1", nil
}

func (p *fakePermissions) Wait(ctx context.Context, requestID string, timeout time.Duration) permission.Result {
	return p.waitResult
}

func newTestRunner(store Store, bus EventBus, perms Permissions) *Runner {
	return New(store, bus, perms, nil, Config{AllowedRoot: "/tmp"})
}

func toolCall(name, args string) schema.ToolCall {
	return schema.ToolCall{ID: "call-1", Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func TestDispatchToolCall_PolicyDenyReturnsSyntheticDenial(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	perms := &fakePermissions{policy: types.PolicyDeny}
	r := newTestRunner(store, bus, perms)

	root := t.TempDir()
	registry := tool.NewRegistry()
	registry.Register(tool.NewWriteFileTool(root))

	p := loopParams{sessionID: "s1", turnID: "t1", registry: registry}
	msg := r.dispatchToolCall(context.Background(), p, "step1", toolCall("write_file", `{"path":"a.go","content":"x"}`))

	assert.Equal(t, schema.Tool, msg.Role)
	assert.Contains(t, msg.Content, "permission denied")
	assert.Contains(t, bus.types_, "tool_result")
}

func TestDispatchToolCall_PolicyAskApprovedRunsTool(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	perms := &fakePermissions{policy: types.PolicyAsk, waitResult: permission.Result{Approved: true}}
	r := newTestRunner(store, bus, perms)

	root := t.TempDir()
	registry := tool.NewRegistry()
	registry.Register(tool.NewWriteFileTool(root))

	p := loopParams{sessionID: "s1", turnID: "t1", registry: registry}
	msg := r.dispatchToolCall(context.Background(), p, "step1", toolCall("write_file", `{"path":"a.go","content":"hello"}`))

	assert.NotContains(t, msg.Content, "Error")
	assert.Equal(t, 1, perms.createCalls)

	data, err := os.ReadFile(filepath.Join(root, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDispatchToolCall_PolicyAskDeniedReturnsSyntheticDenial(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	perms := &fakePermissions{policy: types.PolicyAsk, waitResult: permission.Result{Approved: false}}
	r := newTestRunner(store, bus, perms)

	root := t.TempDir()
	registry := tool.NewRegistry()
	registry.Register(tool.NewWriteFileTool(root))

	p := loopParams{sessionID: "s1", turnID: "t1", registry: registry}
	msg := r.dispatchToolCall(context.Background(), p, "step1", toolCall("write_file", `{"path":"a.go","content":"x"}`))
	assert.Contains(t, msg.Content, "permission denied")

	_, err := os.Stat(filepath.Join(root, "a.go"))
	assert.True(t, os.IsNotExist(err))
}

func TestDispatchToolCall_UnknownToolReturnsSyntheticDenial(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	perms := &fakePermissions{policy: types.PolicyAllow}
	r := newTestRunner(store, bus, perms)

	registry := tool.NewRegistry()
	p := loopParams{sessionID: "s1", turnID: "t1", registry: registry}
	msg := r.dispatchToolCall(context.Background(), p, "step1", toolCall("nonexistent_tool", `{}`))
	assert.Contains(t, msg.Content, `unknown tool`)
}

func TestDispatchToolCall_WriteFileRecordsMutationAndDiffEvent(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	perms := &fakePermissions{policy: types.PolicyAllow}
	r := newTestRunner(store, bus, perms)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("old"), 0o644))

	registry := tool.NewRegistry()
	registry.Register(tool.NewWriteFileTool(root))
	p := loopParams{sessionID: "s1", turnID: "t1", registry: registry}

	r.dispatchToolCall(context.Background(), p, "step1", toolCall("write_file", `{"path":"a.go","content":"new"}`))

	assert.Len(t, store.versions, 1)
	assert.Len(t, store.fileChanges, 1)
	assert.Contains(t, bus.types_, "diff")
}

func TestDispatchToolCall_ReadFileCapturesContextItem(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	perms := &fakePermissions{policy: types.PolicyAllow}
	r := newTestRunner(store, bus, perms)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("hi"), 0o644))

	registry := tool.NewRegistry()
	registry.Register(tool.NewReadFileTool(root))
	p := loopParams{sessionID: "s1", turnID: "t1", registry: registry}

	r.dispatchToolCall(context.Background(), p, "step1", toolCall("read_file", `{"path":"a.go"}`))

	require.Len(t, store.contextItems, 1)
	assert.Equal(t, types.ContextFile, store.contextItems[0].Kind)
}

func TestClassifyResult_ApplyPatchJSONStructured(t *testing.T) {
	ok, output, errText := classifyResult("apply_patch", &tool.Result{Output: `{"applied":true,"files":[]}`}, nil)
	assert.True(t, ok)
	assert.NotEmpty(t, output)
	assert.Empty(t, errText)

	ok, _, errText = classifyResult("apply_patch", &tool.Result{Output: `{"applied":false,"error":"nope"}`}, nil)
	assert.False(t, ok)
	assert.Equal(t, "nope", errText)

	ok, _, _ = classifyResult("apply_patch", &tool.Result{Output: `not json`}, nil)
	assert.False(t, ok)
}

func TestClassifyResult_HTTPFetchJSONStructured(t *testing.T) {
	ok, _, _ := classifyResult("http_fetch", &tool.Result{Output: `{"url":"x","content":"hi"}`}, nil)
	assert.True(t, ok)

	ok, _, errText := classifyResult("http_fetch", &tool.Result{Output: `{"url":"x","error":"bad"}`}, nil)
	assert.False(t, ok)
	assert.Equal(t, "bad", errText)
}

func TestClassifyResult_DefaultUsesErrorPrefix(t *testing.T) {
	ok, _, _ := classifyResult("read_file", &tool.Result{Output: "Error: nope"}, nil)
	assert.False(t, ok)

	ok, _, _ = classifyResult("read_file", &tool.Result{Output: "all good"}, nil)
	assert.True(t, ok)
}

func TestClassifyResult_ExecErrorIsFailure(t *testing.T) {
	ok, _, errText := classifyResult("read_file", nil, assertErr{})
	assert.False(t, ok)
	assert.Equal(t, "boom", errText)
}

func TestClassifyResult_NilResultIsFailure(t *testing.T) {
	ok, _, errText := classifyResult("read_file", nil, nil)
	assert.False(t, ok)
	assert.Equal(t, "tool returned no result", errText)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestMutatingToolPath_OnlyWriteFile(t *testing.T) {
	root := t.TempDir()
	wf := tool.NewWriteFileTool(root)
	rf := tool.NewReadFileTool(root)

	mutating, path := mutatingToolPath(wf, map[string]any{"path": "a.go"})
	assert.True(t, mutating)
	assert.Equal(t, "a.go", path)

	mutating, _ = mutatingToolPath(rf, map[string]any{"path": "a.go"})
	assert.False(t, mutating)

	mutating, _ = mutatingToolPath(wf, map[string]any{})
	assert.False(t, mutating)
}

func TestParseToolArguments(t *testing.T) {
	assert.Equal(t, map[string]any{}, parseToolArguments(""))
	assert.Equal(t, map[string]any{"raw": "not json"}, parseToolArguments("not json"))

	parsed := parseToolArguments(`{"a":1}`)
	assert.Equal(t, float64(1), parsed["a"])
}

func TestTruncateForEvent(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, truncateForEvent(short))

	long := make([]byte, eventResultTruncateLimit+10)
	for i := range long {
		long[i] = 'x'
	}
	truncated := truncateForEvent(string(long))
	assert.Contains(t, truncated, "more bytes")
	assert.True(t, len(truncated) < len(long))
}

func TestUnifiedDiff(t *testing.T) {
	assert.Equal(t, "", unifiedDiff("a.go", "same", "same"))
	diff := unifiedDiff("a.go", "before\n", "after\n")
	assert.Contains(t, diff, "--- a.go")
	assert.Contains(t, diff, "+++ a.go")
}
