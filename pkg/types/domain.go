package types

// Policy is a tool permission decision gate.
type Policy string

const (
	PolicyDeny  Policy = "deny"
	PolicyAsk   Policy = "ask"
	PolicyAllow Policy = "allow"
)

// PermissionScope is the lifetime of a permission decision.
type PermissionScope string

const (
	ScopeOnce    PermissionScope = "once"
	ScopeSession PermissionScope = "session"
	ScopeAlways  PermissionScope = "always"
)

// PermissionStatus is the resolution state of a PermissionRequest.
type PermissionStatus string

const (
	PermissionPending  PermissionStatus = "pending"
	PermissionApproved PermissionStatus = "approved"
	PermissionDenied   PermissionStatus = "denied"
	PermissionExpired  PermissionStatus = "expired"
)

// StepStatus is the lifecycle state of a Step.
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// TerminalStream identifies which stream a TerminalChunk came from.
type TerminalStream string

const (
	StreamStdout TerminalStream = "stdout"
	StreamStderr TerminalStream = "stderr"
)

// ContextItemKind classifies a pinned ContextItem.
type ContextItemKind string

const (
	ContextDoc  ContextItemKind = "doc"
	ContextFile ContextItemKind = "file"
	ContextWeb  ContextItemKind = "web"
)

// ChatSession is one conversation thread owning turns, events and artifacts.
// At most one turn is active for a given session at any instant.
type ChatSession struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	CreatedAt     float64 `json:"createdAt"`
	UpdatedAt     float64 `json:"updatedAt"`
	ModelOverride string  `json:"modelOverride,omitempty"`
}

// Turn is one user submission and its processing to a terminal state. Immutable once created.
type Turn struct {
	ID        string  `json:"id"`
	SessionID string  `json:"sessionID"`
	UserText  string  `json:"userText"`
	CreatedAt float64 `json:"createdAt"`
}

// Step is one LLM completion within a turn (idx 0 carries the user message).
type Step struct {
	ID         string     `json:"id"`
	TurnID     string     `json:"turnID"`
	Idx        int        `json:"idx"`
	Status     StepStatus `json:"status"`
	StartedAt  float64    `json:"startedAt"`
	FinishedAt *float64   `json:"finishedAt,omitempty"`
}

// Event is an immutable, ordered record of something the agent did or observed.
type Event struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"sessionID"`
	TurnID    string         `json:"turnID"`
	StepID    string         `json:"stepID"`
	Seq       int64          `json:"seq"`
	Ts        float64        `json:"ts"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

// FileChange is a historical record of a single file mutation.
type FileChange struct {
	ID         string  `json:"id"`
	SessionID  string  `json:"sessionID"`
	TurnID     string  `json:"turnID"`
	StepID     string  `json:"stepID"`
	Path       string  `json:"path"`
	UnifiedDiff string `json:"unifiedDiff"`
	CreatedAt  float64 `json:"createdAt"`
}

// FileVersion is one snapshot in a file's rollback line. idx=0 is the pre-mutation base.
type FileVersion struct {
	ID        string  `json:"id"`
	SessionID string  `json:"sessionID"`
	Path      string  `json:"path"`
	Idx       int     `json:"idx"`
	SHA256    string  `json:"sha256"`
	Content   string  `json:"content"`
	Note      string  `json:"note"`
	CreatedAt float64 `json:"createdAt"`
	TurnID    string  `json:"turnID"`
	StepID    string  `json:"stepID"`
}

// TerminalChunk is streamed stdout/stderr bytes produced by a tool.
type TerminalChunk struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"sessionID"`
	TurnID    string         `json:"turnID"`
	StepID    string         `json:"stepID"`
	ToolCallID string        `json:"toolCallID"`
	Stream    TerminalStream `json:"stream"`
	Text      string         `json:"text"`
	Ts        float64        `json:"ts"`
}

// PermissionRequest is a pending or resolved tool-permission decision.
type PermissionRequest struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"sessionID"`
	TurnID     string           `json:"turnID"`
	StepID     string           `json:"stepID"`
	ToolName   string           `json:"toolName"`
	Input      map[string]any   `json:"input"`
	Status     PermissionStatus `json:"status"`
	Scope      PermissionScope  `json:"scope"`
	CreatedAt  float64          `json:"createdAt"`
	ResolvedAt *float64         `json:"resolvedAt,omitempty"`
}

// ContextItem is a piece of context eligible for pinning into the system prompt.
type ContextItem struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"sessionID"`
	Kind          ContextItemKind `json:"kind"`
	Title         string          `json:"title"`
	ContentRef    string          `json:"contentRef"`
	Pinned        bool            `json:"pinned"`
	CreatedAt     float64         `json:"createdAt"`
	Summary       string          `json:"summary,omitempty"`
	SummarySHA256 string          `json:"summarySha256,omitempty"`
}

// GlobalMemoryEntry is a process-wide key/value note, independent of any session.
type GlobalMemoryEntry struct {
	Key       string  `json:"key"`
	Value     string  `json:"value"`
	UpdatedAt float64 `json:"updatedAt"`
}
