package types

// Config represents the opencode-server configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Model selection
	Model      string `json:"model,omitempty"`       // "anthropic/claude-sonnet-4"
	SmallModel string `json:"small_model,omitempty"` // For fast tasks (title generation)

	// Additional instruction files appended to the system prompt
	Instructions []string `json:"instructions,omitempty"`

	// Custom prompt variables
	PromptVariables map[string]string `json:"promptVariables,omitempty"`

	// Provider configs
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Agent configs (primary agent and named subagent presets)
	Agent map[string]AgentConfig `json:"agent,omitempty"`

	// Global tool permission policy
	Permission *PermissionConfig `json:"permission,omitempty"`

	// Durable storage location
	Store StoreConfig `json:"store,omitempty"`

	// Sandbox containment
	Sandbox SandboxConfig `json:"sandbox,omitempty"`

	// Turn execution limits
	Turn TurnConfig `json:"turn,omitempty"`

	// SSE / permission-wait timing
	Events EventsConfig `json:"events,omitempty"`
}

// StoreConfig locates the durable SQLite database.
type StoreConfig struct {
	Path string `json:"path,omitempty"`
}

// SandboxConfig scopes every tool to one workspace root.
type SandboxConfig struct {
	AllowedRoot string `json:"allowedRoot,omitempty"`
}

// TurnConfig bounds agent-loop and subagent recursion.
type TurnConfig struct {
	MaxIterations         int `json:"maxIterations,omitempty"`
	SubagentMaxIterations int `json:"subagentMaxIterations,omitempty"`
	SubagentMaxDepth      int `json:"subagentMaxDepth,omitempty"`
}

// PermissionConfig is the global tool permission policy: a default applied
// to every tool, with per-tool overrides.
type PermissionConfig struct {
	Default       Policy            `json:"default,omitempty"`
	ToolOverrides map[string]Policy `json:"toolOverrides,omitempty"`
}

// EventsConfig tunes SSE heartbeat cadence and permission-wait timeout.
type EventsConfig struct {
	SSEHeartbeatSeconds      int `json:"sseHeartbeatSeconds,omitempty"`
	PermissionTimeoutSeconds int `json:"permissionTimeoutSeconds,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
// Compatible with TypeScript opencode provider configuration.
type ProviderConfig struct {
	// Direct API key (Go style)
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"` // Changed to match TS (was baseUrl)

	// Model/Endpoint ID (for providers like ARK that require endpoint specification)
	Model string `json:"model,omitempty"`

	// Nested options (TypeScript style)
	Options *ProviderOptions `json:"options,omitempty"`

	// Model filtering
	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`

	// Disable provider
	Disable bool `json:"disable,omitempty"`
}

// ProviderOptions holds nested provider options (TypeScript style).
type ProviderOptions struct {
	APIKey        string `json:"apiKey,omitempty"`
	BaseURL       string `json:"baseURL,omitempty"`
	EnterpriseURL string `json:"enterpriseUrl,omitempty"`
	Timeout       *int   `json:"timeout,omitempty"` // ms, nil = default, 0 = disabled
}

// AgentConfig holds configuration for an agent.
// Compatible with TypeScript opencode agent configuration.
type AgentConfig struct {
	// Model override for this agent
	Model string `json:"model,omitempty"`

	// Generation parameters
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"` // Changed to match TS (was topP)

	// Custom system prompt
	Prompt string `json:"prompt,omitempty"`

	// Tool configuration
	Tools map[string]bool `json:"tools,omitempty"`

	// Permission settings
	Permission *PermissionConfig `json:"permission,omitempty"`

	// Agent metadata
	Description string `json:"description,omitempty"`
	Mode        string `json:"mode,omitempty"`  // "subagent"|"primary"|"all"
	Color       string `json:"color,omitempty"` // Hex color

	// Disable this agent
	Disable bool `json:"disable,omitempty"`
}

// Model represents an LLM model available from a provider.
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerID"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision"`
	SupportsReasoning bool         `json:"supportsReasoning,omitempty"`
	InputPrice        float64      `json:"inputPrice,omitempty"`  // per 1M tokens
	OutputPrice       float64      `json:"outputPrice,omitempty"` // per 1M tokens
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions contains model-specific options.
type ModelOptions struct {
	Temperature    *float64 `json:"temperature,omitempty"`
	TopP           *float64 `json:"topP,omitempty"`
	PromptCaching  bool     `json:"promptCaching,omitempty"`
	ExtendedOutput bool     `json:"extendedOutput,omitempty"`
}
