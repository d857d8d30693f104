// Package provider abstracts the LLM backend behind eino's chat-model types,
// so TurnRunner never depends on a concrete vendor SDK. Concrete
// provider adapters (eino-ext's claude/openai/ark wrappers) are out of this
// spec's scope; this package supplies the interface plus a deterministic
// local mock used for development and tests.
package provider

import (
	"github.com/cloudwego/eino/components/model"

	"github.com/opencode-ai/opencode/pkg/types"
)

// Provider is a named source of a tool-calling chat model.
type Provider interface {
	ID() string
	Name() string
	Models() []types.Model
	ChatModel() model.ToolCallingChatModel
}
