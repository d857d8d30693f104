package provider

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/opencode/pkg/types"
)

// LoremProvider is a deterministic, network-free Provider used for local
// development and tests. Grounded on the lorem/stub provider pattern used
// for offline demos in the example pack: it never calls out to a vendor
// API, streaming a fixed thinking-then-text response word by word so
// TurnRunner's chunk-accumulation logic has something real to exercise.
type LoremProvider struct {
	model *loremChatModel
}

// NewLoremProvider builds a LoremProvider.
func NewLoremProvider() *LoremProvider {
	return &LoremProvider{model: &loremChatModel{}}
}

func (p *LoremProvider) ID() string   { return "lorem" }
func (p *LoremProvider) Name() string { return "Lorem (offline mock)" }

func (p *LoremProvider) Models() []types.Model {
	return []types.Model{{
		ID:              "lorem-1",
		Name:            "Lorem 1",
		ProviderID:      "lorem",
		ContextLength:   128000,
		MaxOutputTokens: 4096,
		SupportsTools:   true,
	}}
}

func (p *LoremProvider) ChatModel() model.ToolCallingChatModel { return p.model }

// loremChatModel implements model.ToolCallingChatModel with a canned,
// deterministic response. It never issues tool calls on its own; tests that
// need a tool-calling turn construct their own schema.Message directly
// through WithCannedToolCall.
type loremChatModel struct {
	cannedToolCall *schema.ToolCall
	text           string
}

func (m *loremChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	clone := *m
	return &clone, nil
}

// WithCannedResponse returns a copy of the model that streams the given
// text (and, if toolCall is non-nil, a trailing tool call) instead of the
// default lorem ipsum text. Used by tests to script a turn's outcome.
func (m *loremChatModel) WithCannedResponse(text string, toolCall *schema.ToolCall) *loremChatModel {
	clone := *m
	clone.text = text
	clone.cannedToolCall = toolCall
	return &clone
}

func (m *loremChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	msg := &schema.Message{Role: schema.Assistant, Content: m.responseText()}
	if m.cannedToolCall != nil {
		msg.ToolCalls = []schema.ToolCall{*m.cannedToolCall}
	}
	return msg, nil
}

func (m *loremChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	reader, writer := schema.Pipe[*schema.Message](8)

	go func() {
		defer writer.Close()

		words := strings.Fields(m.responseText())
		for i, w := range words {
			chunk := w
			if i < len(words)-1 {
				chunk += " "
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			if closed := writer.Send(&schema.Message{Role: schema.Assistant, Content: chunk}, nil); closed {
				return
			}
		}

		if m.cannedToolCall != nil {
			writer.Send(&schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{*m.cannedToolCall}}, nil)
		}
	}()

	return reader, nil
}

func (m *loremChatModel) responseText() string {
	if m.text != "" {
		return m.text
	}
	return "Lorem ipsum dolor sit amet, consectetur adipiscing elit. " +
		"This is a deterministic offline response used when no real model provider is configured."
}
