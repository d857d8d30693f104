package turnrunner

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// einoModelAdapter adapts eino's model.ToolCallingChatModel (the shape every
// concrete provider, including the lorem mock, actually implements) to the
// narrower Model interface the runner drives. Keeping Model narrow means the
// runner's own code never imports model.Option.
type einoModelAdapter struct {
	inner model.ToolCallingChatModel
}

// NewModel wraps an eino chat model for use by a Runner.
func NewModel(inner model.ToolCallingChatModel) Model {
	return &einoModelAdapter{inner: inner}
}

func (a *einoModelAdapter) WithTools(tools []*schema.ToolInfo) (Model, error) {
	bound, err := a.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &einoModelAdapter{inner: bound}, nil
}

func (a *einoModelAdapter) Stream(ctx context.Context, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	return a.inner.Stream(ctx, messages)
}

func (a *einoModelAdapter) Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	return a.inner.Generate(ctx, messages)
}
