package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopassist/internal/config"
	"shopassist/internal/retry"
)

type failingModel struct {
	err   error
	tools []*schema.ToolInfo
}

func (m *failingModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return nil, m.err
}

func (m *failingModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, m.err
}

func (m *failingModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &failingModel{err: m.err, tools: tools}, nil
}

func TestNewChatModelRejectsUnknownProvider(t *testing.T) {
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"mistral": {Model: "large"},
	}}

	_, err := NewChatModel(context.Background(), cfg, "mistral", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid provider")

	_, err = NewChatModel(context.Background(), cfg, "gemini", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestNewChatModelRequiresModelName(t *testing.T) {
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{"openai": {APIKey: "k"}}}
	_, err := NewChatModel(context.Background(), cfg, "openai", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model must be configured")
}

func TestClassifiedModelWrapsProviderErrors(t *testing.T) {
	m := &classifiedModel{inner: &failingModel{err: errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")}}

	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	assert.True(t, retry.IsRateLimited(err))

	bound, err := m.WithTools([]*schema.ToolInfo{{Name: "item_lookup"}})
	require.NoError(t, err)
	require.IsType(t, &classifiedModel{}, bound)
	assert.Len(t, bound.(*classifiedModel).inner.(*failingModel).tools, 1)

	_, err = bound.Stream(context.Background(), nil)
	assert.True(t, retry.IsRateLimited(err))
}
