package processor

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/llm"
)

// 测试用模型模拟器，按系统提示词路由不同的预设响应
type mockChainModel struct {
	content string
	// responses 按系统提示词前缀匹配的响应表，命中优先于content
	responses map[string]string
	err       error
	callCount int
}

func (m *mockChainModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	m.callCount++
	if m.err != nil {
		return nil, m.err
	}
	content := m.content
	if len(messages) > 0 && m.responses != nil {
		for prefix, resp := range m.responses {
			if len(messages[0].Content) >= len(prefix) && messages[0].Content[:len(prefix)] == prefix {
				content = resp
				break
			}
		}
	}
	return &schema.Message{Role: schema.Assistant, Content: content}, nil
}

func (m *mockChainModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (m *mockChainModel) BindTools(tools []*schema.ToolInfo) error { return nil }

func (m *mockChainModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func newSingleTargetChain(t *testing.T, m model.ToolCallingChatModel) *llm.FallbackChain {
	t.Helper()
	chain, err := llm.NewFallbackChain([]llm.Target{
		{Ref: llm.ModelRef{Provider: "mock", Model: "mock-model"}, Model: m},
	})
	require.NoError(t, err)
	return chain
}
