package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用模型模拟器
type mockChatModel struct {
	content   string
	err       error
	callCount int
}

func (m *mockChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	m.callCount++
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: m.content,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 50},
		},
	}, nil
}

func (m *mockChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (m *mockChatModel) BindTools(tools []*schema.ToolInfo) error { return nil }

func (m *mockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func newTestChain(t *testing.T, targets ...Target) *FallbackChain {
	t.Helper()
	chain, err := NewFallbackChain(targets)
	require.NoError(t, err)
	return chain
}

func target(provider, modelName string, m model.ToolCallingChatModel) Target {
	return Target{Ref: ModelRef{Provider: provider, Model: modelName}, Model: m}
}

func TestFallbackChainFirstTargetSucceeds(t *testing.T) {
	primary := &mockChatModel{content: `{"ok": true}`}
	backup := &mockChatModel{content: "unused"}
	chain := newTestChain(t,
		target("openai", "gpt-4o-mini", primary),
		target("deepseek", "deepseek-chat", backup),
	)

	res, err := chain.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, "gpt-4o-mini", res.Model)
	assert.Equal(t, 1, res.AttemptCount)
	require.NotNil(t, res.InputTokens)
	assert.Equal(t, 100, *res.InputTokens)
	assert.Equal(t, 0, backup.callCount)
}

func TestFallbackChainRateLimitSkipsProvider(t *testing.T) {
	limited := &mockChatModel{err: &RateLimitError{Provider: "openai", Model: "gpt-4o-mini", RetryAfter: 30 * time.Second}}
	sameProvider := &mockChatModel{content: "unused"}
	backup := &mockChatModel{content: `{"ok": true}`}
	chain := newTestChain(t,
		target("openai", "gpt-4o-mini", limited),
		target("openai", "gpt-4o", sameProvider),
		target("deepseek", "deepseek-chat", backup),
	)

	res, err := chain.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "deepseek", res.Provider)
	assert.Equal(t, 2, res.AttemptCount)
	// 限流的提供方整体被跳过，同提供方的后续模型不再尝试
	assert.Equal(t, 0, sameProvider.callCount)
}

func TestFallbackChainProviderUnavailableSkipsProvider(t *testing.T) {
	down := &mockChatModel{err: &ProviderUnavailableError{Provider: "openai", Model: "gpt-4o-mini", Cause: errors.New("503")}}
	sameProvider := &mockChatModel{content: "unused"}
	backup := &mockChatModel{content: `{"ok": true}`}
	chain := newTestChain(t,
		target("openai", "gpt-4o-mini", down),
		target("openai", "gpt-4o", sameProvider),
		target("deepseek", "deepseek-chat", backup),
	)

	res, err := chain.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "deepseek", res.Provider)
	assert.Equal(t, 0, sameProvider.callCount)
}

func TestFallbackChainModelErrorTriesNextModel(t *testing.T) {
	bad := &mockChatModel{err: &ModelRequestError{Provider: "openai", Model: "gpt-4o-mini", StatusCode: 400}}
	good := &mockChatModel{content: `{"ok": true}`}
	chain := newTestChain(t,
		target("openai", "gpt-4o-mini", bad),
		target("openai", "gpt-4o", good),
	)

	res, err := chain.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	// 模型级错误只跳过该模型，同提供方的下一个模型继续尝试
	assert.Equal(t, "gpt-4o", res.Model)
	assert.Equal(t, 2, res.AttemptCount)
}

func TestFallbackChainAllExhausted(t *testing.T) {
	a := &mockChatModel{err: &RateLimitError{Provider: "openai", Model: "gpt-4o-mini", RetryAfter: 30 * time.Second}}
	b := &mockChatModel{err: &RateLimitError{Provider: "deepseek", Model: "deepseek-chat", RetryAfter: 90 * time.Second}}
	chain := newTestChain(t,
		target("openai", "gpt-4o-mini", a),
		target("deepseek", "deepseek-chat", b),
	)

	_, err := chain.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)

	var exhausted *AllProvidersExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 2)
	assert.True(t, exhausted.RateLimited())
	assert.Equal(t, 90*time.Second, exhausted.RetryAfterHint())
}

func TestFallbackChainMixedFailureNotRateLimited(t *testing.T) {
	a := &mockChatModel{err: &RateLimitError{Provider: "openai", Model: "gpt-4o-mini"}}
	b := &mockChatModel{err: &ModelRequestError{Provider: "deepseek", Model: "deepseek-chat", StatusCode: 400}}
	chain := newTestChain(t,
		target("openai", "gpt-4o-mini", a),
		target("deepseek", "deepseek-chat", b),
	)

	_, err := chain.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	var exhausted *AllProvidersExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.False(t, exhausted.RateLimited())
}

func TestFallbackChainContextCancelled(t *testing.T) {
	m := &mockChatModel{content: "unused"}
	chain := newTestChain(t, target("openai", "gpt-4o-mini", m))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := chain.Generate(ctx, []*schema.Message{schema.UserMessage("hi")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.callCount)
}

func TestNewFallbackChainRequiresTargets(t *testing.T) {
	_, err := NewFallbackChain(nil)
	assert.Error(t, err)
}
