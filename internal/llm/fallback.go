package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ModelRef 回退链中一个模型目标的标识
type ModelRef struct {
	Provider string
	Model    string
	Priority int
}

// Target 模型目标：标识加上可调用的客户端
type Target struct {
	Ref   ModelRef
	Model model.ToolCallingChatModel
}

// Result 一次成功生成的结果及其归因信息。
// 归因（供应商/模型/耗时/token数）随解析运行持久化，用于审计与排错。
type Result struct {
	Message      *schema.Message
	Content      string
	Provider     string
	Model        string
	LatencyMS    int64
	InputTokens  *int
	OutputTokens *int
	AttemptCount int
}

// FallbackChain 按优先级顺序尝试多个模型目标。
// 限流与供应商故障会放弃该供应商的剩余模型直接切换下一家，
// 模型级错误只跳到下一个目标。全部失败返回AllProvidersExhausted。
type FallbackChain struct {
	targets []Target
}

// NewFallbackChain 创建回退链。目标顺序即尝试顺序。
func NewFallbackChain(targets []Target) (*FallbackChain, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("回退链至少需要一个模型目标")
	}
	return &FallbackChain{targets: targets}, nil
}

// BuildChainFromConfig 按配置中供应商与模型的声明顺序构建回退链。
func BuildChainFromConfig(cfg *config.LLMConfig) (*FallbackChain, error) {
	var targets []Target
	priority := 0
	for _, p := range cfg.Providers {
		for _, modelName := range p.Models {
			client, err := NewOpenAICompatibleChatModel(p.Name, modelName, p.BaseURL, p.APIKey)
			if err != nil {
				return nil, fmt.Errorf("构建模型客户端%s/%s失败: %w", p.Name, modelName, err)
			}
			targets = append(targets, Target{
				Ref:   ModelRef{Provider: p.Name, Model: modelName, Priority: priority},
				Model: client,
			})
			priority++
		}
	}
	return NewFallbackChain(targets)
}

// Targets 返回链中目标的只读副本。
func (c *FallbackChain) Targets() []Target {
	out := make([]Target, len(c.targets))
	copy(out, c.targets)
	return out
}

// Generate 依次尝试各目标直到成功。
// ctx取消会立即中止，不再计入尝试。
func (c *FallbackChain) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*Result, error) {
	var attempts []Attempt
	skipProvider := ""

	for _, target := range c.targets {
		if target.Ref.Provider == skipProvider {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		msg, err := target.Model.Generate(ctx, messages, options...)
		latency := time.Since(start).Milliseconds()

		if err == nil {
			result := &Result{
				Message:      msg,
				Content:      msg.Content,
				Provider:     target.Ref.Provider,
				Model:        target.Ref.Model,
				LatencyMS:    latency,
				AttemptCount: len(attempts) + 1,
			}
			if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
				in := msg.ResponseMeta.Usage.PromptTokens
				out := msg.ResponseMeta.Usage.CompletionTokens
				result.InputTokens = &in
				result.OutputTokens = &out
			}
			return result, nil
		}

		attempts = append(attempts, Attempt{
			Provider: target.Ref.Provider,
			Model:    target.Ref.Model,
			Err:      err,
		})

		var rle *RateLimitError
		var pue *ProviderUnavailableError
		switch {
		case errors.As(err, &rle):
			logger.Warn().Str("provider", target.Ref.Provider).Str("model", target.Ref.Model).
				Dur("retry_after", rle.RetryAfter).Msg("模型目标被限流，切换供应商")
			skipProvider = target.Ref.Provider
		case errors.As(err, &pue):
			logger.Warn().Err(err).Str("provider", target.Ref.Provider).Str("model", target.Ref.Model).
				Msg("供应商不可用，切换供应商")
			skipProvider = target.Ref.Provider
		default:
			logger.Warn().Err(err).Str("provider", target.Ref.Provider).Str("model", target.Ref.Model).
				Msg("模型调用失败，尝试下一个目标")
		}
	}

	return nil, &AllProvidersExhausted{Attempts: attempts}
}
