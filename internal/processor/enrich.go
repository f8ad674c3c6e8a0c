package processor

import (
	"context"
	"encoding/json"

	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/llm"
	"resume-agent-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Enricher 在规范化档案上追加分类与摘要，两路模型调用并发执行。
// 任何一路失败只降级（记警告），不会让运行失败。
type Enricher struct {
	chain        *llm.FallbackChain
	classifyTemp float32
	summaryTemp  float32
}

// NewEnricher 创建富化器。
func NewEnricher(chain *llm.FallbackChain, classifyTemp, summaryTemp float32) *Enricher {
	return &Enricher{chain: chain, classifyTemp: classifyTemp, summaryTemp: summaryTemp}
}

type enrichOutcome struct {
	kind   string
	parsed map[string]interface{}
	err    error
}

// Enrich 并发执行角色分类与招聘官摘要，结果写回档案。
// 返回需要并入运行记录的警告。
func (e *Enricher) Enrich(ctx context.Context, p *Profile) []string {
	results := make(chan enrichOutcome, 2)

	go func() {
		parsed, err := e.callJSON(ctx, classifySystemPrompt, buildClassifyPrompt(p), e.classifyTemp)
		results <- enrichOutcome{kind: "classification", parsed: parsed, err: err}
	}()
	go func() {
		parsed, err := e.callJSON(ctx, summarySystemPrompt, buildSummaryPrompt(p), e.summaryTemp)
		results <- enrichOutcome{kind: "summary", parsed: parsed, err: err}
	}()

	var warnings []string
	for i := 0; i < 2; i++ {
		out := <-results
		if out.err != nil {
			logger.Warn().Err(out.err).Str("stage", out.kind).Msg("富化调用失败，运行降级为partial")
			if out.kind == "classification" {
				warnings = append(warnings, constants.WarnClassificationFailed)
			} else {
				warnings = append(warnings, constants.WarnSummaryFailed)
			}
			continue
		}
		if out.kind == "classification" {
			applyClassification(p, out.parsed)
		} else {
			applySummary(p, out.parsed)
		}
	}

	p.ensureSlices()
	return warnings
}

// callJSON 走回退链调一次模型并提取JSON对象。
func (e *Enricher) callJSON(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (map[string]interface{}, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}
	result, err := e.chain.Generate(ctx, messages, model.WithTemperature(temperature))
	if err != nil {
		return nil, err
	}
	return llm.ExtractJSONObject(result.Content)
}

func applyClassification(p *Profile, obj map[string]interface{}) {
	var c Classification
	b, err := json.Marshal(obj)
	if err != nil {
		return
	}
	_ = json.Unmarshal(b, &c)
	if len(c.SecondaryRoles) > 3 {
		c.SecondaryRoles = c.SecondaryRoles[:3]
	}
	c.Confidence = clamp01(c.Confidence)
	p.Classification = c
}

func applySummary(p *Profile, obj map[string]interface{}) {
	var s Summary
	b, err := json.Marshal(obj)
	if err != nil {
		return
	}
	_ = json.Unmarshal(b, &s)
	if len(s.Highlights) > 5 {
		s.Highlights = s.Highlights[:5]
	}
	p.Summary = s
}
