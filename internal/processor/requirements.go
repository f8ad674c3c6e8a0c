package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resume-agent-go/internal/llm"
	"resume-agent-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RequirementSpec 调用方随上传附带的筛选条件。
// JSON键名与上传接口的requirements字段一致。
type RequirementSpec struct {
	RequiredSkills    []string `json:"required_skills,omitempty"`
	AnySkills         []string `json:"any_skills,omitempty"`
	MinYearsExp       *float64 `json:"min_years_experience,omitempty"`
	RequiredDegrees   []string `json:"required_education_degree,omitempty"`
	RequiredRoles     []string `json:"required_primary_role,omitempty"`
	RequiredSeniority []string `json:"required_seniority,omitempty"`
	LocationContains  string   `json:"location_contains,omitempty"`
	MinConfidence     *float64 `json:"min_confidence,omitempty"`
	UseLLMValidation  *bool    `json:"use_llm_validation,omitempty"`
}

// IsEmpty 没有任何条件时无需评估。
func (r *RequirementSpec) IsEmpty() bool {
	return r == nil || (len(r.RequiredSkills) == 0 && len(r.AnySkills) == 0 &&
		r.MinYearsExp == nil && len(r.RequiredDegrees) == 0 &&
		len(r.RequiredRoles) == 0 && len(r.RequiredSeniority) == 0 &&
		r.LocationContains == "" && r.MinConfidence == nil)
}

// wantsLLM 是否显式请求了语义匹配。未显式开启时只做确定性匹配，
// 保证同一档案与同一条件的评估结果可复现。
func (r *RequirementSpec) wantsLLM() bool {
	return r.UseLLMValidation != nil && *r.UseLLMValidation
}

// RequirementEvaluator 对规范化档案评估筛选条件。
// chain为nil时只做确定性匹配。
type RequirementEvaluator struct {
	chain *llm.FallbackChain
}

func NewRequirementEvaluator(chain *llm.FallbackChain) *RequirementEvaluator {
	return &RequirementEvaluator{chain: chain}
}

// Evaluate 评估候选人是否满足条件，返回(是否通过, 有序的人类可读原因)。
// 请求语义匹配时委托模型评估，模型不可用则回落到确定性匹配——
// 筛选决不因模型故障而阻塞。
func (e *RequirementEvaluator) Evaluate(ctx context.Context, p *Profile, spec *RequirementSpec) (bool, []string) {
	if spec.IsEmpty() {
		return true, nil
	}

	if spec.wantsLLM() && e.chain != nil {
		meets, reasons, err := e.evaluateLLM(ctx, p, spec)
		if err == nil {
			return meets, reasons
		}
		logger.Warn().Err(err).Msg("模型筛选评估失败，回落到确定性匹配")
	}

	return EvaluateDeterministic(p, spec)
}

// evaluateLLM 语义匹配一次。任何错误（含非JSON输出）交给调用方回落。
func (e *RequirementEvaluator) evaluateLLM(ctx context.Context, p *Profile, spec *RequirementSpec) (bool, []string, error) {
	candidateData := map[string]interface{}{
		"full_name":          p.Candidate.FullName,
		"primary_role":       p.Classification.PrimaryRole,
		"seniority":          p.Classification.Seniority,
		"location":           p.Candidate.Location,
		"overall_confidence": p.Quality.OverallConfidence,
		"skills":             skillNames(p),
		"experience":         p.Experience,
		"education":          p.Education,
	}

	messages := []*schema.Message{
		schema.SystemMessage(requirementsSystemPrompt),
		schema.UserMessage(buildRequirementsPrompt(candidateData, spec)),
	}
	result, err := e.chain.Generate(ctx, messages, model.WithTemperature(0.1))
	if err != nil {
		return false, nil, err
	}

	parsed, err := llm.ExtractJSONObject(result.Content)
	if err != nil {
		return false, nil, err
	}

	meets, _ := parsed["meets_requirements"].(bool)
	var reasons []string
	switch v := parsed["reasons"].(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				reasons = append(reasons, s)
			}
		}
	case string:
		reasons = append(reasons, v)
	}
	if !meets && len(reasons) == 0 {
		reasons = []string{"candidate declined without specific reasons"}
	}
	return meets, reasons, nil
}

// EvaluateDeterministic 确定性匹配。检查顺序固定，相同输入
// 永远得到相同的结论与相同顺序的原因。
func EvaluateDeterministic(p *Profile, spec *RequirementSpec) (bool, []string) {
	var reasons []string

	candSkills := make(map[string]bool)
	for _, s := range p.Skills {
		candSkills[cleanString(s.Name)] = true
	}

	// 1. 必备技能（全部命中）
	for _, req := range spec.RequiredSkills {
		if !skillMatches(candSkills, cleanString(req)) {
			reasons = append(reasons, fmt.Sprintf("missing required skill: %s", req))
		}
	}

	// 2. 任选技能（至少一个）
	if len(spec.AnySkills) > 0 {
		found := false
		for _, req := range spec.AnySkills {
			if skillMatches(candSkills, cleanString(req)) {
				found = true
				break
			}
		}
		if !found {
			reasons = append(reasons, fmt.Sprintf("missing any of the preferred skills: %s", strings.Join(spec.AnySkills, ", ")))
		}
	}

	// 3. 最低工作年限
	if spec.MinYearsExp != nil {
		total := totalExperienceYears(p)
		if total < *spec.MinYearsExp {
			reasons = append(reasons, fmt.Sprintf("insufficient experience: %.1f years (minimum %g)", total, *spec.MinYearsExp))
		}
	}

	// 4. 学历
	if len(spec.RequiredDegrees) > 0 {
		hasDegree := false
		for _, req := range spec.RequiredDegrees {
			reqClean := cleanString(req)
			for _, ed := range p.Education {
				if ed.Degree != nil && strings.Contains(cleanString(*ed.Degree), reqClean) {
					hasDegree = true
					break
				}
			}
			if hasDegree {
				break
			}
		}
		if !hasDegree {
			reasons = append(reasons, fmt.Sprintf("missing required degree: %s", strings.Join(spec.RequiredDegrees, ", ")))
		}
	}

	// 5. 角色
	if len(spec.RequiredRoles) > 0 {
		candRole := ""
		if p.Classification.PrimaryRole != nil {
			candRole = cleanString(*p.Classification.PrimaryRole)
		}
		match := false
		for _, role := range spec.RequiredRoles {
			roleClean := cleanString(role)
			if candRole != "" && (strings.Contains(candRole, roleClean) || strings.Contains(roleClean, candRole)) {
				match = true
				break
			}
		}
		if !match {
			reasons = append(reasons, fmt.Sprintf("role mismatch: %s (required: %s)",
				derefOr(p.Classification.PrimaryRole, "none"), strings.Join(spec.RequiredRoles, ", ")))
		}
	}

	// 6. 级别
	if len(spec.RequiredSeniority) > 0 {
		candSeniority := ""
		if p.Classification.Seniority != nil {
			candSeniority = cleanString(*p.Classification.Seniority)
		}
		match := false
		for _, s := range spec.RequiredSeniority {
			if cleanString(s) == candSeniority {
				match = true
				break
			}
		}
		if !match {
			reasons = append(reasons, fmt.Sprintf("seniority mismatch: %s (required: %s)",
				derefOr(p.Classification.Seniority, "none"), strings.Join(spec.RequiredSeniority, ", ")))
		}
	}

	// 7. 地点
	if spec.LocationContains != "" {
		candLoc := ""
		if p.Candidate.Location != nil {
			candLoc = cleanString(*p.Candidate.Location)
		}
		if !strings.Contains(candLoc, cleanString(spec.LocationContains)) {
			reasons = append(reasons, fmt.Sprintf("location mismatch: %s (must contain '%s')",
				derefOr(p.Candidate.Location, "none"), spec.LocationContains))
		}
	}

	// 8. 置信度
	if spec.MinConfidence != nil && p.Quality.OverallConfidence < *spec.MinConfidence {
		reasons = append(reasons, fmt.Sprintf("low confidence score: %.2f (minimum %g)",
			p.Quality.OverallConfidence, *spec.MinConfidence))
	}

	return len(reasons) == 0, reasons
}

// skillMatches 精确命中或双向子串命中
func skillMatches(candSkills map[string]bool, reqClean string) bool {
	if reqClean == "" {
		return true
	}
	if candSkills[reqClean] {
		return true
	}
	for cs := range candSkills {
		if strings.Contains(cs, reqClean) || strings.Contains(reqClean, cs) {
			return true
		}
	}
	return false
}

// totalExperienceYears 累加各段经历的年数。
// 在职经历按当前时间截止，解析不了的日期跳过该段。
func totalExperienceYears(p *Profile) float64 {
	now := time.Now()
	total := 0.0
	for _, exp := range p.Experience {
		start := parseFlexibleDate(exp.StartDate)
		if start == nil {
			continue
		}
		end := parseFlexibleDate(exp.EndDate)
		if end == nil && exp.IsCurrent {
			end = &now
		}
		if end != nil && end.After(*start) {
			total += end.Sub(*start).Hours() / 24 / 365.25
		}
	}
	return total
}

// parseFlexibleDate 解析YYYY、YYYY-MM或YYYY-MM-DD。
func parseFlexibleDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	value := strings.TrimSpace(*s)
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func skillNames(p *Profile) []string {
	names := make([]string, 0, len(p.Skills))
	for _, s := range p.Skills {
		names = append(names, s.Name)
	}
	return names
}

func cleanString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
