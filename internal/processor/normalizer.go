package processor

import (
	"encoding/json"
	"strings"

	"resume-agent-go/internal/constants"
)

// Shape 模型输出的结构形态分级
type Shape int

const (
	// ShapeWellFormed 通过schema校验
	ShapeWellFormed Shape = iota
	// ShapePartiallyFormed 可解析为JSON对象但存在schema违例
	ShapePartiallyFormed
	// ShapeGarbage 重提示后仍不是JSON对象
	ShapeGarbage
)

// ClassifyShape 根据schema校验结果给出形态分级。
// Garbage的判定（解析失败）发生在更早的JSON提取阶段。
func ClassifyShape(schemaErrors []string) Shape {
	if len(schemaErrors) == 0 {
		return ShapeWellFormed
	}
	return ShapePartiallyFormed
}

// 视为"至今"的日期写法
var currentDateWords = map[string]bool{
	"present": true,
	"current": true,
	"now":     true,
	"ongoing": true,
}

// Normalize 把模型输出的JSON对象合并到规范模板上。
// 只接收模板中已知的顶层键，字段类型不符时保留模板默认值
// （schema违例已在校验阶段记录过）。随后做日期归一与技能去重。
func Normalize(llmJSON map[string]interface{}) *Profile {
	p := NewProfile()
	if llmJSON != nil {
		assignKey(llmJSON, "schema_version", &p.SchemaVersion)
		assignKey(llmJSON, "candidate", &p.Candidate)
		assignKey(llmJSON, "skills", &p.Skills)
		assignKey(llmJSON, "education", &p.Education)
		assignKey(llmJSON, "experience", &p.Experience)
		assignKey(llmJSON, "projects", &p.Projects)
		assignKey(llmJSON, "certifications", &p.Certifications)
		assignKey(llmJSON, "classification", &p.Classification)
		assignKey(llmJSON, "summary", &p.Summary)
	}

	if p.SchemaVersion == "" {
		p.SchemaVersion = SchemaVersion
	}

	p.normalizeDates()
	p.dedupSkills()
	p.clampConfidences()
	// 质量区由流水线在反幻觉过滤后统一填写
	p.Quality = Quality{Warnings: []string{}, MissingCriticalFields: []string{}}
	p.ensureSlices()
	return p
}

// assignKey 把llmJSON[key]解码到dst。解码失败不报错，dst保留原值。
func assignKey(llmJSON map[string]interface{}, key string, dst interface{}) {
	raw, ok := llmJSON[key]
	if !ok || raw == nil {
		return
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return
	}
	// 类型不符的字段被跳过，其余字段照常填充
	_ = json.Unmarshal(b, dst)
}

// normalizeDates 把"present"/"current"类的结束日期归一为null；
// 工作经历同时置is_current。空串日期一律归null。
func (p *Profile) normalizeDates() {
	for i := range p.Education {
		p.Education[i].StartDate = cleanDate(p.Education[i].StartDate)
		if isCurrentWord(p.Education[i].EndDate) {
			p.Education[i].EndDate = nil
		} else {
			p.Education[i].EndDate = cleanDate(p.Education[i].EndDate)
		}
	}
	for i := range p.Experience {
		p.Experience[i].StartDate = cleanDate(p.Experience[i].StartDate)
		if isCurrentWord(p.Experience[i].EndDate) {
			p.Experience[i].EndDate = nil
			p.Experience[i].IsCurrent = true
		} else {
			p.Experience[i].EndDate = cleanDate(p.Experience[i].EndDate)
		}
	}
}

func isCurrentWord(date *string) bool {
	if date == nil {
		return false
	}
	return currentDateWords[strings.ToLower(strings.TrimSpace(*date))]
}

func cleanDate(date *string) *string {
	if date == nil || strings.TrimSpace(*date) == "" {
		return nil
	}
	return date
}

// dedupSkills 技能名大小写不敏感去重，保留置信度最高的那条，维持首次出现的顺序。
func (p *Profile) dedupSkills() {
	if len(p.Skills) == 0 {
		return
	}
	index := make(map[string]int, len(p.Skills))
	deduped := make([]Skill, 0, len(p.Skills))
	for _, s := range p.Skills {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if i, seen := index[key]; seen {
			if s.Confidence > deduped[i].Confidence {
				deduped[i] = s
			}
			continue
		}
		index[key] = len(deduped)
		deduped = append(deduped, s)
	}
	p.Skills = deduped
}

func (p *Profile) clampConfidences() {
	for i := range p.Skills {
		p.Skills[i].Confidence = clamp01(p.Skills[i].Confidence)
	}
	for i := range p.Education {
		p.Education[i].Confidence = clamp01(p.Education[i].Confidence)
	}
	for i := range p.Experience {
		p.Experience[i].Confidence = clamp01(p.Experience[i].Confidence)
	}
	p.Classification.Confidence = clamp01(p.Classification.Confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ConfidenceWeights 整体置信度的命名系数。
// 各分项命中加分，每个未验证联系字段扣分，结果截断到[0,1]。
type ConfidenceWeights struct {
	Base                float64
	Contact             float64
	SkillDepth          float64
	SkillDepthThreshold int
	Experience          float64
	Education           float64
	UnverifiedPenalty   float64
}

// DefaultConfidenceWeights 默认系数
var DefaultConfidenceWeights = ConfidenceWeights{
	Base:                0.2,
	Contact:             0.2,
	SkillDepth:          0.2,
	SkillDepthThreshold: 5,
	Experience:          0.2,
	Education:           0.2,
	UnverifiedPenalty:   0.05,
}

// ComputeConfidence 计算整体置信度。unverifiedCount为反幻觉过滤
// 剔除的联系字段数，每剔除一个按系数惩罚，保证被过滤的档案分数单调不升。
func (w ConfidenceWeights) ComputeConfidence(p *Profile, unverifiedCount int) float64 {
	score := w.Base
	if len(p.Candidate.Emails) > 0 || len(p.Candidate.Phones) > 0 {
		score += w.Contact
	}
	if len(p.Skills) >= w.SkillDepthThreshold {
		score += w.SkillDepth
	}
	for _, e := range p.Experience {
		if e.Company != nil && *e.Company != "" && e.Title != nil && *e.Title != "" {
			score += w.Experience
			break
		}
	}
	for _, ed := range p.Education {
		if ed.Institution != nil && *ed.Institution != "" && ed.Degree != nil && *ed.Degree != "" {
			score += w.Education
			break
		}
	}
	score -= float64(unverifiedCount) * w.UnverifiedPenalty
	return clamp01(score)
}

// MissingCriticalFields 找出缺失的关键字段。
func MissingCriticalFields(p *Profile) []string {
	var missing []string
	if p.Candidate.FullName == nil || strings.TrimSpace(*p.Candidate.FullName) == "" {
		missing = append(missing, "candidate.full_name")
	}
	if len(p.Candidate.Emails) == 0 && len(p.Candidate.Phones) == 0 {
		missing = append(missing, "candidate.emails/phones")
	}
	return missing
}

// DeriveStatus 由形态分级与缺失字段推导运行状态。
// 三大区块全空且有关键缺失 ⇒ failed；
// schema违例且有缺失 ⇒ partial；缺失达到2项 ⇒ partial；其余 ⇒ success。
func DeriveStatus(shape Shape, p *Profile, missing []string) string {
	if shape == ShapeGarbage {
		return constants.ParseStatusFailed
	}

	if len(p.Skills) == 0 && len(p.Education) == 0 && len(p.Experience) == 0 && len(missing) > 0 {
		return constants.ParseStatusFailed
	}

	if shape == ShapePartiallyFormed && len(missing) >= 1 {
		return constants.ParseStatusPartial
	}

	if len(missing) >= 2 {
		return constants.ParseStatusPartial
	}
	return constants.ParseStatusSuccess
}
