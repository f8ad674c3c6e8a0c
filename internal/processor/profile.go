package processor

// 规范化简历档案的类型定义。
// JSON字段名与抽取prompt中发给模型的模板一一对应。

// Profile 规范化后的简历档案，流水线各阶段在此结构上工作。
type Profile struct {
	SchemaVersion  string                   `json:"schema_version"`
	Candidate      CandidateInfo            `json:"candidate"`
	Skills         []Skill                  `json:"skills"`
	Education      []Education              `json:"education"`
	Experience     []Experience             `json:"experience"`
	Projects       []map[string]interface{} `json:"projects"`
	Certifications []map[string]interface{} `json:"certifications"`
	Classification Classification           `json:"classification"`
	Summary        Summary                  `json:"summary"`
	Quality        Quality                  `json:"quality"`
}

// CandidateInfo 候选人基本信息与联系方式
type CandidateInfo struct {
	FullName *string  `json:"full_name"`
	Headline *string  `json:"headline"`
	Location *string  `json:"location"`
	Emails   []string `json:"emails"`
	Phones   []string `json:"phones"`
	Links    Links    `json:"links"`
}

// Links 候选人的专业链接
type Links struct {
	Linkedin  *string  `json:"linkedin"`
	Github    *string  `json:"github"`
	Portfolio *string  `json:"portfolio"`
	Other     []string `json:"other"`
}

// Skill 技能条目，evidence必须是简历原文片段
type Skill struct {
	Name       string   `json:"name"`
	Category   *string  `json:"category"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// Education 教育经历
type Education struct {
	Institution  *string  `json:"institution"`
	Degree       *string  `json:"degree"`
	FieldOfStudy *string  `json:"field_of_study"`
	StartDate    *string  `json:"start_date"`
	EndDate      *string  `json:"end_date"`
	Grade        *string  `json:"grade"`
	Confidence   float64  `json:"confidence"`
	Evidence     []string `json:"evidence"`
}

// Experience 工作经历
type Experience struct {
	Company        *string  `json:"company"`
	Title          *string  `json:"title"`
	EmploymentType *string  `json:"employment_type"`
	StartDate      *string  `json:"start_date"`
	EndDate        *string  `json:"end_date"`
	IsCurrent      bool     `json:"is_current"`
	Location       *string  `json:"location"`
	Bullets        []string `json:"bullets"`
	Technologies   []string `json:"technologies"`
	Confidence     float64  `json:"confidence"`
	Evidence       []string `json:"evidence"`
}

// Classification 模型生成的角色与级别分类
type Classification struct {
	PrimaryRole    *string  `json:"primary_role"`
	SecondaryRoles []string `json:"secondary_roles"`
	Seniority      *string  `json:"seniority"`
	Confidence     float64  `json:"confidence"`
	Rationale      *string  `json:"rationale"`
}

// Summary 模型生成的招聘官摘要
type Summary struct {
	OneLiner   *string  `json:"one_liner"`
	Highlights []string `json:"highlights"`
}

// Quality 抽取质量指标
type Quality struct {
	Warnings              []string `json:"warnings"`
	MissingCriticalFields []string `json:"missing_critical_fields"`
	OverallConfidence     float64  `json:"overall_confidence"`
}

// SchemaVersion 当前档案结构版本
const SchemaVersion = "1.0"

// NewProfile 返回规范模板：所有键就位、数组为空、标量为null。
// 序列化后即抽取prompt中要求模型遵循的模板。
func NewProfile() *Profile {
	return &Profile{
		SchemaVersion: SchemaVersion,
		Candidate: CandidateInfo{
			Emails: []string{},
			Phones: []string{},
			Links:  Links{Other: []string{}},
		},
		Skills:         []Skill{},
		Education:      []Education{},
		Experience:     []Experience{},
		Projects:       []map[string]interface{}{},
		Certifications: []map[string]interface{}{},
		Classification: Classification{SecondaryRoles: []string{}},
		Summary:        Summary{Highlights: []string{}},
		Quality: Quality{
			Warnings:              []string{},
			MissingCriticalFields: []string{},
		},
	}
}

// ensureSlices 把nil切片换成空切片，保证序列化输出[]而不是null。
func (p *Profile) ensureSlices() {
	if p.Candidate.Emails == nil {
		p.Candidate.Emails = []string{}
	}
	if p.Candidate.Phones == nil {
		p.Candidate.Phones = []string{}
	}
	if p.Candidate.Links.Other == nil {
		p.Candidate.Links.Other = []string{}
	}
	if p.Skills == nil {
		p.Skills = []Skill{}
	}
	if p.Education == nil {
		p.Education = []Education{}
	}
	if p.Experience == nil {
		p.Experience = []Experience{}
	}
	if p.Projects == nil {
		p.Projects = []map[string]interface{}{}
	}
	if p.Certifications == nil {
		p.Certifications = []map[string]interface{}{}
	}
	if p.Classification.SecondaryRoles == nil {
		p.Classification.SecondaryRoles = []string{}
	}
	if p.Summary.Highlights == nil {
		p.Summary.Highlights = []string{}
	}
	if p.Quality.Warnings == nil {
		p.Quality.Warnings = []string{}
	}
	if p.Quality.MissingCriticalFields == nil {
		p.Quality.MissingCriticalFields = []string{}
	}
}
