package models

import (
	"time"

	"gorm.io/datatypes"
)

// ResumeDocument 简历原始文档表。raw_text 一经写入不再变更，
// 作为重新解析的只读数据源；file_hash 用于上传去重。
type ResumeDocument struct {
	DocumentID       string    `gorm:"type:char(36);primaryKey"`
	OriginalFilename string    `gorm:"type:varchar(255);not null"`
	MimeType         string    `gorm:"type:varchar(100)"`
	FileHash         string    `gorm:"type:char(64);index:idx_rd_file_hash"` // SHA-256十六进制
	FileSize         int64     `gorm:"not null;default:0"`
	StoragePath      string    `gorm:"type:varchar(1024)"` // MinIO中原始文件对象路径
	RawTextPath      string    `gorm:"type:varchar(1024)"` // MinIO中提取文本对象路径
	RawText          string    `gorm:"type:longtext"`
	ExtractionMethod string    `gorm:"type:varchar(50)"`
	UploadedBy       *string   `gorm:"type:char(36)"`
	CreatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_rd_created_at"`
	UpdatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (ResumeDocument) TableName() string {
	return "resume_documents"
}

// ParseRun 一次针对ResumeDocument的解析尝试。历史不可变：
// 重试会创建新行，终态行的字段永不改写。
type ParseRun struct {
	RunID         string `gorm:"type:char(36);primaryKey"`
	DocumentID    string `gorm:"type:char(36);not null;index:idx_pr_document_id;index:idx_pr_document_status,priority:1"`
	Status        string `gorm:"type:varchar(20);default:'queued';index:idx_pr_status;index:idx_pr_document_status,priority:2"`
	ProgressStage string `gorm:"type:varchar(30);default:'queued'"`

	Provider      string  `gorm:"type:varchar(100)"`
	ModelName     string  `gorm:"type:varchar(100)"`
	PromptVersion string  `gorm:"type:varchar(20);default:'v1'"`
	Temperature   float64 `gorm:"default:0.1"`

	LatencyMS    *int64 `gorm:""`
	InputTokens  *int   `gorm:""`
	OutputTokens *int   `gorm:""`

	LLMRawJSON     datatypes.JSON `gorm:"type:json"`
	NormalizedJSON datatypes.JSON `gorm:"type:json"`
	Warnings       datatypes.JSON `gorm:"type:json"` // 有序字符串列表
	Requirements   datatypes.JSON `gorm:"type:json"` // RequirementSpec快照，重试时随运行携带

	ErrorCode    string `gorm:"type:varchar(50)"`
	ErrorMessage string `gorm:"type:text"`

	AttemptCount    int        `gorm:"default:0"`
	TaskStartedAt   *time.Time `gorm:"type:datetime(6)"`
	TaskCompletedAt *time.Time `gorm:"type:datetime(6)"`
	LeaseExpiresAt  *time.Time `gorm:"type:datetime(6)"` // processing 租约，过期可被其他worker重新认领

	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_pr_created_at"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Document *ResumeDocument `gorm:"foreignKey:DocumentID;references:DocumentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ParseRun) TableName() string {
	return "parse_runs"
}

// ParseRunStatusLog ParseRun状态变迁审计表
type ParseRunStatusLog struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	RunID     string    `gorm:"type:char(36);not null;index:idx_prsl_run_changed,priority:1"`
	OldStatus string    `gorm:"type:varchar(20)"`
	NewStatus string    `gorm:"type:varchar(20);not null"`
	Reason    string    `gorm:"type:text"`
	ChangedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_prsl_run_changed,priority:2,sort:desc"`

	ParseRun *ParseRun `gorm:"foreignKey:RunID;references:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ParseRunStatusLog) TableName() string {
	return "parse_run_status_logs"
}

// Candidate 候选人表，恰好对应一个成功的ParseRun的归一化投影
type Candidate struct {
	CandidateID string `gorm:"type:char(36);primaryKey"`
	DocumentID  string `gorm:"type:char(36);not null;index:idx_c_document_id"`
	RunID       string `gorm:"type:char(36);not null;uniqueIndex:idx_c_run_unique"` // 每个ParseRun最多一个候选人

	FullName string `gorm:"type:varchar(255)"`
	Headline string `gorm:"type:varchar(255)"`
	Location string `gorm:"type:varchar(255)"`

	PrimaryEmail string `gorm:"type:varchar(255)"`
	PrimaryPhone string `gorm:"type:varchar(50)"`
	LinkedIn     string `gorm:"type:varchar(255)"`
	GitHub       string `gorm:"type:varchar(255)"`
	Portfolio    string `gorm:"type:varchar(255)"`

	PrimaryRole string  `gorm:"type:varchar(100);index:idx_c_primary_role"`
	Seniority   string  `gorm:"type:varchar(50);index:idx_c_seniority"`
	OverallConf float64 `gorm:"column:overall_confidence;default:0;index:idx_c_overall_confidence"`

	SummaryOneLiner   string         `gorm:"type:text"`
	SummaryHighlights datatypes.JSON `gorm:"type:json"`

	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_c_created_at"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Document *ResumeDocument `gorm:"foreignKey:DocumentID;references:DocumentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	ParseRun *ParseRun       `gorm:"foreignKey:RunID;references:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// CandidateSkill 候选人技能子表，带置信度和证据片段
type CandidateSkill struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	CandidateID string         `gorm:"type:char(36);not null;index:idx_cs_candidate_name,priority:1"`
	Name        string         `gorm:"type:varchar(100);not null;index:idx_cs_name;index:idx_cs_candidate_name,priority:2"`
	Category    string         `gorm:"type:varchar(100)"`
	Confidence  float64        `gorm:"default:0"`
	Evidence    datatypes.JSON `gorm:"type:json"` // 来自原文的证据子串

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (CandidateSkill) TableName() string {
	return "candidate_skills"
}

// EducationEntry 教育经历子表
type EducationEntry struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement"`
	CandidateID  string         `gorm:"type:char(36);not null;index:idx_ee_candidate_id"`
	Institution  string         `gorm:"type:varchar(255);index:idx_ee_institution"`
	Degree       string         `gorm:"type:varchar(255);index:idx_ee_degree"`
	FieldOfStudy string         `gorm:"type:varchar(255)"`
	StartDate    string         `gorm:"type:varchar(10)"` // YYYY[-MM[-DD]]
	EndDate      string         `gorm:"type:varchar(10)"`
	Grade        string         `gorm:"type:varchar(50)"`
	Confidence   float64        `gorm:"default:0"`
	Evidence     datatypes.JSON `gorm:"type:json"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (EducationEntry) TableName() string {
	return "education_entries"
}

// ExperienceEntry 工作经历子表
type ExperienceEntry struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement"`
	CandidateID    string         `gorm:"type:char(36);not null;index:idx_xe_candidate_current,priority:1"`
	Company        string         `gorm:"type:varchar(255);index:idx_xe_company"`
	Title          string         `gorm:"type:varchar(255);index:idx_xe_title"`
	EmploymentType string         `gorm:"type:varchar(50)"`
	StartDate      string         `gorm:"type:varchar(10)"`
	EndDate        string         `gorm:"type:varchar(10)"`
	IsCurrent      bool           `gorm:"default:false;index:idx_xe_candidate_current,priority:2"`
	Location       string         `gorm:"type:varchar(255)"`
	Bullets        datatypes.JSON `gorm:"type:json"`
	Technologies   datatypes.JSON `gorm:"type:json"`
	Confidence     float64        `gorm:"default:0"`
	Evidence       datatypes.JSON `gorm:"type:json"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ExperienceEntry) TableName() string {
	return "experience_entries"
}

// CandidateEditLog 人工修改审计表。人工编辑只记录在这里，
// 永不回写产生该候选人的ParseRun。
type CandidateEditLog struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	CandidateID string         `gorm:"type:char(36);not null;index:idx_cel_candidate_edited,priority:1"`
	EditedBy    *string        `gorm:"type:char(36)"`
	EditedAt    time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_cel_candidate_edited,priority:2,sort:desc"`
	Changes     datatypes.JSON `gorm:"type:json;not null"` // { "field": {"from": old, "to": new}, ... }

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (CandidateEditLog) TableName() string {
	return "candidate_edit_logs"
}
