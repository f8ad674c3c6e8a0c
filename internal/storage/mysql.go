package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/storage/models"
)

// ErrRunNotFound 指定的ParseRun不存在
var ErrRunNotFound = errors.New("解析运行记录不存在")

// ErrRunTerminal 试图修改一个已处于终态的ParseRun
var ErrRunTerminal = errors.New("解析运行已是终态，不可修改")

// MySQL 关系型存储，持有GORM连接并封装ParseRun状态机的持久化操作
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL存储实例并按配置自动建表
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	logLevel := gormlogger.Warn
	if cfg.LogLevel == "info" {
		logLevel = gormlogger.Info
	} else if cfg.LogLevel == "silent" {
		logLevel = gormlogger.Silent
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层sql.DB失败: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifeMins > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeMins) * time.Minute)
	}

	m := &MySQL{db: db, cfg: cfg}
	if cfg.AutoMigrate {
		if err := m.autoMigrateSchema(); err != nil {
			return nil, fmt.Errorf("数据库自动迁移失败: %w", err)
		}
	}
	return m, nil
}

func (m *MySQL) autoMigrateSchema() error {
	return m.db.AutoMigrate(
		&models.ResumeDocument{},
		&models.ParseRun{},
		&models.ParseRunStatusLog{},
		&models.Candidate{},
		&models.CandidateSkill{},
		&models.EducationEntry{},
		&models.ExperienceEntry{},
		&models.CandidateEditLog{},
		&models.OutboxMessage{},
	)
}

// DB 返回底层GORM实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDocumentWithRun 在同一事务内创建文档、排队中的ParseRun以及
// 入队用的发件箱消息，保证三者要么全部落库要么全部失败。
func (m *MySQL) CreateDocumentWithRun(ctx context.Context, doc *models.ResumeDocument, run *models.ParseRun, msg *models.OutboxMessage) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("创建简历文档失败: %w", err)
		}
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("创建解析运行失败: %w", err)
		}
		if msg != nil {
			if err := tx.Create(msg).Error; err != nil {
				return fmt.Errorf("写入发件箱消息失败: %w", err)
			}
		}
		return logStatusChange(tx, run.RunID, "", constants.ParseStatusQueued, "上传入队")
	})
}

// CreateRetryRun 针对同一文档创建一条新的排队运行。终态行从不被重开，
// 默认携带上一次运行的RequirementSpec快照，除非调用方显式覆盖。
func (m *MySQL) CreateRetryRun(ctx context.Context, prior *models.ParseRun, newRun *models.ParseRun, msg *models.OutboxMessage) error {
	if !constants.IsTerminalStatus(prior.Status) {
		return fmt.Errorf("上一条运行 %s 尚未终态(%s)，不能重试", prior.RunID, prior.Status)
	}
	if len(newRun.Requirements) == 0 {
		newRun.Requirements = prior.Requirements
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(newRun).Error; err != nil {
			return fmt.Errorf("创建重试运行失败: %w", err)
		}
		if msg != nil {
			if err := tx.Create(msg).Error; err != nil {
				return fmt.Errorf("写入发件箱消息失败: %w", err)
			}
		}
		return logStatusChange(tx, newRun.RunID, "", constants.ParseStatusQueued, "重试入队(基于 "+prior.RunID+")")
	})
}

// GetParseRun 按ID加载ParseRun及其文档
func (m *MySQL) GetParseRun(ctx context.Context, runID string) (*models.ParseRun, error) {
	var run models.ParseRun
	err := m.db.WithContext(ctx).Preload("Document").First(&run, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetLatestRunForDocument 返回文档最近创建的一条运行
func (m *MySQL) GetLatestRunForDocument(ctx context.Context, documentID string) (*models.ParseRun, error) {
	var run models.ParseRun
	err := m.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at desc").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ClaimParseRun 原子认领：仅当运行处于queued、或processing但租约已过期
// （worker失活）时才能认领成功。受影响行数为1即获得独占处理权，
// 保证不会有两个worker同时处理同一条运行。
func (m *MySQL) ClaimParseRun(ctx context.Context, runID string, lease time.Duration) (bool, error) {
	now := time.Now()
	leaseExpiry := now.Add(lease)
	res := m.db.WithContext(ctx).Model(&models.ParseRun{}).
		Where("run_id = ? AND (status = ? OR (status = ? AND lease_expires_at < ?))",
			runID, constants.ParseStatusQueued, constants.ParseStatusProcessing, now).
		Updates(map[string]interface{}{
			"status":           constants.ParseStatusProcessing,
			"progress_stage":   constants.StageExtractingText,
			"task_started_at":  now,
			"lease_expires_at": leaseExpiry,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, logStatusChange(m.db.WithContext(ctx), runID, constants.ParseStatusQueued, constants.ParseStatusProcessing, "worker认领")
}

// UpdateRunProgress 更新进度阶段，只在运行仍被本worker持有时生效
func (m *MySQL) UpdateRunProgress(ctx context.Context, runID string, stage string) error {
	return m.db.WithContext(ctx).Model(&models.ParseRun{}).
		Where("run_id = ? AND status = ?", runID, constants.ParseStatusProcessing).
		Update("progress_stage", stage).Error
}

// UpdateRunLLMResult 记录抽取LLM调用的原始输出与元数据
func (m *MySQL) UpdateRunLLMResult(ctx context.Context, runID string, provider, modelName string, rawJSON []byte, latencyMS int64, inputTokens, outputTokens *int, attemptCount int) error {
	updates := map[string]interface{}{
		"provider":      provider,
		"model_name":    modelName,
		"latency_ms":    latencyMS,
		"attempt_count": attemptCount,
	}
	if len(rawJSON) > 0 {
		updates["llm_raw_json"] = rawJSON
	}
	if inputTokens != nil {
		updates["input_tokens"] = *inputTokens
	}
	if outputTokens != nil {
		updates["output_tokens"] = *outputTokens
	}
	return m.db.WithContext(ctx).Model(&models.ParseRun{}).
		Where("run_id = ? AND status = ?", runID, constants.ParseStatusProcessing).
		Updates(updates).Error
}

// RequeueRunForRetry 将处理中的运行改回queued等待下一次尝试，
// 记录本次失败的错误码并递增尝试计数。
func (m *MySQL) RequeueRunForRetry(ctx context.Context, runID string, attemptCount int, errCode, errMessage string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ParseRun{}).
			Where("run_id = ? AND status = ?", runID, constants.ParseStatusProcessing).
			Updates(map[string]interface{}{
				"status":           constants.ParseStatusQueued,
				"progress_stage":   constants.StageQueued,
				"attempt_count":    attemptCount,
				"error_code":       errCode,
				"error_message":    errMessage,
				"lease_expires_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRunTerminal
		}
		return logStatusChange(tx, runID, constants.ParseStatusProcessing, constants.ParseStatusQueued,
			fmt.Sprintf("等待重试(第%d次, %s)", attemptCount, errCode))
	})
}

// FinalizeRun 将处理中的运行写入终态。WHERE条件保证单写者：
// 终态一经写入，本方法不可能再次改写同一条运行。
func (m *MySQL) FinalizeRun(ctx context.Context, runID string, status string, errCode, errMessage string, normalized, warnings []byte) error {
	if !constants.IsTerminalStatus(status) {
		return fmt.Errorf("FinalizeRun 只接受终态，收到 %q", status)
	}
	now := time.Now()
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":            status,
			"progress_stage":    constants.StageComplete,
			"error_code":        errCode,
			"error_message":     errMessage,
			"task_completed_at": now,
			"lease_expires_at":  nil,
		}
		if len(normalized) > 0 {
			updates["normalized_json"] = normalized
		}
		if len(warnings) > 0 {
			updates["warnings"] = warnings
		}
		res := tx.Model(&models.ParseRun{}).
			Where("run_id = ? AND status = ?", runID, constants.ParseStatusProcessing).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRunTerminal
		}
		return logStatusChange(tx, runID, constants.ParseStatusProcessing, status, errCode)
	})
}

// PersistCandidate 将候选人及其子表在一个事务内写入。以RunID为幂等键：
// at-least-once重放时先清掉同一运行的旧投影再整体重建，all-or-nothing。
func (m *MySQL) PersistCandidate(ctx context.Context, cand *models.Candidate, skills []models.CandidateSkill, education []models.EducationEntry, experience []models.ExperienceEntry) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Candidate
		err := tx.Where("run_id = ?", cand.RunID).First(&existing).Error
		if err == nil {
			if err := tx.Delete(&models.Candidate{}, "candidate_id = ?", existing.CandidateID).Error; err != nil {
				return fmt.Errorf("清理旧候选人投影失败: %w", err)
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(cand).Error; err != nil {
			return fmt.Errorf("创建候选人失败: %w", err)
		}
		for i := range skills {
			skills[i].CandidateID = cand.CandidateID
		}
		for i := range education {
			education[i].CandidateID = cand.CandidateID
		}
		for i := range experience {
			experience[i].CandidateID = cand.CandidateID
		}
		if len(skills) > 0 {
			if err := tx.Create(&skills).Error; err != nil {
				return fmt.Errorf("创建技能子表失败: %w", err)
			}
		}
		if len(education) > 0 {
			if err := tx.Create(&education).Error; err != nil {
				return fmt.Errorf("创建教育经历失败: %w", err)
			}
		}
		if len(experience) > 0 {
			if err := tx.Create(&experience).Error; err != nil {
				return fmt.Errorf("创建工作经历失败: %w", err)
			}
		}
		return nil
	})
}

// DeleteCandidateForRun 删除某次运行的候选人投影（需求拒绝时回滚用）
func (m *MySQL) DeleteCandidateForRun(ctx context.Context, runID string) error {
	return m.db.WithContext(ctx).Delete(&models.Candidate{}, "run_id = ?", runID).Error
}

// GetCandidate 按ID加载候选人
func (m *MySQL) GetCandidate(ctx context.Context, candidateID string) (*models.Candidate, error) {
	var cand models.Candidate
	err := m.db.WithContext(ctx).First(&cand, "candidate_id = ?", candidateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gorm.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cand, nil
}

// UpdateCandidateWithAudit 人工编辑候选人字段并写入字段级差异审计，
// 原始ParseRun保持不变。
func (m *MySQL) UpdateCandidateWithAudit(ctx context.Context, candidateID string, editedBy *string, updates map[string]interface{}, changes map[string]map[string]interface{}) error {
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("序列化编辑差异失败: %w", err)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Candidate{}).
			Where("candidate_id = ?", candidateID).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(&models.CandidateEditLog{
			CandidateID: candidateID,
			EditedBy:    editedBy,
			Changes:     changesJSON,
		}).Error
	})
}

// FindDocumentByHash 按内容哈希查找已有文档，用于上传去重兜底
func (m *MySQL) FindDocumentByHash(ctx context.Context, fileHash string) (*models.ResumeDocument, error) {
	var doc models.ResumeDocument
	err := m.db.WithContext(ctx).First(&doc, "file_hash = ?", fileHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// SetDocumentRawText 首次写入提取文本。raw_text只写一次，
// 已有内容的文档不会被覆盖。
func (m *MySQL) SetDocumentRawText(ctx context.Context, documentID, rawText, method, textPath string) error {
	return m.db.WithContext(ctx).Model(&models.ResumeDocument{}).
		Where("document_id = ? AND (raw_text IS NULL OR raw_text = '')", documentID).
		Updates(map[string]interface{}{
			"raw_text":          rawText,
			"extraction_method": method,
			"raw_text_path":     textPath,
		}).Error
}

func logStatusChange(tx *gorm.DB, runID, oldStatus, newStatus, reason string) error {
	return tx.Create(&models.ParseRunStatusLog{
		RunID:     runID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Reason:    reason,
	}).Error
}
