package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/processor"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/storage/models"
)

// APIError 带HTTP状态码和机器可读错误码的接口错误
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func apiError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// ResumeHandler 简历接口处理器。协调上传、查询、重试、人工编辑，
// 解析本身交给流水线与消费者。
type ResumeHandler struct {
	cfg      *config.Config
	store    *storage.Storage
	pipeline *processor.Pipeline
}

// NewResumeHandler 创建接口处理器
func NewResumeHandler(cfg *config.Config, store *storage.Storage, pipeline *processor.Pipeline) *ResumeHandler {
	return &ResumeHandler{
		cfg:      cfg,
		store:    store,
		pipeline: pipeline,
	}
}

// UploadRequest 单文件上传参数
type UploadRequest struct {
	Filename     string
	MimeType     string
	Data         []byte
	Requirements string  // 可选的岗位需求JSON
	Sync         bool    // true则同步解析，响应里带终态
	UploadedBy   *string // 可选的操作者标识
}

// UploadResponse 上传响应
type UploadResponse struct {
	DocumentID string `json:"document_id"`
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	// Duplicate true表示该文件内容此前已上传过
	Duplicate bool `json:"duplicate,omitempty"`
}

// HandleUpload 处理单文件上传：去重、入库、入队（或同步解析）。
// 文档行、运行行与发件箱消息在同一事务内创建，投递由中继保证。
func (h *ResumeHandler) HandleUpload(ctx context.Context, req *UploadRequest) (*UploadResponse, error) {
	if int64(len(req.Data)) > h.cfg.Pipeline.MaxFileSizeBytes {
		return nil, apiError(413, constants.ErrCodeFileTooLarge,
			fmt.Sprintf("文件大小 %d 超过上限 %d", len(req.Data), h.cfg.Pipeline.MaxFileSizeBytes))
	}
	if len(req.Data) == 0 {
		return nil, apiError(400, constants.ErrCodeNoRawText, "上传文件为空")
	}

	requirements, err := parseRequirements(req.Requirements)
	if err != nil {
		return nil, apiError(400, "INVALID_REQUIREMENTS", err.Error())
	}

	sum := sha256.Sum256(req.Data)
	fileHash := hex.EncodeToString(sum[:])

	// Redis做原子去重，Redis降级时退回数据库哈希查询
	if dup, resp := h.checkDuplicate(ctx, fileHash); dup {
		return resp, nil
	}

	documentID := uuid.Must(uuid.NewV7()).String()
	runID := uuid.Must(uuid.NewV7()).String()

	storagePath, err := h.store.MinIO.UploadResumeFile(ctx, documentID, req.Filename, req.Data, req.MimeType)
	if err != nil {
		h.releaseHash(ctx, fileHash)
		return nil, fmt.Errorf("上传文件到对象存储失败: %w", err)
	}

	doc := &models.ResumeDocument{
		DocumentID:       documentID,
		OriginalFilename: req.Filename,
		MimeType:         req.MimeType,
		FileHash:         fileHash,
		FileSize:         int64(len(req.Data)),
		StoragePath:      storagePath,
		UploadedBy:       req.UploadedBy,
	}
	run := &models.ParseRun{
		RunID:         runID,
		DocumentID:    documentID,
		Status:        constants.ParseStatusQueued,
		ProgressStage: constants.StageQueued,
		PromptVersion: constants.PromptVersion,
		Temperature:   h.cfg.LLM.ExtractionTemperature,
		Requirements:  requirements,
	}

	var msg *models.OutboxMessage
	if !req.Sync {
		msg, err = h.buildQueuedMessage(runID, documentID, constants.EventTypeParseRunQueued)
		if err != nil {
			return nil, err
		}
	}

	if err := h.store.MySQL.CreateDocumentWithRun(ctx, doc, run, msg); err != nil {
		h.releaseHash(ctx, fileHash)
		return nil, fmt.Errorf("创建文档与解析运行失败: %w", err)
	}

	status := constants.ParseStatusQueued
	if req.Sync {
		status = h.processInline(ctx, runID)
	}

	return &UploadResponse{DocumentID: documentID, RunID: runID, Status: status}, nil
}

// BulkUploadResult 批量上传中单个文件的结果
type BulkUploadResult struct {
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// HandleBulkUpload 批量上传。超过批量上限时整批拒绝，不入队任何文件。
func (h *ResumeHandler) HandleBulkUpload(ctx context.Context, files []*UploadRequest) ([]BulkUploadResult, error) {
	if len(files) == 0 {
		return nil, apiError(400, constants.ErrCodeTooManyFiles, "批量上传不能为空")
	}
	if len(files) > h.cfg.Pipeline.MaxBatchSize {
		return nil, apiError(400, constants.ErrCodeTooManyFiles,
			fmt.Sprintf("批量上传 %d 个文件，超过上限 %d", len(files), h.cfg.Pipeline.MaxBatchSize))
	}

	results := make([]BulkUploadResult, 0, len(files))
	for _, f := range files {
		f.Sync = false // 批量只走异步
		resp, err := h.HandleUpload(ctx, f)
		if err != nil {
			item := BulkUploadResult{Filename: f.Filename, Status: "error", Error: err.Error()}
			var ae *APIError
			if errors.As(err, &ae) {
				item.Error = ae.Message
				item.Status = ae.Code
			}
			results = append(results, item)
			continue
		}
		status := resp.Status
		if resp.Duplicate {
			status = constants.ErrCodeDuplicateFile
		}
		results = append(results, BulkUploadResult{
			Filename:   f.Filename,
			DocumentID: resp.DocumentID,
			RunID:      resp.RunID,
			Status:     status,
		})
	}
	return results, nil
}

// ParseRunView 解析运行的查询投影
type ParseRunView struct {
	RunID          string          `json:"run_id"`
	DocumentID     string          `json:"document_id"`
	Status         string          `json:"status"`
	ProgressStage  string          `json:"progress_stage"`
	Provider       string          `json:"provider,omitempty"`
	ModelName      string          `json:"model_name,omitempty"`
	AttemptCount   int             `json:"attempt_count"`
	ErrorCode      string          `json:"error_code,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Warnings       json.RawMessage `json:"warnings,omitempty"`
	NormalizedJSON json.RawMessage `json:"normalized_json,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// GetParseRun 查询运行状态与结果
func (h *ResumeHandler) GetParseRun(ctx context.Context, runID string) (*ParseRunView, error) {
	run, err := h.store.MySQL.GetParseRun(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			return nil, apiError(404, "RUN_NOT_FOUND", "解析运行不存在")
		}
		return nil, err
	}

	view := &ParseRunView{
		RunID:         run.RunID,
		DocumentID:    run.DocumentID,
		Status:        run.Status,
		ProgressStage: run.ProgressStage,
		Provider:      run.Provider,
		ModelName:     run.ModelName,
		AttemptCount:  run.AttemptCount,
		ErrorCode:     run.ErrorCode,
		ErrorMessage:  run.ErrorMessage,
		CreatedAt:     run.CreatedAt,
		CompletedAt:   run.TaskCompletedAt,
	}
	if len(run.Warnings) > 0 {
		view.Warnings = json.RawMessage(run.Warnings)
	}
	if len(run.NormalizedJSON) > 0 {
		view.NormalizedJSON = json.RawMessage(run.NormalizedJSON)
	}
	return view, nil
}

// RetryParseRun 对已终态的运行创建新的排队运行。
// 需求快照默认随新运行继承，传入requirements可覆盖。
func (h *ResumeHandler) RetryParseRun(ctx context.Context, runID string, requirementsJSON string) (*UploadResponse, error) {
	prior, err := h.store.MySQL.GetParseRun(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			return nil, apiError(404, "RUN_NOT_FOUND", "解析运行不存在")
		}
		return nil, err
	}
	if !constants.IsTerminalStatus(prior.Status) {
		return nil, apiError(409, "RUN_NOT_TERMINAL",
			fmt.Sprintf("运行仍处于 %s，只有终态运行可以重试", prior.Status))
	}

	requirements, err := parseRequirements(requirementsJSON)
	if err != nil {
		return nil, apiError(400, "INVALID_REQUIREMENTS", err.Error())
	}

	newRunID := uuid.Must(uuid.NewV7()).String()
	newRun := &models.ParseRun{
		RunID:         newRunID,
		DocumentID:    prior.DocumentID,
		Status:        constants.ParseStatusQueued,
		ProgressStage: constants.StageQueued,
		PromptVersion: constants.PromptVersion,
		Temperature:   h.cfg.LLM.ExtractionTemperature,
		Requirements:  requirements,
	}
	msg, err := h.buildQueuedMessage(newRunID, prior.DocumentID, constants.EventTypeParseRunRetried)
	if err != nil {
		return nil, err
	}

	if err := h.store.MySQL.CreateRetryRun(ctx, prior, newRun, msg); err != nil {
		return nil, fmt.Errorf("创建重试运行失败: %w", err)
	}
	return &UploadResponse{
		DocumentID: prior.DocumentID,
		RunID:      newRunID,
		Status:     constants.ParseStatusQueued,
	}, nil
}

// 允许人工编辑的候选人字段
var editableCandidateFields = map[string]bool{
	"full_name":         true,
	"headline":          true,
	"location":          true,
	"primary_email":     true,
	"primary_phone":     true,
	"linkedin":          true,
	"github":            true,
	"portfolio":         true,
	"primary_role":      true,
	"seniority":         true,
	"summary_one_liner": true,
}

// UpdateCandidate 人工修正候选人字段。字段级before/after差异写入审计表，
// 产生该候选人的解析运行不受影响。
func (h *ResumeHandler) UpdateCandidate(ctx context.Context, candidateID string, editedBy *string,
	updates map[string]interface{}) (*models.Candidate, error) {

	if len(updates) == 0 {
		return nil, apiError(400, "EMPTY_UPDATE", "没有需要修改的字段")
	}
	for field := range updates {
		if !editableCandidateFields[field] {
			return nil, apiError(400, "FIELD_NOT_EDITABLE", fmt.Sprintf("字段 %s 不可编辑", field))
		}
	}

	cand, err := h.store.MySQL.GetCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError(404, "CANDIDATE_NOT_FOUND", "候选人不存在")
		}
		return nil, err
	}

	before := candidateFieldValues(cand)
	changes := make(map[string]map[string]interface{}, len(updates))
	for field, to := range updates {
		changes[field] = map[string]interface{}{"from": before[field], "to": to}
	}

	if err := h.store.MySQL.UpdateCandidateWithAudit(ctx, candidateID, editedBy, updates, changes); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError(404, "CANDIDATE_NOT_FOUND", "候选人不存在")
		}
		return nil, err
	}
	return h.store.MySQL.GetCandidate(ctx, candidateID)
}

// checkDuplicate 文件内容去重。返回true时resp描述已存在的文档。
func (h *ResumeHandler) checkDuplicate(ctx context.Context, fileHash string) (bool, *UploadResponse) {
	var dup bool
	if h.store.Redis != nil {
		exists, err := h.store.Redis.CheckAndAddFileHash(ctx, fileHash)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis去重检查失败，退回数据库查询")
		} else {
			dup = exists
		}
	}
	if !dup {
		// Redis不可用或未命中时查数据库兜底
		doc, err := h.store.MySQL.FindDocumentByHash(ctx, fileHash)
		if err != nil {
			logger.Warn().Err(err).Msg("数据库哈希查询失败，按非重复处理")
			return false, nil
		}
		if doc == nil {
			return false, nil
		}
		return true, h.duplicateResponse(ctx, doc.DocumentID)
	}

	doc, err := h.store.MySQL.FindDocumentByHash(ctx, fileHash)
	if err != nil || doc == nil {
		// Redis认定重复但数据库没有记录（此前上传中途失败），放行
		h.releaseHash(ctx, fileHash)
		return false, nil
	}
	return true, h.duplicateResponse(ctx, doc.DocumentID)
}

func (h *ResumeHandler) duplicateResponse(ctx context.Context, documentID string) *UploadResponse {
	resp := &UploadResponse{DocumentID: documentID, Duplicate: true, Status: constants.ErrCodeDuplicateFile}
	if run, err := h.store.MySQL.GetLatestRunForDocument(ctx, documentID); err == nil {
		resp.RunID = run.RunID
		resp.Status = run.Status
		resp.Duplicate = true
	}
	return resp
}

func (h *ResumeHandler) releaseHash(ctx context.Context, fileHash string) {
	if h.store.Redis == nil {
		return
	}
	if err := h.store.Redis.RemoveFileHash(ctx, fileHash); err != nil {
		logger.Warn().Err(err).Msg("回滚文件哈希登记失败")
	}
}

func (h *ResumeHandler) buildQueuedMessage(runID, documentID, eventType string) (*models.OutboxMessage, error) {
	payload, err := json.Marshal(storage.ParseRunQueuedMessage{RunID: runID, DocumentID: documentID})
	if err != nil {
		return nil, fmt.Errorf("序列化入队消息失败: %w", err)
	}
	return &models.OutboxMessage{
		AggregateID:      runID,
		EventType:        eventType,
		Payload:          string(payload),
		TargetExchange:   h.cfg.RabbitMQ.ParseExchange,
		TargetRoutingKey: h.cfg.RabbitMQ.ParseRoutingKey,
	}, nil
}

// processInline 同步模式：当前请求内认领并跑完流水线。
// 同步路径不做退避重试，瞬态失败也直接转终态。
func (h *ResumeHandler) processInline(ctx context.Context, runID string) string {
	claimed, err := h.store.MySQL.ClaimParseRun(ctx, runID, h.cfg.Pipeline.LivenessTimeout())
	if err != nil || !claimed {
		logger.Error().Err(err).Str("run_id", runID).Msg("同步解析认领失败")
		return constants.ParseStatusQueued
	}

	run, err := h.store.MySQL.GetParseRun(ctx, runID)
	if err != nil {
		logger.Error().Err(err).Str("run_id", runID).Msg("同步解析加载运行失败")
		return constants.ParseStatusProcessing
	}

	result := h.pipeline.ProcessRun(ctx, run)

	status := result.Status
	errCode := result.ErrorCode
	if result.Disposition != processor.DispositionSuccess {
		status = constants.ParseStatusFailed
	}
	if err := h.store.MySQL.FinalizeRun(ctx, runID, status, errCode, result.ErrorMessage,
		result.NormalizedJSON, result.Warnings); err != nil {
		logger.Error().Err(err).Str("run_id", runID).Msg("同步解析写入终态失败")
	}
	return status
}

// parseRequirements 校验并快照岗位需求JSON
func parseRequirements(raw string) (datatypes.JSON, error) {
	if raw == "" {
		return nil, nil
	}
	var spec processor.RequirementSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("岗位需求不是合法JSON: %w", err)
	}
	normalized, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(normalized), nil
}

func candidateFieldValues(c *models.Candidate) map[string]interface{} {
	return map[string]interface{}{
		"full_name":         c.FullName,
		"headline":          c.Headline,
		"location":          c.Location,
		"primary_email":     c.PrimaryEmail,
		"primary_phone":     c.PrimaryPhone,
		"linkedin":          c.LinkedIn,
		"github":            c.GitHub,
		"portfolio":         c.Portfolio,
		"primary_role":      c.PrimaryRole,
		"seniority":         c.Seniority,
		"summary_one_liner": c.SummaryOneLiner,
	}
}
