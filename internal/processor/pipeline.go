package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/llm"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/storage/models"
	"resume-agent-go/internal/tracing"
)

// Pipeline 简历解析流水线。一次ProcessRun执行
// 文本提取、PII识别、LLM结构化抽取、校验归一化、富化、持久化
// 的完整序列，并把结果归结为一个StageResult交给调度层。
// Pipeline本身不改写运行状态，终态写入由调度层统一完成。
type Pipeline struct {
	store     *storage.Storage
	extractor *parser.CompositeExtractor
	chain     *llm.FallbackChain
	enricher  *Enricher
	evaluator *RequirementEvaluator
	weights   ConfidenceWeights

	extractTemp   float32
	callTimeout   time.Duration
	rateLimitHint time.Duration

	tracer trace.Tracer
}

// NewPipeline 组装流水线。所有依赖显式注入，便于测试替换。
func NewPipeline(store *storage.Storage, extractor *parser.CompositeExtractor,
	chain *llm.FallbackChain, enricher *Enricher, evaluator *RequirementEvaluator,
	cfg *config.Config) *Pipeline {

	weights := DefaultConfidenceWeights
	if cfg.Pipeline.MinSkillsForConfidence > 0 {
		weights.SkillDepthThreshold = cfg.Pipeline.MinSkillsForConfidence
	}
	if cfg.Pipeline.UnverifiedPenalty > 0 {
		weights.UnverifiedPenalty = cfg.Pipeline.UnverifiedPenalty
	}

	return &Pipeline{
		store:         store,
		extractor:     extractor,
		chain:         chain,
		enricher:      enricher,
		evaluator:     evaluator,
		weights:       weights,
		extractTemp:   float32(cfg.LLM.ExtractionTemperature),
		callTimeout:   cfg.LLM.CallTimeout(),
		rateLimitHint: cfg.LLM.RateLimitBackoffHint(),
		tracer:        otel.Tracer("resume-pipeline"),
	}
}

// ProcessRun 处理一条已被认领的解析运行。
// 调用方必须先通过ClaimParseRun获得独占处理权。
func (p *Pipeline) ProcessRun(ctx context.Context, run *models.ParseRun) StageResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.ProcessRun",
		trace.WithAttributes(
			attribute.String("run_id", run.RunID),
			attribute.String("document_id", run.DocumentID),
			attribute.Int("attempt", run.AttemptCount),
		))
	defer span.End()

	doc := run.Document
	if doc == nil {
		return terminalResult(constants.ErrCodePipelineFailed,
			fmt.Sprintf("解析运行 %s 缺少关联文档", run.RunID))
	}

	// 阶段1：获取原始文本。文档已有文本时直接复用（重试路径），
	// 否则从对象存储下载原始文件并提取。
	rawText := doc.RawText
	if rawText == "" {
		text, result := p.extractText(ctx, run, doc)
		if result != nil {
			return *result
		}
		rawText = text
	}

	// 阶段2：从原文提取已知PII，作为防幻觉过滤的基准事实
	if err := p.store.MySQL.UpdateRunProgress(ctx, run.RunID, constants.StageExtractingPII); err != nil {
		logger.Warn().Err(err).Str("run_id", run.RunID).Msg("更新进度阶段失败")
	}
	pii := parser.ExtractKnownPII(rawText)
	span.SetAttributes(
		attribute.Int("pii.emails", len(pii.EmailsFound)),
		attribute.Int("pii.phones", len(pii.PhonesFound)),
	)

	// 阶段3：LLM结构化抽取，无效JSON时重提示一次
	_ = p.store.MySQL.UpdateRunProgress(ctx, run.RunID, constants.StageCallingLLM)
	llmJSON, result := p.extractStructured(ctx, span, run, rawText, pii)
	if result != nil {
		return *result
	}

	// 阶段4：schema校验 + 归一化 + 防幻觉过滤
	_ = p.store.MySQL.UpdateRunProgress(ctx, run.RunID, constants.StageValidating)

	var warnings []string
	schemaErrors := ValidateAgainstSchema(llmJSON)
	for _, e := range schemaErrors {
		warnings = append(warnings, constants.WarnSchemaValidationFailed+": "+e)
	}
	shape := ClassifyShape(schemaErrors)

	profile := Normalize(llmJSON)
	stripWarnings, strippedCount := ApplyHallucinationFilter(profile, pii)
	warnings = append(warnings, stripWarnings...)

	missing := MissingCriticalFields(profile)
	status := DeriveStatus(shape, profile, missing)
	span.SetAttributes(
		attribute.Int("schema_errors", len(schemaErrors)),
		attribute.Int("hallucinations_stripped", strippedCount),
		attribute.String("derived_status", status),
	)

	if status == constants.ParseStatusFailed {
		// 抽取结果无法构成可用档案。归一化结果与警告仍然落库，
		// 便于排查模型到底返回了什么。
		return p.finishRun(run, profile, status, warnings, missing, strippedCount)
	}

	// 阶段5：分类与摘要富化，失败只降级不中断
	_ = p.store.MySQL.UpdateRunProgress(ctx, run.RunID, constants.StageClassifying)
	enrichWarnings := p.enricher.Enrich(ctx, profile)
	if len(enrichWarnings) > 0 {
		warnings = append(warnings, enrichWarnings...)
		if status == constants.ParseStatusSuccess {
			status = constants.ParseStatusPartial
		}
	}

	// 阶段6：候选人投影持久化
	_ = p.store.MySQL.UpdateRunProgress(ctx, run.RunID, constants.StagePersisting)
	confidence := p.weights.ComputeConfidence(profile, strippedCount)
	profile.Quality.OverallConfidence = confidence

	cand, skills, education, experience := buildCandidateRows(run, profile)
	if err := p.store.MySQL.PersistCandidate(ctx, cand, skills, education, experience); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return retryableResult(constants.ErrCodeInternalError,
			newPipelineError(run.RunID, "PersistCandidate", ErrPersistFailed, err.Error()).Error(), false, 0)
	}

	// 阶段7：岗位需求校验。不达标时撤销候选人投影并拒绝本次运行。
	if rejected := p.evaluateRequirements(ctx, span, run, profile, &warnings); rejected != nil {
		if rejected.retryable != nil {
			return *rejected.retryable
		}
		status = constants.ParseStatusRejected
	}

	return p.finishRun(run, profile, status, warnings, missing, strippedCount)
}

// extractText 下载原始文件、提取并清洗文本、回写文档。
// 返回的StageResult非nil表示本阶段已决定运行结局。
func (p *Pipeline) extractText(ctx context.Context, run *models.ParseRun, doc *models.ResumeDocument) (string, *StageResult) {
	ctx, span := p.tracer.Start(ctx, "pipeline.ExtractText")
	defer span.End()

	if doc.StoragePath == "" {
		r := terminalResult(constants.ErrCodeNoRawText,
			fmt.Sprintf("文档 %s 既无原始文本也无存储路径", doc.DocumentID))
		return "", &r
	}

	data, err := p.store.MinIO.DownloadResumeFile(ctx, doc.StoragePath)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		r := retryableResult(constants.ErrCodeInternalError,
			newPipelineError(run.RunID, "DownloadResumeFile", ErrResumeDownloadFailed, err.Error()).Error(), false, 0)
		return "", &r
	}

	text, method, _, err := p.extractor.Extract(ctx, data, doc.OriginalFilename, doc.MimeType)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		code := constants.ErrCodeTextExtractionFailed
		var xe *parser.ExtractionError
		if errors.As(err, &xe) && xe.Code == parser.ErrCodeEmptyText {
			code = constants.ErrCodeNoRawText
		}
		r := terminalResult(code,
			newPipelineError(run.RunID, "ExtractText", ErrTextExtractionFailed, err.Error()).Error())
		return "", &r
	}

	// 文本对象上传失败不阻塞流水线，原文仍在数据库里
	textPath, err := p.store.MinIO.UploadParsedText(ctx, doc.DocumentID, text)
	if err != nil {
		logger.Warn().Err(err).Str("document_id", doc.DocumentID).Msg("上传解析文本失败，继续处理")
		textPath = ""
	}

	if err := p.store.MySQL.SetDocumentRawText(ctx, doc.DocumentID, text, method, textPath); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		r := retryableResult(constants.ErrCodeInternalError,
			newPipelineError(run.RunID, "SetDocumentRawText", ErrStoreTextFailed, err.Error()).Error(), false, 0)
		return "", &r
	}

	span.SetAttributes(
		attribute.String("extraction.method", method),
		attribute.Int("text.length", len(text)),
	)
	return text, nil
}

// extractStructured 调用模型降级链做结构化抽取。
// 首次输出不是合法JSON时带着原始回答重提示一次，仍失败则终态。
func (p *Pipeline) extractStructured(ctx context.Context, span trace.Span, run *models.ParseRun,
	rawText string, pii parser.KnownPII) (map[string]interface{}, *StageResult) {

	messages := []*schema.Message{
		schema.SystemMessage(extractionSystemPrompt),
		schema.UserMessage(buildExtractionPrompt(rawText, pii)),
	}

	res, sr := p.callChain(ctx, run, messages)
	if sr != nil {
		return nil, sr
	}

	llmJSON, parseErr := llm.ExtractJSONObject(res.Content)
	totalAttempts := res.AttemptCount

	if parseErr != nil {
		logger.Warn().Err(parseErr).Str("run_id", run.RunID).
			Str("provider", res.Provider).Str("model", res.Model).
			Msg("模型输出不是合法JSON，重提示一次")

		messages = append(messages, res.Message, schema.UserMessage(repromptInstruction))
		retry, sr := p.callChain(ctx, run, messages)
		if sr != nil {
			return nil, sr
		}
		totalAttempts += retry.AttemptCount
		res = retry
		llmJSON, parseErr = llm.ExtractJSONObject(res.Content)
	}

	var rawJSON []byte
	if parseErr == nil {
		rawJSON, _ = json.Marshal(llmJSON)
	}
	if err := p.store.MySQL.UpdateRunLLMResult(ctx, run.RunID, res.Provider, res.Model,
		rawJSON, res.LatencyMS, res.InputTokens, res.OutputTokens, totalAttempts); err != nil {
		logger.Warn().Err(err).Str("run_id", run.RunID).Msg("记录LLM调用元数据失败")
	}

	if parseErr != nil {
		tracing.RecordError(span, parseErr, tracing.ErrorTypeLLM)
		r := terminalResult(constants.ErrCodeLLMInvalidJSON,
			fmt.Sprintf("重提示后模型输出仍不是合法JSON: %v", parseErr))
		return nil, &r
	}

	span.SetAttributes(
		attribute.String("llm.provider", res.Provider),
		attribute.String("llm.model", res.Model),
		attribute.Int("llm.attempts", totalAttempts),
	)
	return llmJSON, nil
}

// callChain 带超时调用降级链，把链级失败映射为调度层处置
func (p *Pipeline) callChain(ctx context.Context, run *models.ParseRun, messages []*schema.Message) (*llm.Result, *StageResult) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	res, err := p.chain.Generate(callCtx, messages, model.WithTemperature(p.extractTemp))
	if err == nil {
		return res, nil
	}

	var exhausted *llm.AllProvidersExhausted
	if errors.As(err, &exhausted) {
		if exhausted.RateLimited() {
			hint := exhausted.RetryAfterHint()
			if hint <= 0 {
				hint = p.rateLimitHint
			}
			r := retryableResult(constants.ErrCodeRateLimited, err.Error(), true, hint)
			return nil, &r
		}
		r := retryableResult(constants.ErrCodeNetworkError, err.Error(), false, 0)
		return nil, &r
	}

	// 链提前中止（超时/取消），按网络类瞬态处理
	r := retryableResult(constants.ErrCodeNetworkError,
		newPipelineError(run.RunID, "LLMGenerate", ErrLLMExtractionFailed, err.Error()).Error(), false, 0)
	return nil, &r
}

// rejectionOutcome 需求校验的结局：要么拒绝成立，要么撤销投影失败需重试
type rejectionOutcome struct {
	retryable *StageResult
}

// evaluateRequirements 对照运行携带的岗位需求快照校验候选人。
// 无需求或通过返回nil；不通过时删除候选人投影并记录拒绝原因。
func (p *Pipeline) evaluateRequirements(ctx context.Context, span trace.Span, run *models.ParseRun,
	profile *Profile, warnings *[]string) *rejectionOutcome {

	if len(run.Requirements) == 0 {
		return nil
	}
	var spec RequirementSpec
	if err := json.Unmarshal(run.Requirements, &spec); err != nil {
		logger.Warn().Err(err).Str("run_id", run.RunID).Msg("岗位需求快照不可解析，跳过校验")
		return nil
	}
	if spec.IsEmpty() {
		return nil
	}

	passed, reasons := p.evaluator.Evaluate(ctx, profile, &spec)
	if passed {
		return nil
	}

	if err := p.store.MySQL.DeleteCandidateForRun(ctx, run.RunID); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		r := retryableResult(constants.ErrCodeInternalError,
			newPipelineError(run.RunID, "DeleteCandidateForRun", ErrPersistFailed, err.Error()).Error(), false, 0)
		return &rejectionOutcome{retryable: &r}
	}

	*warnings = append(*warnings, constants.WarnRequirementsFailed+": "+strings.Join(reasons, "; "))
	span.SetAttributes(attribute.StringSlice("rejection.reasons", reasons))
	logger.Info().Str("run_id", run.RunID).Strs("reasons", reasons).Msg("候选人未通过岗位需求校验")
	return &rejectionOutcome{}
}

// finishRun 把质量信息收尾到档案里并打包终态结果
func (p *Pipeline) finishRun(run *models.ParseRun, profile *Profile, status string,
	warnings, missing []string, strippedCount int) StageResult {

	profile.Quality.Warnings = dedupeStrings(warnings)
	profile.Quality.MissingCriticalFields = missing
	if profile.Quality.OverallConfidence == 0 {
		profile.Quality.OverallConfidence = p.weights.ComputeConfidence(profile, strippedCount)
	}
	profile.ensureSlices()

	result := successResult(status)
	if b, err := json.Marshal(profile); err == nil {
		result.NormalizedJSON = b
	}
	if b, err := json.Marshal(profile.Quality.Warnings); err == nil {
		result.Warnings = b
	}

	logger.Info().Str("run_id", run.RunID).Str("status", status).
		Float64("confidence", profile.Quality.OverallConfidence).
		Int("warnings", len(profile.Quality.Warnings)).
		Msg("解析运行处理完成")
	return result
}

// buildCandidateRows 把规范化档案投影为候选人及子表行
func buildCandidateRows(run *models.ParseRun, p *Profile) (*models.Candidate, []models.CandidateSkill, []models.EducationEntry, []models.ExperienceEntry) {
	cand := &models.Candidate{
		CandidateID: uuid.Must(uuid.NewV4()).String(),
		DocumentID:  run.DocumentID,
		RunID:       run.RunID,
		FullName:    derefOr(p.Candidate.FullName, ""),
		Headline:    derefOr(p.Candidate.Headline, ""),
		Location:    derefOr(p.Candidate.Location, ""),
		LinkedIn:    derefOr(p.Candidate.Links.Linkedin, ""),
		GitHub:      derefOr(p.Candidate.Links.Github, ""),
		Portfolio:   derefOr(p.Candidate.Links.Portfolio, ""),
		PrimaryRole: derefOr(p.Classification.PrimaryRole, ""),
		Seniority:   derefOr(p.Classification.Seniority, ""),
		OverallConf: p.Quality.OverallConfidence,
	}
	if len(p.Candidate.Emails) > 0 {
		cand.PrimaryEmail = p.Candidate.Emails[0]
	}
	if len(p.Candidate.Phones) > 0 {
		cand.PrimaryPhone = p.Candidate.Phones[0]
	}
	cand.SummaryOneLiner = derefOr(p.Summary.OneLiner, "")
	cand.SummaryHighlights = mustJSONList(p.Summary.Highlights)

	skills := make([]models.CandidateSkill, 0, len(p.Skills))
	for _, s := range p.Skills {
		skills = append(skills, models.CandidateSkill{
			Name:       s.Name,
			Category:   derefOr(s.Category, ""),
			Confidence: s.Confidence,
			Evidence:   mustJSONList(s.Evidence),
		})
	}

	education := make([]models.EducationEntry, 0, len(p.Education))
	for _, e := range p.Education {
		education = append(education, models.EducationEntry{
			Institution:  derefOr(e.Institution, ""),
			Degree:       derefOr(e.Degree, ""),
			FieldOfStudy: derefOr(e.FieldOfStudy, ""),
			StartDate:    derefOr(e.StartDate, ""),
			EndDate:      derefOr(e.EndDate, ""),
			Grade:        derefOr(e.Grade, ""),
			Confidence:   e.Confidence,
			Evidence:     mustJSONList(e.Evidence),
		})
	}

	experience := make([]models.ExperienceEntry, 0, len(p.Experience))
	for _, x := range p.Experience {
		experience = append(experience, models.ExperienceEntry{
			Company:        derefOr(x.Company, ""),
			Title:          derefOr(x.Title, ""),
			EmploymentType: derefOr(x.EmploymentType, ""),
			StartDate:      derefOr(x.StartDate, ""),
			EndDate:        derefOr(x.EndDate, ""),
			IsCurrent:      x.IsCurrent,
			Location:       derefOr(x.Location, ""),
			Bullets:        mustJSONList(x.Bullets),
			Technologies:   mustJSONList(x.Technologies),
			Confidence:     x.Confidence,
			Evidence:       mustJSONList(x.Evidence),
		})
	}

	return cand, skills, education, experience
}

func mustJSONList(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
