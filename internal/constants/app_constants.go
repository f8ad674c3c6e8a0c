package constants

import "time"

// ParseRun 状态常量，queued 是唯一的初始状态，
// success/partial/failed/rejected 均为终态。
const (
	ParseStatusQueued     = "queued"
	ParseStatusProcessing = "processing"
	ParseStatusSuccess    = "success"
	ParseStatusPartial    = "partial"
	ParseStatusFailed     = "failed"
	ParseStatusRejected   = "rejected"
)

// IsTerminalStatus 判断给定状态是否为终态
func IsTerminalStatus(status string) bool {
	switch status {
	case ParseStatusSuccess, ParseStatusPartial, ParseStatusFailed, ParseStatusRejected:
		return true
	}
	return false
}

// 处理进度阶段，用于轮询方区分"仍在处理"和"等待重试"
const (
	StageQueued         = "queued"
	StageExtractingText = "extracting_text"
	StageExtractingPII  = "extracting_pii"
	StageCallingLLM     = "calling_llm"
	StageValidating     = "validating"
	StageClassifying    = "classifying"
	StageSummarizing    = "summarizing"
	StagePersisting     = "persisting"
	StageComplete       = "complete"
)

// 终态错误码，机器可读
const (
	ErrCodeTextExtractionFailed = "TEXT_EXTRACTION_FAILED"
	ErrCodeNoRawText            = "NO_RAW_TEXT"
	ErrCodeLLMInvalidJSON       = "LLM_INVALID_JSON"
	ErrCodeRateLimited          = "RATE_LIMIT"
	ErrCodeNetworkError         = "NETWORK_ERROR"
	ErrCodeRateLimitExhausted   = "RATE_LIMIT_EXHAUSTED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodePipelineFailed       = "PIPELINE_FAILED"
	ErrCodeFileTooLarge         = "FILE_TOO_LARGE"
	ErrCodeTooManyFiles         = "TOO_MANY_FILES"
	ErrCodeDuplicateFile        = "DUPLICATE_FILE"
)

// 防幻觉过滤器产生的警告码，UNVERIFIED_<FIELD> 形式
const (
	WarnUnverifiedEmail     = "UNVERIFIED_EMAIL"
	WarnUnverifiedPhone     = "UNVERIFIED_PHONE"
	WarnUnverifiedLinkedIn  = "UNVERIFIED_LINKEDIN"
	WarnUnverifiedGitHub    = "UNVERIFIED_GITHUB"
	WarnUnverifiedPortfolio = "UNVERIFIED_PORTFOLIO"
)

// 其余流水线警告前缀
const (
	WarnSchemaValidationFailed = "jsonschema_validation_failed"
	WarnClassificationFailed   = "classification_failed"
	WarnSummaryFailed          = "summary_failed"
	WarnRequirementsFailed     = "REQUIREMENTS_FAILED"
)

// 消息队列相关默认值
const (
	DefaultParseExchange     = "parse.events"
	DefaultParseQueue        = "parse.run.queue"
	DefaultParseRoutingKey   = "parse.run.queued"
	DefaultParseWaitQueue    = "parse.run.wait"
	DefaultParseWaitRouting  = "parse.run.wait"
	EventTypeParseRunQueued  = "parse_run.queued"
	EventTypeParseRunRetried = "parse_run.retried"
)

// Redis 去重集合
const (
	RawFileHashSetKey          = "resumes:file_sha256s"
	DefaultHashRecordExpireDay = 30
)

// 默认流水线参数，均可被配置覆盖
const (
	DefaultMaxRetries            = 5
	DefaultTransientMaxRetries   = 2
	DefaultRetryBaseDelay        = 30 * time.Second
	DefaultTransientRetryDelay   = 10 * time.Second
	DefaultBackoffCeiling        = 10 * time.Minute
	DefaultRateLimitBackoffHint  = 60 * time.Second
	DefaultLLMCallTimeout        = 90 * time.Second
	DefaultLivenessTimeout       = 5 * time.Minute
	DefaultMaxFileSizeBytes      = 10 << 20
	DefaultMaxBatchSize          = 100
	DefaultWorkerPrefetch        = 4
	DefaultExtractionTemperature = 0.1
	DefaultSummaryTemperature    = 0.2
)

// PromptVersion 当前提示词版本，写入每个 ParseRun 便于回溯
const PromptVersion = "v1"
