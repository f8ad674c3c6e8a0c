package processor

import (
	"errors"
	"fmt"
	"time"
)

// 定义基础错误类型
var (
	ErrResumeDownloadFailed = errors.New("下载简历文件失败")
	ErrTextExtractionFailed = errors.New("提取简历文本失败")
	ErrStoreTextFailed      = errors.New("上传解析文本失败")
	ErrLLMExtractionFailed  = errors.New("模型结构化抽取失败")
	ErrPersistFailed        = errors.New("持久化候选人失败")
	ErrUpdateStatusFailed   = errors.New("更新运行状态失败")
)

// PipelineError 包含运行标识的流水线错误
type PipelineError struct {
	RunID   string
	Op      string
	BaseErr error
	Detail  string
}

func (e *PipelineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, RunID:%s): %s", e.BaseErr, e.Op, e.RunID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, RunID:%s)", e.BaseErr, e.Op, e.RunID)
}

func (e *PipelineError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func newPipelineError(runID, op string, base error, detail string) error {
	return &PipelineError{RunID: runID, Op: op, BaseErr: base, Detail: detail}
}

// Disposition 一次流水线执行对调度层的处置建议
type Disposition int

const (
	// DispositionSuccess 运行到达终态（success/partial/rejected均算处理完成）
	DispositionSuccess Disposition = iota
	// DispositionRetryable 瞬态失败，按退避策略重新入队
	DispositionRetryable
	// DispositionTerminal 确定性失败，运行置为failed
	DispositionTerminal
)

// StageResult 流水线执行结果。调度层的重试决策只依赖这里的字段，
// 不需要理解各阶段的内部错误。
type StageResult struct {
	Disposition Disposition
	// Status 终态运行状态（Disposition为Success时有效）
	Status string
	// ErrorCode 机器可读错误码（Retryable/Terminal时填写）
	ErrorCode string
	// ErrorMessage 人类可读错误说明
	ErrorMessage string
	// RateLimited 瞬态失败是否源于限流（限流走更长退避与独立的重试上限）
	RateLimited bool
	// BackoffHint 供应商给出的重试等待提示（没有则为0）
	BackoffHint time.Duration
	// NormalizedJSON 规范化档案（终态运行随FinalizeRun持久化）
	NormalizedJSON []byte
	// Warnings 警告列表的JSON编码
	Warnings []byte
}

func successResult(status string) StageResult {
	return StageResult{Disposition: DispositionSuccess, Status: status}
}

func terminalResult(code, message string) StageResult {
	return StageResult{Disposition: DispositionTerminal, ErrorCode: code, ErrorMessage: message}
}

func retryableResult(code, message string, rateLimited bool, hint time.Duration) StageResult {
	return StageResult{
		Disposition:  DispositionRetryable,
		ErrorCode:    code,
		ErrorMessage: message,
		RateLimited:  rateLimited,
		BackoffHint:  hint,
	}
}
