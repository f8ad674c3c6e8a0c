package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RateLimitError 供应商限流（HTTP 429）。
// 同一供应商下的其他模型共享限流配额，回退链遇到该错误直接切换供应商。
type RateLimitError struct {
	Provider   string
	Model      string
	RetryAfter time.Duration // 0表示响应未携带Retry-After
	Body       string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("供应商%s限流 (model=%s, retry_after=%s)", e.Provider, e.Model, e.RetryAfter)
}

// ProviderUnavailableError 供应商侧故障（5xx或网络错误），对该供应商的其他模型同样适用。
type ProviderUnavailableError struct {
	Provider string
	Model    string
	Cause    error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("供应商%s不可用 (model=%s): %v", e.Provider, e.Model, e.Cause)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Cause }

// ModelRequestError 模型级请求错误（非429的4xx），换模型可能成功，换供应商不必。
type ModelRequestError struct {
	Provider   string
	Model      string
	StatusCode int
	Body       string
}

func (e *ModelRequestError) Error() string {
	return fmt.Sprintf("模型%s/%s请求被拒绝 (status=%d): %s", e.Provider, e.Model, e.StatusCode, truncateBody(e.Body))
}

// Attempt 一次失败的模型调用记录
type Attempt struct {
	Provider string
	Model    string
	Err      error
}

// AllProvidersExhausted 回退链全部尝试失败的终态错误，携带完整尝试记录。
type AllProvidersExhausted struct {
	Attempts []Attempt
}

func (e *AllProvidersExhausted) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("全部%d个模型目标均失败", len(e.Attempts)))
	for _, a := range e.Attempts {
		sb.WriteString(fmt.Sprintf("; %s/%s: %v", a.Provider, a.Model, a.Err))
	}
	return sb.String()
}

// RateLimited 判断是否所有失败都源于限流。
// 调度层据此区分"延迟重试"与"内部错误"两种处置。
func (e *AllProvidersExhausted) RateLimited() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		var rle *RateLimitError
		if !errors.As(a.Err, &rle) {
			return false
		}
	}
	return true
}

// RetryAfterHint 返回各限流响应中最大的Retry-After值，没有则返回0。
func (e *AllProvidersExhausted) RetryAfterHint() time.Duration {
	var hint time.Duration
	for _, a := range e.Attempts {
		var rle *RateLimitError
		if errors.As(a.Err, &rle) && rle.RetryAfter > hint {
			hint = rle.RetryAfter
		}
	}
	return hint
}

func truncateBody(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
