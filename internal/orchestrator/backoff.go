package orchestrator

import (
	"time"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/processor"
)

// RetryPolicy 重试状态机参数。限流失败与其他瞬态失败
// 使用各自独立的重试上限和退避基数。
type RetryPolicy struct {
	MaxRetries          int
	TransientMaxRetries int
	RetryBase           time.Duration
	TransientBase       time.Duration
	Ceiling             time.Duration
}

// PolicyFromConfig 从流水线配置构建重试策略
func PolicyFromConfig(cfg *config.PipelineConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:          cfg.MaxRetries,
		TransientMaxRetries: cfg.TransientMaxRetries,
		RetryBase:           cfg.RetryBase(),
		TransientBase:       cfg.TransientRetryBase(),
		Ceiling:             cfg.BackoffCeiling(),
	}
}

// RetryDecision 对一次瞬态失败的处置
type RetryDecision struct {
	// Requeue true表示重新入队延迟重试，false表示重试耗尽转终态
	Requeue bool
	// Delay 重新入队的延迟（Requeue时有效）
	Delay time.Duration
	// FinalErrorCode 重试耗尽时写入运行的错误码
	FinalErrorCode string
}

// DecideRetry 纯函数：根据已完成的尝试次数和失败类型决定是否重试。
// attempt 是包含本次在内的累计尝试次数。上限语义与Celery一致：
// max_retries指重试次数，累计尝试最多max_retries+1次。
func DecideRetry(p RetryPolicy, attempt int, result processor.StageResult) RetryDecision {
	if result.RateLimited {
		if attempt > p.MaxRetries {
			return RetryDecision{FinalErrorCode: constants.ErrCodeRateLimitExhausted}
		}
		delay := Backoff(p.RetryBase, attempt, p.Ceiling)
		// 供应商给出的等待提示优先，但同样受封顶约束
		if result.BackoffHint > delay {
			delay = result.BackoffHint
			if delay > p.Ceiling {
				delay = p.Ceiling
			}
		}
		return RetryDecision{Requeue: true, Delay: delay}
	}

	if attempt > p.TransientMaxRetries {
		return RetryDecision{FinalErrorCode: constants.ErrCodeInternalError}
	}
	return RetryDecision{Requeue: true, Delay: Backoff(p.TransientBase, attempt, p.Ceiling)}
}

// Backoff 指数退避：base·2^(attempt-1)，封顶ceiling
func Backoff(base time.Duration, attempt int, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}
