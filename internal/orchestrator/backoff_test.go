package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/processor"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:          5,
		TransientMaxRetries: 2,
		RetryBase:           30 * time.Second,
		TransientBase:       10 * time.Second,
		Ceiling:             600 * time.Second,
	}
}

func TestBackoffDoubles(t *testing.T) {
	base := 30 * time.Second
	ceiling := 600 * time.Second

	assert.Equal(t, 30*time.Second, Backoff(base, 1, ceiling))
	assert.Equal(t, 60*time.Second, Backoff(base, 2, ceiling))
	assert.Equal(t, 120*time.Second, Backoff(base, 3, ceiling))
	assert.Equal(t, 240*time.Second, Backoff(base, 4, ceiling))
}

func TestBackoffCappedAtCeiling(t *testing.T) {
	base := 30 * time.Second
	ceiling := 600 * time.Second

	// 30·2^5 = 960 > 600
	assert.Equal(t, ceiling, Backoff(base, 6, ceiling))
	assert.Equal(t, ceiling, Backoff(base, 20, ceiling))
}

func TestBackoffClampsAttempt(t *testing.T) {
	base := 10 * time.Second
	assert.Equal(t, base, Backoff(base, 0, time.Hour))
	assert.Equal(t, base, Backoff(base, -3, time.Hour))
}

func TestDecideRetryRateLimited(t *testing.T) {
	p := testPolicy()
	result := processor.StageResult{RateLimited: true}

	d := DecideRetry(p, 1, result)
	assert.True(t, d.Requeue)
	assert.Equal(t, 30*time.Second, d.Delay)

	d = DecideRetry(p, 3, result)
	assert.True(t, d.Requeue)
	assert.Equal(t, 120*time.Second, d.Delay)
}

func TestDecideRetryRateLimitExhausted(t *testing.T) {
	p := testPolicy()
	result := processor.StageResult{RateLimited: true}

	// 第max_retries次尝试仍可重投，累计尝试上限为max_retries+1
	d := DecideRetry(p, p.MaxRetries, result)
	assert.True(t, d.Requeue)

	d = DecideRetry(p, p.MaxRetries+1, result)
	assert.False(t, d.Requeue)
	assert.Equal(t, constants.ErrCodeRateLimitExhausted, d.FinalErrorCode)
}

func TestDecideRetryHonorsBackoffHint(t *testing.T) {
	p := testPolicy()
	result := processor.StageResult{RateLimited: true, BackoffHint: 90 * time.Second}

	// 提示大于计划退避时生效
	d := DecideRetry(p, 1, result)
	assert.True(t, d.Requeue)
	assert.Equal(t, 90*time.Second, d.Delay)

	// 计划退避更大时忽略提示
	d = DecideRetry(p, 3, result)
	assert.Equal(t, 120*time.Second, d.Delay)
}

func TestDecideRetryBackoffHintCappedAtCeiling(t *testing.T) {
	p := testPolicy()
	result := processor.StageResult{RateLimited: true, BackoffHint: time.Hour}

	d := DecideRetry(p, 1, result)
	assert.True(t, d.Requeue)
	assert.Equal(t, p.Ceiling, d.Delay)
}

func TestDecideRetryTransient(t *testing.T) {
	p := testPolicy()
	result := processor.StageResult{}

	d := DecideRetry(p, 1, result)
	assert.True(t, d.Requeue)
	assert.Equal(t, 10*time.Second, d.Delay)
}

func TestDecideRetryTransientExhausted(t *testing.T) {
	p := testPolicy()
	result := processor.StageResult{}

	d := DecideRetry(p, p.TransientMaxRetries, result)
	assert.True(t, d.Requeue)

	d = DecideRetry(p, p.TransientMaxRetries+1, result)
	assert.False(t, d.Requeue)
	assert.Equal(t, constants.ErrCodeInternalError, d.FinalErrorCode)

	// 瞬态上限远低于限流上限
	d = DecideRetry(p, 4, result)
	assert.False(t, d.Requeue)
}
