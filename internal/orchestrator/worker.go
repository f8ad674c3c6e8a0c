package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/processor"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/storage/models"
	"resume-agent-go/internal/tracing"
)

// Worker 解析任务消费者。从工作队列取出入队消息，认领对应的
// ParseRun，执行流水线，并根据StageResult决定终态写入或退避重试。
// at-least-once投递下的安全性由数据库的认领与终态单写保证，
// Worker自身不持有任何跨消息状态。
type Worker struct {
	store    *storage.Storage
	pipeline *processor.Pipeline
	policy   RetryPolicy

	queue    string
	prefetch int
	liveness time.Duration

	tracer trace.Tracer
}

// NewWorker 组装消费者
func NewWorker(store *storage.Storage, pipeline *processor.Pipeline, cfg *config.Config) *Worker {
	return &Worker{
		store:    store,
		pipeline: pipeline,
		policy:   PolicyFromConfig(&cfg.Pipeline),
		queue:    cfg.RabbitMQ.ParseQueue,
		prefetch: cfg.RabbitMQ.PrefetchCount,
		liveness: cfg.Pipeline.LivenessTimeout(),
		tracer:   otel.Tracer("parse-worker"),
	}
}

// Start 注册消费者。返回的channel关闭后消费停止。
func (w *Worker) Start() (chan<- struct{}, error) {
	logger.Info().Str("queue", w.queue).Int("prefetch", w.prefetch).Msg("启动解析任务消费者")
	return w.store.RabbitMQ.StartConsumer(w.queue, w.prefetch, w.handleDelivery)
}

// handleDelivery 处理一条队列消息。返回true则ack，false则nack重投。
func (w *Worker) handleDelivery(body []byte) bool {
	ctx, span := w.tracer.Start(context.Background(), "worker.HandleDelivery")
	defer span.End()

	var msg storage.ParseRunQueuedMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.RunID == "" {
		// 毒消息直接丢弃，重投不会让它变得可解析
		logger.Error().Err(err).Str("body", string(body)).Msg("入队消息不可解析，丢弃")
		return true
	}
	span.SetAttributes(attribute.String("run_id", msg.RunID))

	run, err := w.store.MySQL.GetParseRun(ctx, msg.RunID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			logger.Warn().Str("run_id", msg.RunID).Msg("入队消息指向不存在的运行，丢弃")
			return true
		}
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		logger.Error().Err(err).Str("run_id", msg.RunID).Msg("加载解析运行失败，消息重投")
		return false
	}

	// 终态运行的重复投递是正常现象（at-least-once），直接确认
	if constants.IsTerminalStatus(run.Status) {
		logger.Debug().Str("run_id", run.RunID).Str("status", run.Status).Msg("运行已终态，跳过重复投递")
		return true
	}

	claimed, err := w.store.MySQL.ClaimParseRun(ctx, run.RunID, w.liveness)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		logger.Error().Err(err).Str("run_id", run.RunID).Msg("认领解析运行失败，消息重投")
		return false
	}
	if !claimed {
		// 另一个worker持有有效租约，由它负责完成
		logger.Debug().Str("run_id", run.RunID).Msg("运行已被其他worker认领，跳过")
		return true
	}
	run.Status = constants.ParseStatusProcessing

	result := w.pipeline.ProcessRun(ctx, run)
	span.SetAttributes(attribute.Int("disposition", int(result.Disposition)))

	switch result.Disposition {
	case processor.DispositionSuccess:
		return w.finalize(ctx, span, run.RunID, result.Status, "", "", result)
	case processor.DispositionTerminal:
		return w.finalize(ctx, span, run.RunID, constants.ParseStatusFailed,
			result.ErrorCode, result.ErrorMessage, result)
	case processor.DispositionRetryable:
		return w.scheduleRetry(ctx, span, run, body, result)
	}

	logger.Error().Str("run_id", run.RunID).Int("disposition", int(result.Disposition)).
		Msg("未知的处置类型")
	return true
}

// finalize 写入终态。ErrRunTerminal说明另一条投递已经完成了写入。
func (w *Worker) finalize(ctx context.Context, span trace.Span, runID, status, errCode, errMessage string,
	result processor.StageResult) bool {

	err := w.store.MySQL.FinalizeRun(ctx, runID, status, errCode, errMessage,
		result.NormalizedJSON, result.Warnings)
	if err != nil {
		if errors.Is(err, storage.ErrRunTerminal) {
			return true
		}
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		logger.Error().Err(err).Str("run_id", runID).Msg("写入终态失败，消息重投")
		return false
	}

	logger.Info().Str("run_id", runID).Str("status", status).Str("error_code", errCode).
		Msg("解析运行已终态")
	return true
}

// scheduleRetry 瞬态失败的退避重试：运行回到queued并发布延迟消息。
// 重试耗尽则按对应错误码转终态。
func (w *Worker) scheduleRetry(ctx context.Context, span trace.Span, run *models.ParseRun, body []byte,
	result processor.StageResult) bool {

	attempt := run.AttemptCount + 1
	decision := DecideRetry(w.policy, attempt, result)

	if !decision.Requeue {
		logger.Warn().Str("run_id", run.RunID).Int("attempts", attempt).
			Str("error_code", decision.FinalErrorCode).Msg("重试耗尽，运行转终态")
		return w.finalize(ctx, span, run.RunID, constants.ParseStatusFailed,
			decision.FinalErrorCode, result.ErrorMessage, result)
	}

	if err := w.store.MySQL.RequeueRunForRetry(ctx, run.RunID, attempt,
		result.ErrorCode, result.ErrorMessage); err != nil {
		if errors.Is(err, storage.ErrRunTerminal) {
			return true
		}
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		logger.Error().Err(err).Str("run_id", run.RunID).Msg("回写排队状态失败，消息重投")
		return false
	}

	if err := w.store.RabbitMQ.PublishWithDelay(ctx, body, decision.Delay); err != nil {
		// 运行已是queued，重投原消息可以再次认领补上延迟投递
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		logger.Error().Err(err).Str("run_id", run.RunID).Msg("发布延迟重试消息失败，消息重投")
		return false
	}

	logger.Info().Str("run_id", run.RunID).Int("attempt", attempt).
		Dur("delay", decision.Delay).Bool("rate_limited", result.RateLimited).
		Msg("解析运行已安排延迟重试")
	return true
}
