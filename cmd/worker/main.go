package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/llm"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/orchestrator"
	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/processor"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/tracing"
)

// 无HTTP面的纯消费者进程，用于独立扩缩解析吞吐。
func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "etc/config.yaml", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := tracing.InitTracerProvider(ctx, &cfg.Tracing)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer store.Close()

	chain, err := llm.BuildChainFromConfig(&cfg.LLM)
	if err != nil {
		logger.Fatal().Err(err).Msg("构建模型降级链失败")
	}

	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("创建PDF提取器失败")
	}
	var tikaExtractor parser.TextExtractor
	if cfg.Tika.ServerURL != "" {
		var opts []parser.TikaOption
		if cfg.Tika.TimeoutSeconds > 0 {
			opts = append(opts, parser.WithTimeout(time.Duration(cfg.Tika.TimeoutSeconds)*time.Second))
		}
		tikaExtractor = parser.NewTikaTextExtractor(cfg.Tika.ServerURL, opts...)
	}
	extractor := parser.NewCompositeExtractor(pdfExtractor, tikaExtractor, parser.NewPlainTextExtractor())

	enricher := processor.NewEnricher(chain,
		float32(cfg.LLM.ClassifyTemperature), float32(cfg.LLM.SummaryTemperature))
	evaluator := processor.NewRequirementEvaluator(chain)
	pipeline := processor.NewPipeline(store, extractor, chain, enricher, evaluator, cfg)

	worker := orchestrator.NewWorker(store, pipeline, cfg)
	stopConsumer, err := worker.Start()
	if err != nil {
		logger.Fatal().Err(err).Msg("启动解析消费者失败")
	}
	logger.Info().Msg("解析worker已启动")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("收到终止信号，正在退出")

	close(stopConsumer)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("链路追踪关闭失败")
	}
}
