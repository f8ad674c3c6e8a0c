package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hlog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"resume-agent-go/internal/api/handler"
	"resume-agent-go/internal/api/router"
	"resume-agent-go/internal/config"
	"resume-agent-go/internal/llm"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/orchestrator"
	"resume-agent-go/internal/outbox"
	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/processor"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/tracing"
)

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
	hlog.SetLogger(hertzzerolog.From(logger.Logger))
	logger.Info().Str("config", configPath).Msg("配置加载成功")

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

	pipeline, worker := buildPipeline(ctx, cfg, store, chain)

	relay := outbox.NewMessageRelay(store.MySQL.DB(), store.RabbitMQ)
	relay.Start()
	logger.Info().Msg("发件箱中继已启动")

	stopConsumer, err := worker.Start()
	if err != nil {
		logger.Fatal().Err(err).Msg("启动解析消费者失败")
	}

	resumeHandler := handler.NewResumeHandler(cfg, store, pipeline)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	router.RegisterRoutes(h, resumeHandler, cfg.Server.APIKey)

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器启动")
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP服务器启动失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("收到终止信号，正在优雅退出")

	close(stopConsumer)
	relay.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP服务器关闭失败")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("链路追踪关闭失败")
	}
	logger.Info().Msg("优雅退出完成")
}

// buildPipeline 组装解析流水线与队列消费者
func buildPipeline(ctx context.Context, cfg *config.Config, store *storage.Storage, chain *llm.FallbackChain) (*processor.Pipeline, *orchestrator.Worker) {
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
		logger.Info().Str("server", cfg.Tika.ServerURL).Msg("Tika文档提取器已启用")
	}

	extractor := parser.NewCompositeExtractor(pdfExtractor, tikaExtractor, parser.NewPlainTextExtractor())
	enricher := processor.NewEnricher(chain,
		float32(cfg.LLM.ClassifyTemperature), float32(cfg.LLM.SummaryTemperature))
	evaluator := processor.NewRequirementEvaluator(chain)

	pipeline := processor.NewPipeline(store, extractor, chain, enricher, evaluator, cfg)
	worker := orchestrator.NewWorker(store, pipeline, cfg)
	return pipeline, worker
}
