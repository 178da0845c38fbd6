package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/fusionflow/api/handlers"
	"github.com/BaSui01/fusionflow/config"
	"github.com/BaSui01/fusionflow/image"
	"github.com/BaSui01/fusionflow/internal/metrics"
	"github.com/BaSui01/fusionflow/internal/server"
	"github.com/BaSui01/fusionflow/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 FusionFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	registry         *prometheus.Registry
	metricsCollector *metrics.Collector
	generator        *image.Generator

	// Handlers
	healthHandler *handlers.HealthHandler
	imageHandler  *handlers.ImageHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器并完成依赖装配，不监听端口
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metricsCollector = metrics.NewCollector("fusionflow", s.registry, logger)

	// Prometheus 与 OTLP 同时记录；遥测禁用时 OTel 侧为 noop
	var otelRecorder image.MetricsRecorder
	if rec, err := telemetry.NewRecorder(nil); err != nil {
		logger.Warn("otel metrics recorder unavailable", zap.Error(err))
	} else {
		otelRecorder = rec
	}
	s.generator = buildGenerator(cfg, image.MultiRecorder(s.metricsCollector, otelRecorder), logger)

	s.healthHandler = handlers.NewHealthHandler(logger).WithVersion(Version)
	s.healthHandler.RegisterCheck(handlers.NewEnginesCheck(s.generator.ConfiguredEngines))

	s.imageHandler = handlers.NewImageHandler(s.generator, handlers.ImageHandlerConfig{
		RequestTimeout: cfg.Generation.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}, logger)
	return s
}

// buildGenerator 注册全部三个服务商。缺少凭证的服务商仍然注册，
// 调用时返回 CONFIG_ERROR。recorder 可为 nil。
func buildGenerator(cfg *config.Config, recorder image.MetricsRecorder, logger *zap.Logger) *image.Generator {
	var pollOpts []image.PollerOption
	if recorder != nil {
		pollOpts = append(pollOpts, image.WithPollObserver(recorder))
	}
	poller := image.NewPoller(cfg.Generation.Poll, logger, pollOpts...)

	opts := []image.GeneratorOption{
		image.WithProvider(image.NewFluxProvider(cfg.Providers.Flux, poller, logger)),
		image.WithProvider(image.NewGeminiProvider(cfg.Providers.Gemini, logger)),
		image.WithProvider(image.NewOpenAIProvider(cfg.Providers.OpenAI, logger)),
		image.WithDefaultEngine(cfg.Generation.DefaultEngine),
		image.WithMaxConcurrency(cfg.Generation.MaxConcurrency),
	}
	if recorder != nil {
		opts = append(opts, image.WithMetricsRecorder(recorder))
	}
	return image.NewGenerator(logger, opts...)
}

// =============================================================================
// 🌐 路由与中间件
// =============================================================================

// Handler 构建带中间件链的 HTTP 处理器。ctx 结束时限流器的清理 goroutine 退出。
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 图像 API
	mux.HandleFunc("POST /v1/images/generate", s.imageHandler.HandleGenerate)
	mux.HandleFunc("POST /v1/images/generate/stream", s.imageHandler.HandleGenerateStream)
	mux.HandleFunc("POST /v1/images/generate/batch", s.imageHandler.HandleBatch)
	mux.HandleFunc("GET /v1/images/engines", s.imageHandler.HandleEngines)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	}
	return Chain(mux, middlewares...)
}

// MetricsHandler 返回本服务注册表的 Prometheus 处理器
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动 HTTP 与 Metrics 服务器（非阻塞）
func (s *Server) Start() error {
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	s.httpManager = server.NewManager(s.Handler(rateLimiterCtx), server.Config{
		Name:            "http",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	if err := s.httpManager.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// metrics_port 为 0 时不单独暴露 /metrics
	if s.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.MetricsHandler())
		s.metricsManager = server.NewManager(mux, server.Config{
			Name:            "metrics",
			Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
			ReadTimeout:     s.cfg.Server.ReadTimeout,
			WriteTimeout:    s.cfg.Server.ReadTimeout,
			ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		}, s.logger)
		if err := s.metricsManager.Start(); err != nil {
			s.Shutdown(context.Background())
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("default_engine", s.generator.DefaultEngine()),
		zap.Strings("configured_engines", s.generator.ConfiguredEngines()),
	)
	return nil
}

func (s *Server) managers() []*server.Manager {
	var out []*server.Manager
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞直到收到信号、ctx 结束或任一服务器出错，然后优雅关闭
func (s *Server) Wait(ctx context.Context) error {
	err := server.WaitForShutdown(ctx, s.logger, s.managers()...)
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	return err
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("Starting graceful shutdown...")

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	for _, m := range s.managers() {
		if err := m.Shutdown(ctx); err != nil {
			s.logger.Error("server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
