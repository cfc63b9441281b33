package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/parliament/api/handlers"
	"github.com/BaSui01/parliament/config"
	"github.com/BaSui01/parliament/internal/metrics"
	"github.com/BaSui01/parliament/internal/server"
	"github.com/BaSui01/parliament/internal/telemetry"
)

// publicPaths 不需要 API Key，也不参与限流
var publicPaths = []string{"/health", "/healthz", "/ready", "/version"}

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组合 API 与 metrics 两个 HTTP 服务
type Server struct {
	cfg       *config.Config
	app       *app
	collector *metrics.Collector
	logger    *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager
	watcher        *config.FileWatcher
	otel           *telemetry.Providers

	cancel context.CancelFunc
}

// NewServer 创建服务器，ctx 结束时后台 goroutine 退出
func NewServer(cfg *config.Config, a *app, collector *metrics.Collector, otelProviders *telemetry.Providers, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		app:       a,
		collector: collector,
		otel:      otelProviders,
		logger:    logger,
	}
}

// Handler 构建完整的路由与中间件链
func (s *Server) Handler(ctx context.Context) http.Handler {
	health := handlers.NewHealthHandler(s.logger)
	if s.app.db != nil {
		health.RegisterCheck(handlers.NewFuncCheck("database", s.app.db.Ping))
	}
	if s.app.cache != nil {
		health.RegisterCheck(handlers.NewFuncCheck("redis", s.app.cache.Ping))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))

	delib := handlers.NewDeliberationHandler(s.app.engine, s.cfg.Server.RequestTimeout, s.logger)
	mux.HandleFunc("POST /v1/deliberations", delib.HandleDeliberate)

	if s.app.summarizer != nil {
		costs := handlers.NewCostHandler(s.app.summarizer, s.logger)
		mux.HandleFunc("GET /v1/sessions/{id}/costs", costs.HandleSessionCosts)
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(s.otel.Tracer("parliament/http")),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		SecurityHeaders(),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, publicPaths),
		APIKeyAuth(s.cfg.Server.APIKeys, publicPaths, s.logger),
	)
}

// Start 启动 API、metrics 服务与宪章监听
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.Constitution.Watch {
		w, err := s.app.watchConstitution(ctx)
		if err != nil {
			s.logger.Warn("constitution hot reload disabled", zap.Error(err))
		} else {
			s.watcher = w
		}
	}

	sc := s.cfg.Server
	s.httpManager = server.NewManager("api", s.Handler(ctx), server.Config{
		Addr:            fmt.Sprintf(":%d", sc.HTTPPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		IdleTimeout:     2 * sc.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start api server: %w", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsManager = server.NewManager("metrics", metricsMux, server.Config{
		Addr:            fmt.Sprintf(":%d", sc.MetricsPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.ReadTimeout,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		_ = s.httpManager.Shutdown(context.Background())
		return fmt.Errorf("start metrics server: %w", err)
	}

	if s.app.db != nil {
		go s.reportDBStats(ctx)
	}

	s.logger.Info("parliament started",
		zap.String("api_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.Bool("constitution_watch", s.watcher != nil),
		zap.Bool("ledger_enabled", s.app.recorder != nil),
	)
	return nil
}

// Wait 阻塞直到 ctx 结束或 API 服务出错
func (s *Server) Wait(ctx context.Context) error {
	return s.httpManager.Wait(ctx)
}

// reportDBStats 定期把连接池状态写入指标
func (s *Server) reportDBStats(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.app.db.Stats()
			s.collector.RecordDBConnections("ledger", st.OpenConnections, st.Idle)
		}
	}
}

// Shutdown 按依赖逆序关闭：停止接收请求 → 排空账本 → 关闭存储 → 刷新遥测
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn("stop constitution watcher", zap.Error(err))
		}
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("api server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.app.Close(ctx)

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}
	s.logger.Info("graceful shutdown completed")
}
