package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/parliament/agent"
	"github.com/BaSui01/parliament/agent/deliberation"
	"github.com/BaSui01/parliament/agent/persona"
	"github.com/BaSui01/parliament/config"
	"github.com/BaSui01/parliament/internal/cache"
	"github.com/BaSui01/parliament/internal/database"
	"github.com/BaSui01/parliament/internal/metrics"
	"github.com/BaSui01/parliament/ledger"
	"github.com/BaSui01/parliament/llm/pricing"
	"github.com/BaSui01/parliament/llm/providers/openaicompat"
	"github.com/BaSui01/parliament/llm/retry"
)

// gatewayProvider 是默认绑定使用的 provider 名称
const gatewayProvider = "gateway"

// =============================================================================
// 🧩 组件装配
// =============================================================================

// app 持有 serve 与 ask 共用的全部组件
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector

	providers *agent.ProviderTable
	invoker   *agent.ProviderInvoker
	registry  *persona.Registry
	source    persona.Source
	fileSrc   *persona.FileSource
	engine    *engineHolder

	cache      *cache.Manager
	db         *database.PoolManager
	recorder   *ledger.Recorder
	summarizer ledger.Summarizer
}

// newApp 按配置构建组件。Redis 与数据库不可用时降级而不是失败，
// 只有人格绑定或网关配置错误才返回错误。
func newApp(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, collector: collector}

	if err := a.initBackends(); err != nil {
		return nil, err
	}
	a.initCache(ctx)
	if err := a.initLedger(ctx); err != nil {
		logger.Warn("cost ledger disabled", zap.Error(err))
	}
	a.initSources()

	holder, err := newEngineHolder(ctx, a.buildEngine, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.engine = holder
	return a, nil
}

func (a *app) initBackends() error {
	gw := a.cfg.Gateway
	if gw.APIKey == "" {
		a.logger.Warn("gateway api key not configured, backend calls will be rejected upstream")
	}
	provider := openaicompat.New(openaicompat.Config{
		ProviderName:   gatewayProvider,
		APIKey:         gw.APIKey,
		BaseURL:        gw.BaseURL,
		Timeout:        gw.Timeout,
		RequestHeaders: openaicompat.GatewayHeaders(gw.ProjectID),
	}, a.logger)

	a.providers = agent.NewProviderTable()
	a.providers.Register(gatewayProvider, provider)
	if err := a.providers.SetDefault(gatewayProvider); err != nil {
		return err
	}

	bindings := bindingsFromConfig(a.cfg.Personas)
	for k, ref := range bindings.Personas {
		if _, err := a.providers.ClientFor(ref); err != nil {
			return fmt.Errorf("persona %s: %w", k, err)
		}
	}
	if _, err := a.providers.ClientFor(bindings.Synthesis); err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}

	registry, err := persona.NewRegistry(bindings, a.logger)
	if err != nil {
		return fmt.Errorf("persona bindings: %w", err)
	}
	a.registry = registry

	icfg := agent.DefaultInvokerConfig()
	if gw.Timeout > 0 {
		icfg.CallTimeout = gw.Timeout
	}
	icfg.RateLimit = gw.RateLimitRPS
	if gw.RateLimitBurst > 0 {
		icfg.Burst = gw.RateLimitBurst
	}
	a.invoker = agent.NewProviderInvoker(a.providers, icfg, a.logger,
		agent.WithPricer(pricing.NewCalculator(priceOverrides(a.cfg.Pricing), a.logger)),
		agent.WithCallObserver(a.collector),
	)
	return nil
}

func (a *app) initCache(ctx context.Context) {
	rc := a.cfg.Redis
	if rc.Addr == "" {
		return
	}
	ccfg := cache.DefaultConfig()
	ccfg.Addr = rc.Addr
	ccfg.Password = rc.Password
	ccfg.DB = rc.DB
	if rc.PoolSize > 0 {
		ccfg.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		ccfg.MinIdleConns = rc.MinIdleConns
	}
	m, err := cache.NewManager(ccfg, a.logger)
	if err != nil {
		a.logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
		return
	}
	a.cache = m
}

func (a *app) initLedger(ctx context.Context) error {
	lc := a.cfg.Ledger
	if !lc.Enabled {
		return nil
	}

	dc := a.cfg.Database
	pool := database.DefaultPoolConfig()
	if dc.MaxOpenConns > 0 {
		pool.MaxOpenConns = dc.MaxOpenConns
	}
	if dc.MaxIdleConns > 0 {
		pool.MaxIdleConns = dc.MaxIdleConns
	}
	if dc.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = dc.ConnMaxLifetime
	}
	db, err := database.Open(dc.Driver, dc.DSN(), pool, a.logger)
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}

	gormSink, err := ledger.NewGormSink(db, lc.MaxRetries, a.logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	if lc.AutoMigrate {
		if err := gormSink.AutoMigrate(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("auto-migrate ledger: %w", err)
		}
	}
	a.db = db

	sinks := ledger.MultiSink{gormSink, ledger.NewMetricsSink(a.collector)}
	var summarizers ledger.FallbackSummarizer
	if lc.RedisTotals && a.cache != nil {
		redisSink := ledger.NewRedisSink(a.cache, "", lc.RedisTTL)
		sinks = append(sinks, redisSink)
		summarizers = append(summarizers, redisSink)
	}
	summarizers = append(summarizers, gormSink)
	a.summarizer = summarizers

	a.recorder = ledger.NewRecorder(sinks, ledger.RecorderConfig{
		Workers:      lc.Workers,
		QueueSize:    lc.QueueSize,
		WriteTimeout: lc.WriteTimeout,
	}, a.logger, ledger.WithWriteObserver(a.collector))
	return nil
}

// initSources 组装宪章来源链：GitHub（可选 Redis 缓存）→ 本地文件。
// 两者都失败时 Registry 使用内置的应急宪章。
func (a *app) initSources() {
	cc := a.cfg.Constitution
	var sources []persona.Source

	gh := &persona.GitHubSource{
		Owner: cc.GitHubOwner,
		Repo:  cc.GitHubRepo,
		Path:  cc.GitHubPath,
		Ref:   cc.GitHubRef,
		Token: cc.GitHubToken,
	}
	if gh.Configured() {
		var src persona.Source = gh
		if a.cache != nil && cc.CacheTTL > 0 {
			src = persona.NewCachedSource(gh, newMeteredCache(a.cache, "constitution", a.collector), "", cc.CacheTTL, a.logger)
		}
		sources = append(sources, src)
	}

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	a.fileSrc = persona.NewFileSource(wd)
	if cc.File != "" {
		a.fileSrc.FileName = cc.File
	}
	sources = append(sources, a.fileSrc)

	a.source = persona.NewChainSource(a.logger, sources...)
}

// buildEngine 重新加载宪章并构建新的引擎，供启动与热重载共用
func (a *app) buildEngine(ctx context.Context) (*deliberation.Engine, error) {
	roster := a.registry.Load(ctx, a.source)
	if roster.Degraded {
		a.logger.Warn("using emergency fallback constitution")
	}

	dc := a.cfg.Deliberation
	policy := retry.DisabledPolicy()
	policy.MaxRetries = dc.MaxRetries
	if dc.RetryInitialDelay > 0 {
		policy.InitialDelay = dc.RetryInitialDelay
	}
	if dc.RetryMaxDelay > 0 {
		policy.MaxDelay = dc.RetryMaxDelay
	}

	opts := []deliberation.Option{deliberation.WithObserver(a.collector)}
	if a.recorder != nil {
		opts = append(opts, deliberation.WithLedger(a.recorder))
	}
	return deliberation.NewEngine(roster, a.invoker, deliberation.Config{
		MaxRounds:         dc.MaxRounds,
		MinVotingPersonas: dc.MinVotingPersonas,
		Retry:             policy,
	}, a.logger, opts...)
}

// Close 先排空账本队列再关闭数据库与 Redis
func (a *app) Close(ctx context.Context) {
	if a.recorder != nil {
		if err := a.recorder.Shutdown(ctx); err != nil {
			a.logger.Warn("ledger drain incomplete", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
}

// =============================================================================
// 🔁 可热替换的引擎
// =============================================================================

// engineHolder 实现 handlers.Deliberator。进行中的审议继续使用旧引擎，
// 新请求在 Reload 成功后使用新引擎。
type engineHolder struct {
	current atomic.Pointer[deliberation.Engine]
	build   func(context.Context) (*deliberation.Engine, error)
	logger  *zap.Logger
}

func newEngineHolder(ctx context.Context, build func(context.Context) (*deliberation.Engine, error), logger *zap.Logger) (*engineHolder, error) {
	h := &engineHolder{build: build, logger: logger}
	if err := h.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Reload 构建新引擎并原子替换，失败时保留旧引擎
func (h *engineHolder) Reload(ctx context.Context) error {
	e, err := h.build(ctx)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	if e == nil {
		return errors.New("build engine: nil engine")
	}
	h.current.Store(e)
	h.logger.Info("deliberation engine ready")
	return nil
}

func (h *engineHolder) Run(ctx context.Context, request string, sessionID *string, reporter deliberation.Reporter) (*deliberation.Result, error) {
	return h.current.Load().Run(ctx, request, sessionID, reporter)
}

// watchConstitution 在本地宪章文件变化时重建引擎
func (a *app) watchConstitution(ctx context.Context) (*config.FileWatcher, error) {
	path, err := a.fileSrc.Locate()
	if err != nil {
		return nil, fmt.Errorf("locate constitution: %w", err)
	}
	w, err := config.NewFileWatcher([]string{path}, config.WithWatcherLogger(a.logger))
	if err != nil {
		return nil, err
	}
	w.OnChange(func(evt config.FileEvent) {
		a.logger.Info("constitution changed, reloading personas",
			zap.String("path", evt.Path),
			zap.String("op", evt.Op.String()))
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := a.engine.Reload(rctx); err != nil {
			a.logger.Error("persona reload failed, keeping previous engine", zap.Error(err))
		}
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// =============================================================================
// 🔧 配置转换
// =============================================================================

func bindingsFromConfig(pc config.PersonaConfig) persona.Bindings {
	b := persona.Bindings{Personas: make(map[persona.Key]persona.ModelRef, 3)}
	add := func(k persona.Key, mc config.ModelConfig) {
		// 留空 model 表示不启用该人格
		if strings.TrimSpace(mc.Model) == "" {
			return
		}
		b.Personas[k] = modelRef(mc)
	}
	add(persona.Structural, pc.Structural)
	add(persona.Strategic, pc.Strategic)
	add(persona.Pragmatic, pc.Pragmatic)
	b.Synthesis = modelRef(pc.Synthesis)
	return b
}

func modelRef(mc config.ModelConfig) persona.ModelRef {
	provider := mc.Provider
	if provider == "" {
		provider = gatewayProvider
	}
	return persona.ModelRef{Provider: provider, Model: mc.Model}
}

func priceOverrides(pc config.PricingConfig) []pricing.ModelPrice {
	out := make([]pricing.ModelPrice, 0, len(pc.Overrides))
	for _, p := range pc.Overrides {
		out = append(out, pricing.ModelPrice{
			Model:            p.Model,
			InputPerMillion:  p.Input,
			OutputPerMillion: p.Output,
		})
	}
	return out
}
