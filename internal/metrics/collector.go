// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 后端调用指标（每次人格或合成调用一条）
	backendCallsTotal   *prometheus.CounterVec
	backendCallDuration *prometheus.HistogramVec
	backendTokens       *prometheus.CounterVec
	backendCost         *prometheus.CounterVec

	// 审议指标
	deliberationsTotal   *prometheus.CounterVec
	deliberationRounds   prometheus.Histogram
	deliberationDuration *prometheus.HistogramVec
	deliberationCost     prometheus.Histogram
	personaDropsTotal    *prometheus.CounterVec

	// 账本指标
	ledgerWritesTotal *prometheus.CounterVec
	ledgerCost        *prometheus.CounterVec
	ledgerTokens      *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到默认 registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 注册到指定 registry，测试中用独立 registry 避免重复注册
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)
	c.httpResponseSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 后端调用指标
	c.backendCallsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Total number of persona and synthesis backend calls",
		},
		[]string{"persona", "model", "status"},
	)
	c.backendCallDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Backend call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"persona", "model"},
	)
	c.backendTokens = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_tokens_total",
			Help:      "Tokens consumed by backend calls",
		},
		[]string{"persona", "model", "type"}, // type: input, output
	)
	c.backendCost = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_cost_usd_total",
			Help:      "Backend cost in USD",
		},
		[]string{"persona", "model"},
	)

	// 审议指标
	c.deliberationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliberations_total",
			Help:      "Completed deliberations by outcome",
		},
		[]string{"outcome"},
	)
	c.deliberationRounds = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deliberation_rounds",
			Help:      "Rounds recorded per deliberation",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8},
		},
	)
	c.deliberationDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deliberation_duration_seconds",
			Help:      "Deliberation wall-clock duration in seconds",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"outcome"},
	)
	c.deliberationCost = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deliberation_cost_usd",
			Help:      "Total backend cost per deliberation in USD",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)
	c.personaDropsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persona_drops_total",
			Help:      "Personas removed from the active set",
		},
		[]string{"persona", "stage"},
	)

	// 账本指标
	c.ledgerWritesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_writes_total",
			Help:      "Ledger writes by result",
		},
		[]string{"status"}, // ok, error, dropped, skipped
	)
	c.ledgerCost = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_cost_usd_total",
			Help:      "Cost recorded in the ledger in USD",
		},
		[]string{"model"},
	)
	c.ledgerTokens = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_tokens_total",
			Help:      "Tokens recorded in the ledger",
		},
		[]string{"model", "type"},
	)

	// 缓存指标
	c.cacheHits = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)
	c.cacheMisses = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)
	c.dbConnectionsIdle = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 后端调用与审议
// =============================================================================

// ObserveBackendCall 实现 agent.CallObserver
func (c *Collector) ObserveBackendCall(persona, model, status string, duration time.Duration, inputTokens, outputTokens int, costUSD float64) {
	c.backendCallsTotal.WithLabelValues(persona, model, status).Inc()
	c.backendCallDuration.WithLabelValues(persona, model).Observe(duration.Seconds())
	if status != "ok" {
		return
	}
	c.backendTokens.WithLabelValues(persona, model, "input").Add(float64(inputTokens))
	c.backendTokens.WithLabelValues(persona, model, "output").Add(float64(outputTokens))
	c.backendCost.WithLabelValues(persona, model).Add(costUSD)
}

// ObserveDeliberation 实现 deliberation.Observer
func (c *Collector) ObserveDeliberation(outcome string, rounds int, duration time.Duration, costUSD float64) {
	c.deliberationsTotal.WithLabelValues(outcome).Inc()
	c.deliberationRounds.Observe(float64(rounds))
	c.deliberationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	c.deliberationCost.Observe(costUSD)
}

// ObservePersonaDropped 实现 deliberation.Observer
func (c *Collector) ObservePersonaDropped(persona, stage string) {
	c.personaDropsTotal.WithLabelValues(persona, stage).Inc()
}

// =============================================================================
// 📒 账本
// =============================================================================

// RecordLedgerWrite 记录一次账本写入结果
func (c *Collector) RecordLedgerWrite(status string) {
	c.ledgerWritesTotal.WithLabelValues(status).Inc()
}

// RecordLedgerEntry 累加写入账本的成本与 token
func (c *Collector) RecordLedgerEntry(model string, inputTokens, outputTokens int, costUSD float64) {
	c.ledgerCost.WithLabelValues(model).Add(costUSD)
	c.ledgerTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	c.ledgerTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
}

// =============================================================================
// 💾 缓存与数据库
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
