package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PanicsTotal         prometheus.Counter

	// 迁移任务指标
	MigrationsStarted  prometheus.Counter
	MigrationsFinished *prometheus.CounterVec
	MigrationsActive   prometheus.Gauge
	RollbacksTotal     prometheus.Counter
	DryRunsTotal       *prometheus.CounterVec

	// 记录与分块指标
	RecordsTotal  *prometheus.CounterVec
	ChunkDuration *prometheus.HistogramVec
	ChunkFailures *prometheus.CounterVec
}

// NewMetrics 创建监控指标并注册到 reg，reg 为 nil 时使用默认注册表
func NewMetrics(reg prometheus.Registerer) *Metrics {
	gatherer := prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legacymigrate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "legacymigrate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "legacymigrate_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		MigrationsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "legacymigrate_migrations_started_total",
				Help: "Total number of migration jobs started",
			},
		),

		MigrationsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legacymigrate_migrations_finished_total",
				Help: "Total number of migration jobs finished, by outcome",
			},
			[]string{"outcome"},
		),

		MigrationsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "legacymigrate_migrations_active",
				Help: "Number of migration jobs currently running",
			},
		),

		RollbacksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "legacymigrate_rollbacks_total",
				Help: "Total number of migration rollbacks",
			},
		),

		DryRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legacymigrate_dry_runs_total",
				Help: "Total number of dry runs, by whether the report was blocking",
			},
			[]string{"blocking"},
		),

		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legacymigrate_records_total",
				Help: "Records processed by migration jobs, by entity and result",
			},
			[]string{"entity", "result"},
		),

		ChunkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "legacymigrate_chunk_write_duration_seconds",
				Help:    "Duration of single chunk write attempts",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"entity"},
		),

		ChunkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "legacymigrate_chunk_failures_total",
				Help: "Chunks that failed after all retries",
			},
			[]string{"entity"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// MigrationStarted 任务开始
func (m *Metrics) MigrationStarted() {
	m.MigrationsStarted.Inc()
	m.MigrationsActive.Inc()
}

// MigrationFinished 任务结束
func (m *Metrics) MigrationFinished(outcome string) {
	m.MigrationsFinished.WithLabelValues(outcome).Inc()
	m.MigrationsActive.Dec()
}

// RecordRollback 记录回滚
func (m *Metrics) RecordRollback() {
	m.RollbacksTotal.Inc()
}

// RecordDryRun 记录一次预检
func (m *Metrics) RecordDryRun(blocking bool) {
	m.DryRunsTotal.WithLabelValues(strconv.FormatBool(blocking)).Inc()
}

// RecordEntity 记录一个实体的最终计数
func (m *Metrics) RecordEntity(entity string, migrated, skipped, errs int) {
	m.RecordsTotal.WithLabelValues(entity, "migrated").Add(float64(migrated))
	m.RecordsTotal.WithLabelValues(entity, "skipped").Add(float64(skipped))
	m.RecordsTotal.WithLabelValues(entity, "error").Add(float64(errs))
}

// ObserveChunk 记录一次分块写入的耗时
func (m *Metrics) ObserveChunk(entity string, duration time.Duration) {
	m.ChunkDuration.WithLabelValues(entity).Observe(duration.Seconds())
}

// RecordChunkFailure 记录一个重试耗尽后仍失败的分块
func (m *Metrics) RecordChunkFailure(entity string) {
	m.ChunkFailures.WithLabelValues(entity).Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
