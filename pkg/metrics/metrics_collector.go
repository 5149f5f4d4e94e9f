package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsActive prometheus.Gauge
	dbConnectionsIdle   prometheus.Gauge

	// 事务指标
	txnRetriesTotal  *prometheus.CounterVec
	txnOutcomesTotal *prometheus.CounterVec

	// 业务指标
	ledgerEntriesTotal *prometheus.CounterVec
	signupsTotal       *prometheus.CounterVec
	exchangesTotal     *prometheus.CounterVec

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
}

var (
	defaultCollector *MetricsCollector
	once             sync.Once
)

// Default 全局指标收集器，promauto 注册只能进行一次
func Default() *MetricsCollector {
	once.Do(func() {
		defaultCollector = newMetricsCollector()
	})
	return defaultCollector
}

func newMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		dbConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),

		dbConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		txnRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txn_retries_total",
				Help: "Transaction retries caused by serialization failures or deadlocks",
			},
			[]string{"sqlstate"},
		),

		txnOutcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txn_outcomes_total",
				Help: "Transaction outcomes",
			},
			[]string{"outcome"},
		),

		ledgerEntriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_entries_total",
				Help: "Point change records written, by change type",
			},
			[]string{"change_type"},
		),

		signupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_signups_total",
				Help: "Sign-up engine operations by action and result",
			},
			[]string{"action", "result"},
		),

		exchangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "product_exchanges_total",
				Help: "Redemption engine operations by action and result",
			},
			[]string{"action", "result"},
		),

		cacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_prefix"},
		),

		cacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_prefix"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTxnRetry 记录一次事务重试
func (m *MetricsCollector) RecordTxnRetry(sqlState string) {
	m.txnRetriesTotal.WithLabelValues(sqlState).Inc()
}

// RecordTxnOutcome 记录事务结果: commit / rollback / timeout / exhausted
func (m *MetricsCollector) RecordTxnOutcome(outcome string) {
	m.txnOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordLedgerEntry 记录积分流水写入
func (m *MetricsCollector) RecordLedgerEntry(changeType string) {
	m.ledgerEntriesTotal.WithLabelValues(changeType).Inc()
}

// LedgerEntryCounter 某类流水的写入计数
func (m *MetricsCollector) LedgerEntryCounter(changeType string) prometheus.Counter {
	return m.ledgerEntriesTotal.WithLabelValues(changeType)
}

// RecordSignup 记录报名相关操作
func (m *MetricsCollector) RecordSignup(action string, err error) {
	m.signupsTotal.WithLabelValues(action, resultLabel(err)).Inc()
}

// RecordExchange 记录兑换相关操作
func (m *MetricsCollector) RecordExchange(action string, err error) {
	m.exchangesTotal.WithLabelValues(action, resultLabel(err)).Inc()
}

// RecordCacheOperation 记录缓存命中情况
func (m *MetricsCollector) RecordCacheOperation(keyPrefix string, hit bool) {
	if hit {
		m.cacheHitsTotal.WithLabelValues(keyPrefix).Inc()
	} else {
		m.cacheMissesTotal.WithLabelValues(keyPrefix).Inc()
	}
}

// UpdateDBConnections 根据连接池统计更新数据库连接指标
func (m *MetricsCollector) UpdateDBConnections(stats sql.DBStats) {
	m.dbConnectionsActive.Set(float64(stats.InUse))
	m.dbConnectionsIdle.Set(float64(stats.Idle))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
