package database

import (
	"context"
	"database/sql"
	"time"

	"volunteer_hub/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PoolMonitor 定期把连接池状态写入指标，等待过多时告警
type PoolMonitor struct {
	db       *gorm.DB
	log      *zap.Logger
	interval time.Duration

	// 与等待队列比较的增量阈值
	waitAlertThreshold int64
	lastWaitCount      int64
}

func NewPoolMonitor(db *gorm.DB, log *zap.Logger, interval time.Duration) *PoolMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PoolMonitor{db: db, log: log, interval: interval, waitAlertThreshold: 50}
}

// Run 阻塞直到 ctx 取消
func (pm *PoolMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.collect()
		case <-ctx.Done():
			return
		}
	}
}

func (pm *PoolMonitor) collect() {
	sqlDB, err := pm.db.DB()
	if err != nil {
		pm.log.Warn("get sql.DB failed", zap.Error(err))
		return
	}
	pm.observe(sqlDB.Stats())
}

func (pm *PoolMonitor) observe(stats sql.DBStats) {
	metrics.Default().UpdateDBConnections(stats)

	waited := stats.WaitCount - pm.lastWaitCount
	pm.lastWaitCount = stats.WaitCount
	if waited > pm.waitAlertThreshold {
		pm.log.Warn("database pool saturated",
			zap.Int64("waits_since_last", waited),
			zap.Duration("wait_duration_total", stats.WaitDuration),
			zap.Int("in_use", stats.InUse),
			zap.Int("max_open", stats.MaxOpenConnections),
		)
	}
}
