// Package txn 写路径事务协调: 可重复读隔离级别、超时预算、序列化冲突重试。
//
// 事务对象通过 context 传递，仓储层统一用 DB(ctx, db) 取得当前连接，
// 因此同一个 Do 回调内的多个仓储调用落在同一个数据库事务中。
package txn

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"volunteer_hub/internal/pkg/config"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/logger"
	"volunteer_hub/pkg/metrics"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"

	defaultTimeout    = 3 * time.Second
	maxAllowedRetries = 3
)

// Runner 在一个事务中执行 fn
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type (
	txKey    struct{}
	hooksKey struct{}
)

// CommitHooks 事务提交后按登记顺序执行的回调
type CommitHooks struct {
	fns []func()
}

// WithCommitHooks 为一次事务尝试挂上新的回调列表
func WithCommitHooks(ctx context.Context) (context.Context, *CommitHooks) {
	h := &CommitHooks{}
	return context.WithValue(ctx, hooksKey{}, h), h
}

// Run 事务提交后调用
func (h *CommitHooks) Run() {
	for _, fn := range h.fns {
		fn()
	}
	h.fns = nil
}

// AfterCommit 在最外层事务提交后执行 fn，回滚或重试时丢弃；不在事务中时立即执行
func AfterCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(hooksKey{}).(*CommitHooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn()
}

// Manager 基于 gorm 的事务管理器
type Manager struct {
	db         *gorm.DB
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// NewManager 创建事务管理器
func NewManager(db *gorm.DB, cfg config.TransactionConfig) *Manager {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	if retries > maxAllowedRetries {
		retries = maxAllowedRetries
	}
	return &Manager{
		db:         db,
		timeout:    timeout,
		maxRetries: retries,
		backoff:    20 * time.Millisecond,
	}
}

// DB 返回 ctx 中的事务连接，不在事务中时返回 db
func DB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// InTx ctx 是否已处于事务中
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok
}

// Do 执行事务。已在事务中时直接复用外层事务。
// 请求方断开连接不会中止事务，只有超时预算会。
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	collector := metrics.Default()
	for attempt := 0; ; attempt++ {
		hookCtx, hooks := WithCommitHooks(ctx)
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(context.WithValue(hookCtx, txKey{}, tx))
		}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})

		if err == nil {
			collector.RecordTxnOutcome("commit")
			hooks.Run()
			return nil
		}

		if isTimeout(ctx, err) {
			collector.RecordTxnOutcome("timeout")
			logger.Log.Warn("transaction timed out", zap.Duration("budget", m.timeout), zap.Error(err))
			return errs.ErrTimeout
		}

		state, retryable := retryableState(err)
		if !retryable {
			collector.RecordTxnOutcome("rollback")
			return err
		}

		if attempt >= m.maxRetries {
			collector.RecordTxnOutcome("exhausted")
			logger.Log.Warn("transaction retries exhausted",
				zap.String("sqlstate", state),
				zap.Int("attempts", attempt+1),
			)
			return errs.ErrConflictRetryExhausted
		}

		collector.RecordTxnRetry(state)
		select {
		case <-ctx.Done():
			collector.RecordTxnOutcome("timeout")
			return errs.ErrTimeout
		case <-time.After(m.backoff * time.Duration(attempt+1)):
		}
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// 业务错误不受影响
	return errors.Is(ctx.Err(), context.DeadlineExceeded) && errs.KindOf(err) == errs.KindInternal
}

func retryableState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return pgErr.Code, true
		}
	}
	return "", false
}
