// Package txntest 提供不依赖数据库的事务执行器，供服务层测试使用。
package txntest

import (
	"context"
	"sync"

	"volunteer_hub/internal/pkg/txn"
)

type activeKey struct{}

// SerialRunner 串行执行所有事务，失败时调用 Snapshot 返回的恢复函数回滚内存状态。
// 嵌套调用直接复用外层事务。
type SerialRunner struct {
	mu       sync.Mutex
	Snapshot func() (restore func())

	Commits   int
	Rollbacks int
}

func (r *SerialRunner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(activeKey{}) != nil {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var restore func()
	if r.Snapshot != nil {
		restore = r.Snapshot()
	}

	hookCtx, hooks := txn.WithCommitHooks(ctx)
	if err := fn(context.WithValue(hookCtx, activeKey{}, true)); err != nil {
		if restore != nil {
			restore()
		}
		r.Rollbacks++
		return err
	}
	r.Commits++
	hooks.Run()
	return nil
}
