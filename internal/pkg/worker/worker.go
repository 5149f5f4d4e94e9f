package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Handler 处理单个任务，返回错误时按重试策略重新入队
type Handler[T any] func(ctx context.Context, payload T) error

type task[T any] struct {
	payload T
	retry   int // 重试次数
}

type Options struct {
	Workers    int
	BufferSize int
	MaxRetry   int           // 最大重试次数
	Backoff    time.Duration // 第 n 次重试前等待 n*Backoff
}

// Pool 固定数量协程消费任务队列，失败任务延迟后回到主队列
type Pool[T any] struct {
	opts   Options
	handle Handler[T]
	log    *zap.Logger
	onDead func(payload T, err error)
	tasks  chan task[T]

	pending sync.WaitGroup // 尚未最终完成的任务
	running sync.WaitGroup // 存活的协程
	mu      sync.RWMutex
	closed  bool
}

func NewPool[T any](opts Options, handle Handler[T], log *zap.Logger) *Pool[T] {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = opts.Workers * 2
	}
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool[T]{
		opts:    opts,
		handle:  handle,
		log:     log,
		tasks:  make(chan task[T], opts.BufferSize),
	}
}

// OnDeadLetter 设置重试耗尽后的回调，须在 Start 之前调用
func (p *Pool[T]) OnDeadLetter(fn func(payload T, err error)) {
	p.onDead = fn
}

func (p *Pool[T]) Start(ctx context.Context) {
	p.running.Add(p.opts.Workers)
	for i := 0; i < p.opts.Workers; i++ {
		go p.worker(ctx, i)
	}
	p.log.Debug("worker pool started", zap.Int("workers", p.opts.Workers))
}

// Submit 阻塞直到任务入队或 ctx 取消
func (p *Pool[T]) Submit(ctx context.Context, payload T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.pending.Add(1)
	select {
	case p.tasks <- task[T]{payload: payload}:
		return nil
	case <-ctx.Done():
		p.pending.Done()
		return ctx.Err()
	}
}

// Close 等待已提交任务全部完成后停止协程
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	// 等待中的重试也计入 pending，此后不会再有任务写入 tasks
	p.pending.Wait()
	close(p.tasks)
	p.running.Wait()
}

func (p *Pool[T]) worker(ctx context.Context, id int) {
	defer p.running.Done()
	for t := range p.tasks {
		p.process(ctx, id, t)
	}
}

func (p *Pool[T]) process(ctx context.Context, id int, t task[T]) {
	err := p.handle(ctx, t.payload)
	if err == nil {
		p.pending.Done()
		return
	}

	// ctx 已取消时不再重试
	if t.retry >= p.opts.MaxRetry || ctx.Err() != nil {
		p.log.Warn("task exceeded max retries", zap.Int("worker", id), zap.Int("retry", t.retry), zap.Error(err))
		p.deadLetter(t, err)
		return
	}

	t.retry++
	p.log.Debug("task scheduled for retry", zap.Int("worker", id), zap.Int("attempt", t.retry))
	// 延迟重试，不占用 worker
	time.AfterFunc(time.Duration(t.retry)*p.opts.Backoff, func() {
		p.requeue(ctx, t, err)
	})
}

// requeue 阻塞直到重新入队；ctx 取消后转入死信
func (p *Pool[T]) requeue(ctx context.Context, t task[T], lastErr error) {
	select {
	case p.tasks <- t:
	case <-ctx.Done():
		p.deadLetter(t, lastErr)
	}
}

func (p *Pool[T]) deadLetter(t task[T], err error) {
	if p.onDead != nil {
		p.onDead(t.payload, err)
	}
	p.pending.Done()
}
