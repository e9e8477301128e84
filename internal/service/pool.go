package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
)

// 保留最近完成的 future 数量, 供 handle 查询
const maxFinishedFutures = 1024

type Job func(ctx context.Context) (any, error)

// Future 提交到 worker pool 的任务句柄
type Future struct {
	id          string
	submittedAt time.Time
	started     atomic.Bool
	done        chan struct{}
	value       any
	err         error
}

func newFuture() *Future {
	return &Future{id: uuid.NewString(), submittedAt: time.Now(), done: make(chan struct{})}
}

func (f *Future) ID() string             { return f.id }
func (f *Future) Done() <-chan struct{}  { return f.done }
func (f *Future) Started() bool          { return f.started.Load() }
func (f *Future) SubmittedAt() time.Time { return f.submittedAt }

// Wait 阻塞到任务完成或 ctx 结束
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result 未完成时 ok=false
func (f *Future) Result() (value any, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		return nil, nil, false
	}
}

func (f *Future) complete(v any, err error) {
	f.value, f.err = v, err
	close(f.done)
}

type poolItem struct {
	job    Job
	future *Future
}

// WorkerPool 固定数量 worker + 有界队列, Submit 永不阻塞
type WorkerPool struct {
	*core.BaseComponent
	size      int
	queueSize int

	mu     sync.RWMutex
	jobs   chan poolItem
	closed bool

	fmu      sync.Mutex
	futures  map[string]*Future
	finished []string

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewWorkerPool(size, queueSize int) *WorkerPool {
	if size <= 0 {
		size = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &WorkerPool{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_WORKER_POOL, consts.COMPONENT_LOGGING),
		size:          size,
		queueSize:     queueSize,
		futures:       make(map[string]*Future),
	}
}

func (p *WorkerPool) Start(ctx context.Context) error {
	if p.IsActive() {
		return nil
	}
	if err := p.BaseComponent.Start(ctx); err != nil {
		return err
	}
	// Start 的 ctx 在返回后即被取消, worker 使用独立的 ctx
	loopCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.jobs = make(chan poolItem, p.queueSize)
	p.closed = false
	p.mu.Unlock()
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(loopCtx, p.jobs)
	}
	logging.Info(ctx, "worker pool started", zap.Int("workers", p.size), zap.Int("queue", p.queueSize))
	return nil
}

// Stop 不再接收新任务, 等待队列中的任务跑完; ctx 到期后取消正在运行的任务
func (p *WorkerPool) Stop(ctx context.Context) error {
	if !p.IsActive() {
		return nil
	}
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		logging.Warn(ctx, "worker pool stop deadline reached, cancelling running jobs")
		p.cancel()
		<-drained
	}
	p.cancel()
	return p.BaseComponent.Stop(ctx)
}

func (p *WorkerPool) Submit(job Job) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.jobs == nil {
		return nil, ErrPoolClosed
	}
	f := newFuture()
	p.fmu.Lock()
	p.futures[f.id] = f
	p.fmu.Unlock()
	select {
	case p.jobs <- poolItem{job: job, future: f}:
	default:
		p.fmu.Lock()
		delete(p.futures, f.id)
		p.fmu.Unlock()
		return nil, ErrPoolFull
	}
	return f, nil
}

// retire 完成的 future 只保留最近 maxFinishedFutures 个
func (p *WorkerPool) retire(f *Future) {
	p.fmu.Lock()
	defer p.fmu.Unlock()
	p.finished = append(p.finished, f.id)
	for len(p.finished) > maxFinishedFutures {
		delete(p.futures, p.finished[0])
		p.finished = p.finished[1:]
	}
}

// Lookup 查询排队中/运行中/最近完成的 future
func (p *WorkerPool) Lookup(id string) (*Future, bool) {
	p.fmu.Lock()
	defer p.fmu.Unlock()
	f, ok := p.futures[id]
	return f, ok
}

// Pending 队列中尚未被 worker 取走的数量
func (p *WorkerPool) Pending() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.jobs)
}

func (p *WorkerPool) worker(ctx context.Context, jobs <-chan poolItem) {
	defer p.wg.Done()
	for item := range jobs {
		p.run(ctx, item)
	}
}

func (p *WorkerPool) run(ctx context.Context, item poolItem) {
	item.future.started.Store(true)
	var (
		v   any
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "worker pool job panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("job panicked: %v", r)
		}
		item.future.complete(v, err)
		p.retire(item.future)
	}()
	v, err = item.job(ctx)
}
