package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	"github.com/timelyrain333/bifang-sub000/internal/config"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/metrics"
)

// ExecRequest 交给 transport 的一次执行请求
type ExecRequest struct {
	TaskID  int64 `json:"task_id"`
	UserID  int64 `json:"user_id,omitempty"`
	Manual  bool  `json:"manual,omitempty"`
	Attempt int   `json:"attempt,omitempty"`
}

// Handle 提交后的句柄; Done 为 nil 表示无法在本进程内观察完成
type Handle interface {
	ID() string
	Done() <-chan struct{}
}

// HandleStatus 通过句柄查询到的状态
type HandleStatus struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	TaskID      int64  `json:"task_id,omitempty"`
	ExecutionID int64  `json:"execution_id,omitempty"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Transport 把执行请求交给 worker; Submit 不得阻塞调用方
type Transport interface {
	core.Component
	Submit(ctx context.Context, req ExecRequest) (Handle, error)
	Status(ctx context.Context, handleID string) (HandleStatus, error)
}

// LocalTransport 进程内 worker pool, 插件失败按固定间隔重新提交
type LocalTransport struct {
	*core.BaseComponent
	Pool   *WorkerPool `infra:"dep:worker_pool"`
	Engine *Engine     `infra:"dep:execution_engine"`

	cfg    config.ExecutorConfig
	mu     sync.Mutex
	timers map[*time.Timer]*retryChain
	closed bool
}

// retryChain 一次请求连同它的全部重试; 最后一次尝试结束或重试被放弃后才 Done.
// ID 是首次尝试的 future id
type retryChain struct {
	id   string
	done chan struct{}
	once sync.Once
}

func (c *retryChain) ID() string            { return c.id }
func (c *retryChain) Done() <-chan struct{} { return c.done }
func (c *retryChain) finish()               { c.once.Do(func() { close(c.done) }) }

func NewLocalTransport(cfg config.ExecutorConfig) *LocalTransport {
	return &LocalTransport{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_TRANSPORT, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		timers:        make(map[*time.Timer]*retryChain),
	}
}

func (t *LocalTransport) Start(ctx context.Context) error {
	if err := t.BaseComponent.Start(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	t.closed = false
	t.mu.Unlock()
	return nil
}

// Stop 取消尚未触发的重试, 对应请求随之结束
func (t *LocalTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	pending := t.timers
	t.timers = make(map[*time.Timer]*retryChain)
	t.mu.Unlock()
	for tm, c := range pending {
		tm.Stop()
		c.finish()
	}
	if n := len(pending); n > 0 {
		logging.Warn(ctx, "pending retries dropped on shutdown", zap.Int("count", n))
	}
	return t.BaseComponent.Stop(ctx)
}

// Submit 返回的句柄覆盖整条重试链, 调度方据此保持 in-flight
func (t *LocalTransport) Submit(ctx context.Context, req ExecRequest) (Handle, error) {
	if req.Attempt <= 0 {
		req.Attempt = 1
	}
	c := &retryChain{done: make(chan struct{})}
	f, err := t.submit(req, c)
	if err != nil {
		return nil, err
	}
	c.id = f.ID()
	return c, nil
}

func (t *LocalTransport) submit(req ExecRequest, c *retryChain) (*Future, error) {
	var retrying atomic.Bool
	f, err := t.Pool.Submit(func(jobCtx context.Context) (any, error) {
		res, err, retried := t.run(jobCtx, req, c)
		retrying.Store(retried)
		return res, err
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-f.Done()
		if !retrying.Load() {
			c.finish()
		}
	}()
	return f, nil
}

// run 执行一次尝试; retried 表示已为这条链安排了下一次尝试
func (t *LocalTransport) run(ctx context.Context, req ExecRequest, c *retryChain) (res any, err error, retried bool) {
	res, err = t.Engine.ExecuteTask(ctx, req.TaskID, TriggerOpts{UserID: req.UserID, Manual: req.Manual, Attempt: req.Attempt})
	if err != nil {
		logging.Warn(ctx, "execution attempt failed",
			zap.Int64("task_id", req.TaskID), zap.Int("attempt", req.Attempt), zap.Error(err))
		if IsRetryable(err) && req.Attempt <= t.cfg.MaxRetries {
			retried = t.retryLater(req, c)
		}
	}
	return res, err, retried
}

func (t *LocalTransport) retryLater(req ExecRequest, c *retryChain) bool {
	next := req
	next.Attempt++
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	var tm *time.Timer
	tm = time.AfterFunc(t.cfg.RetryDelay, func() {
		t.mu.Lock()
		_, pending := t.timers[tm]
		delete(t.timers, tm)
		t.mu.Unlock()
		if !pending {
			// Stop 已经结束了这条链
			return
		}
		ctx := context.Background()
		if _, err := t.submit(next, c); err != nil {
			logging.Error(ctx, "resubmit retry failed", zap.Int64("task_id", next.TaskID), zap.Int("attempt", next.Attempt), zap.Error(err))
			c.finish()
			return
		}
		metrics.Retry(t.pluginOf(ctx, next.TaskID))
	})
	t.timers[tm] = c
	return true
}

func (t *LocalTransport) pluginOf(ctx context.Context, taskID int64) string {
	task, err := t.Engine.TaskDao.Get(ctx, taskID)
	if err != nil {
		return "unknown"
	}
	return task.PluginName
}

// PendingRetries 等待中的重试数
func (t *LocalTransport) PendingRetries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (t *LocalTransport) Status(_ context.Context, handleID string) (HandleStatus, error) {
	f, ok := t.Pool.Lookup(handleID)
	if !ok {
		return HandleStatus{}, ErrHandleNotFound
	}
	st := HandleStatus{ID: handleID, State: "queued"}
	if f.Started() {
		st.State = "running"
	}
	v, err, done := f.Result()
	if !done {
		return st, nil
	}
	st.State = "done"
	if res, ok := v.(ExecutionResult); ok {
		st.TaskID = res.Outcome.TaskID
		st.ExecutionID = res.ExecutionID
		st.Status = string(res.Status)
		if res.Outcome.Kind == OutcomeSkipped {
			st.State = string(OutcomeSkipped)
			st.Error = res.Outcome.Reason
		}
		if res.Error != "" {
			st.Error = res.Error
		}
	}
	if err != nil && st.Error == "" {
		st.Error = err.Error()
	}
	if errors.Is(err, ErrHardTimeout) {
		st.State = "abandoned"
	}
	return st, nil
}
