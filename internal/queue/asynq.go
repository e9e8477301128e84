// Package queue 基于 asynq 的执行传输: 调度器只负责入队, 由 redis 后面的 worker 进程执行.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/redis"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	"github.com/timelyrain333/bifang-sub000/internal/config"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/metrics"
	"github.com/timelyrain333/bifang-sub000/internal/service"
)

const TaskTypeExecute = "bifang:execute"

type executor interface {
	ExecuteTask(ctx context.Context, taskID int64, opts service.TriggerOpts) (service.ExecutionResult, error)
}

// handle asynq 任务 id; 完成情况只能通过 Status 查询
type handle string

func (h handle) ID() string            { return string(h) }
func (h handle) Done() <-chan struct{} { return nil }

// Transport 实现 service.Transport
type Transport struct {
	*core.BaseComponent
	Redis  *redis.RedisComponent `infra:"dep:redis"`
	Engine *service.Engine       `infra:"dep:execution_engine"`

	cfg       config.ExecutorConfig
	exec      executor
	client    *asynq.Client
	server    *asynq.Server
	inspector *asynq.Inspector
}

func NewTransport(cfg config.ExecutorConfig) *Transport {
	return &Transport{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_TRANSPORT, consts.COMPONENT_LOGGING),
		cfg:           cfg,
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if t.IsActive() {
		return nil
	}
	if t.Redis == nil || t.Redis.Client() == nil {
		return errors.New("asynq transport requires the redis component")
	}
	if err := t.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if t.exec == nil {
		t.exec = t.Engine
	}
	opt := connOpt(t.Redis.Config())
	t.client = asynq.NewClientFromRedisClient(t.Redis.Client())
	t.inspector = asynq.NewInspector(opt)
	t.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: t.cfg.WorkerPoolSize,
		Queues:      map[string]int{t.cfg.AsynqQueue: 1},
		RetryDelayFunc: func(int, error, *asynq.Task) time.Duration {
			return t.cfg.RetryDelay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logging.Warn(ctx, "asynq execution failed", zap.String("task_type", task.Type()), zap.Error(err))
		}),
		Logger: logging.UnderlyingZap().Sugar(),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeExecute, t.handle)
	if err := t.server.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	logging.Info(ctx, "asynq transport started",
		zap.String("queue", t.cfg.AsynqQueue), zap.Int("concurrency", t.cfg.WorkerPoolSize))
	return nil
}

func (t *Transport) Stop(ctx context.Context) error {
	if !t.IsActive() {
		return nil
	}
	if t.server != nil {
		t.server.Shutdown()
	}
	if t.client != nil {
		if err := t.client.Close(); err != nil {
			logging.Warn(ctx, "close asynq client", zap.Error(err))
		}
	}
	if t.inspector != nil {
		_ = t.inspector.Close()
	}
	return t.BaseComponent.Stop(ctx)
}

func (t *Transport) Submit(ctx context.Context, req service.ExecRequest) (service.Handle, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(t.cfg.AsynqQueue),
		asynq.MaxRetry(t.cfg.MaxRetries),
		asynq.Timeout(t.cfg.HardTimeout),
	}
	if !req.Manual {
		// 同一任务的定时触发在执行完成前不会重复入队
		opts = append(opts, asynq.Unique(t.cfg.HardTimeout))
	}
	info, err := t.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeExecute, payload), opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, service.ErrAlreadyQueued
	}
	if err != nil {
		return nil, &service.InfraError{Op: "enqueue execution", Err: err}
	}
	return handle(info.ID), nil
}

func (t *Transport) Status(_ context.Context, handleID string) (service.HandleStatus, error) {
	info, err := t.inspector.GetTaskInfo(t.cfg.AsynqQueue, handleID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return service.HandleStatus{}, service.ErrHandleNotFound
	}
	if err != nil {
		return service.HandleStatus{}, &service.InfraError{Op: "inspect task", Err: err}
	}
	st := service.HandleStatus{ID: handleID, State: info.State.String(), Error: info.LastErr}
	var req service.ExecRequest
	if json.Unmarshal(info.Payload, &req) == nil {
		st.TaskID = req.TaskID
	}
	return st, nil
}

// handle 插件错误交给 asynq 重试, 其余错误 SkipRetry
func (t *Transport) handle(ctx context.Context, task *asynq.Task) error {
	var req service.ExecRequest
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	_, err := t.exec.ExecuteTask(ctx, req.TaskID, service.TriggerOpts{
		UserID:  req.UserID,
		Manual:  req.Manual,
		Attempt: retried + 1,
	})
	if err == nil {
		return nil
	}
	if service.IsRetryable(err) {
		if retried < maxRetry {
			metrics.Retry(pluginName(err))
		}
		return err
	}
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}

func pluginName(err error) string {
	var pe *service.PluginError
	if errors.As(err, &pe) {
		return pe.Plugin
	}
	return "unknown"
}

func connOpt(c redis.Config) asynq.RedisConnOpt {
	switch c.Mode {
	case "cluster":
		return asynq.RedisClusterClientOpt{
			Addrs:        c.Addresses,
			Password:     c.Password,
			DialTimeout:  c.DialTimeout,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
		}
	case "sentinel":
		return asynq.RedisFailoverClientOpt{
			MasterName:    c.SentinelMaster,
			SentinelAddrs: c.Addresses,
			Username:      c.Username,
			Password:      c.Password,
			DB:            c.DB,
			DialTimeout:   c.DialTimeout,
			ReadTimeout:   c.ReadTimeout,
			WriteTimeout:  c.WriteTimeout,
			PoolSize:      c.PoolSize,
		}
	default:
		addr := "127.0.0.1:6379"
		if len(c.Addresses) > 0 {
			addr = c.Addresses[0]
		}
		return asynq.RedisClientOpt{
			Addr:         addr,
			Username:     c.Username,
			Password:     c.Password,
			DB:           c.DB,
			DialTimeout:  c.DialTimeout,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
			PoolSize:     c.PoolSize,
		}
	}
}
