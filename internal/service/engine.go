package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_client"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	"github.com/timelyrain333/bifang-sub000/internal/config"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/dao"
	"github.com/timelyrain333/bifang-sub000/internal/metrics"
	"github.com/timelyrain333/bifang-sub000/internal/model"
	"github.com/timelyrain333/bifang-sub000/internal/notify"
	"github.com/timelyrain333/bifang-sub000/internal/plugin"
	"github.com/timelyrain333/bifang-sub000/internal/resolver"
)

// TriggerOpts 一次执行请求的来源
type TriggerOpts struct {
	UserID  int64 // 手动触发的用户; 定时触发为 0
	Manual  bool
	Attempt int // 从 1 开始
}

// ExecutionResult 引擎对一次请求的处理结果
type ExecutionResult struct {
	Outcome     DispatchOutcome           `json:"outcome"`
	ExecutionID int64                     `json:"execution_id,omitempty"`
	Status      bizConsts.ExecutionStatus `json:"status,omitempty"`
	Result      plugin.Result             `json:"result"`
	Error       string                    `json:"error,omitempty"`
}

// Engine 执行一次任务: 建 Execution, 解析配置, 调插件, 写终态, 推送通知
type Engine struct {
	*core.BaseComponent
	TaskDao     dao.TaskDao                       `infra:"dep:task_dao"`
	ExecDao     dao.ExecutionDao                  `infra:"dep:execution_dao"`
	CredDao     dao.CredentialDao                 `infra:"dep:credential_dao"`
	Bus         *notify.Bus                       `infra:"dep:notify_bus"`
	HTTPClients *http_client.HTTPClientsComponent `infra:"dep:http_clients?"`

	cfg    config.ExecutorConfig
	now    func() time.Time
	tracer trace.Tracer
}

func NewEngine(cfg config.ExecutorConfig) *Engine {
	return &Engine{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_ENGINE, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		now:           time.Now,
		tracer:        otel.Tracer("bifang/engine"),
	}
}

func (e *Engine) Config() config.ExecutorConfig { return e.cfg }

func (e *Engine) pluginEnv() plugin.Env {
	var env plugin.Env
	if e.HTTPClients != nil {
		env.HTTPClients = e.HTTPClients
	}
	return env
}

// ExecuteTask 返回的 error:
//   - *PluginError: 插件本身失败, 可重试
//   - *InfraError: 存储等基础设施失败, 不重试
//   - ErrHardTimeout: 放弃等待插件, Execution 保持 running 交给 reaper
//
// 跳过的请求不算错误, 体现在 Outcome 中.
func (e *Engine) ExecuteTask(ctx context.Context, taskID int64, opts TriggerOpts) (ExecutionResult, error) {
	if opts.Attempt <= 0 {
		opts.Attempt = 1
	}
	task, err := e.TaskDao.Get(ctx, taskID)
	if errors.Is(err, dao.ErrNotFound) {
		return e.skip(ctx, taskID, "task not found"), nil
	}
	if err != nil {
		return ExecutionResult{}, &InfraError{Op: "load task", Err: err}
	}
	if !task.IsActive {
		return e.skip(ctx, taskID, "task inactive"), nil
	}
	if task.TriggerType == bizConsts.TriggerManual && !opts.Manual {
		return e.skip(ctx, taskID, "manual task is never run by the scheduler"), nil
	}

	ctx, span := e.tracer.Start(ctx, "bifang.execute", trace.WithAttributes(
		attribute.Int64("bifang.task_id", task.ID),
		attribute.String("bifang.plugin", task.PluginName),
		attribute.Int("bifang.attempt", opts.Attempt),
		attribute.Bool("bifang.manual", opts.Manual),
	))
	defer span.End()

	start := e.now()
	triggeredBy := opts.UserID
	exec := &model.Execution{
		TaskID:    task.ID,
		Status:    bizConsts.ExecRunning,
		StartedAt: start,
		TraceID:   traceID(span),
	}
	exec.SetMeta(model.ExecutionMeta{TriggeredBy: triggeredBy, Manual: opts.Manual, Attempt: opts.Attempt})
	if err := e.ExecDao.Create(ctx, exec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create execution")
		return ExecutionResult{}, &InfraError{Op: "create execution", Err: err}
	}
	out := ExecutionResult{Outcome: Dispatched(task.ID, ""), ExecutionID: exec.ID, Status: bizConsts.ExecRunning}

	if err := e.TaskDao.MarkStarted(ctx, task.ID, start); err != nil {
		logging.Error(ctx, "mark task running failed", zap.Int64("task_id", task.ID), zap.Error(err))
	}
	task.LastRunAt = &start
	if task.Status != bizConsts.TaskPaused {
		task.Status = bizConsts.TaskRunning
	}
	e.Bus.PublishTaskStatus(ctx, task, exec.ID, triggeredBy)

	logs := newRunLog()
	logs.add(start, "attempt %d of task %d (%s) started", opts.Attempt, task.ID, task.PluginName)

	res, runErr := e.invoke(ctx, task, triggeredBy)
	if errors.Is(runErr, ErrHardTimeout) {
		logging.Error(ctx, "plugin exceeded hard timeout, leaving execution for the reaper",
			zap.Int64("task_id", task.ID), zap.Int64("execution_id", exec.ID), zap.Duration("hard_timeout", e.cfg.HardTimeout))
		span.SetStatus(codes.Error, "hard timeout")
		out.Error = runErr.Error()
		return out, runErr
	}

	finishedAt := e.now()
	exec.FinishedAt = &finishedAt
	exec.Status = bizConsts.ExecSuccess
	taskStatus := bizConsts.TaskSuccess
	switch {
	case runErr != nil:
		exec.Status = bizConsts.ExecFailed
		taskStatus = bizConsts.TaskFailed
		exec.ErrorMessage = truncate(runErr.Error(), e.cfg.ErrorMaxLength)
		res = plugin.Result{Success: false, Message: exec.ErrorMessage}
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "plugin failed")
	case !res.Success:
		exec.Status = bizConsts.ExecFailed
		taskStatus = bizConsts.TaskFailed
		exec.ErrorMessage = truncate(res.Message, e.cfg.ErrorMaxLength)
		span.SetStatus(codes.Error, "plugin reported failure")
	}
	if res.Logs != "" {
		logs.raw(res.Logs)
	}
	logs.add(finishedAt, "finished with status %s in %s", exec.Status, finishedAt.Sub(start).Round(time.Millisecond))
	exec.Logs = logs.String()
	exec.Result = resultMap(res, exec.Result)

	finished, err := e.ExecDao.Finish(ctx, exec, taskStatus)
	if err != nil {
		logging.Error(ctx, "persist execution result failed",
			zap.Int64("task_id", task.ID), zap.Int64("execution_id", exec.ID), zap.Error(err))
		return out, &InfraError{Op: "finish execution", Err: err}
	}
	metrics.Execution(task.PluginName, string(exec.Status), finishedAt.Sub(start))
	out.Status = exec.Status
	out.Result = res
	out.Error = exec.ErrorMessage
	if !finished {
		// reaper 已经先一步把它判为失败
		logging.Warn(ctx, "execution was already finalized elsewhere", zap.Int64("execution_id", exec.ID))
		out.Status = bizConsts.ExecFailed
		return out, runErr
	}
	if task.Status != bizConsts.TaskPaused {
		task.Status = taskStatus
	}
	e.Bus.PublishTaskStatus(ctx, task, exec.ID, triggeredBy)
	logging.Info(ctx, "execution finished",
		zap.Int64("task_id", task.ID), zap.Int64("execution_id", exec.ID),
		zap.String("status", string(exec.Status)), zap.Int("attempt", opts.Attempt))
	return out, runErr
}

func (e *Engine) skip(ctx context.Context, taskID int64, reason string) ExecutionResult {
	logging.Info(ctx, "execution skipped", zap.Int64("task_id", taskID), zap.String("reason", reason))
	metrics.Dispatch(string(OutcomeSkipped))
	return ExecutionResult{Outcome: Skipped(taskID, reason)}
}

// invoke 解析配置并在软/硬超时内调用插件
func (e *Engine) invoke(ctx context.Context, task *model.Task, triggeredBy int64) (plugin.Result, error) {
	p, err := plugin.New(task.PluginName, e.pluginEnv())
	if err != nil {
		// 插件不存在重试也没用
		return plugin.Result{Success: false, Message: err.Error()}, nil
	}
	cfg, err := e.resolveConfig(ctx, task, p.Descriptor(), triggeredBy)
	if err != nil {
		return plugin.Result{}, err
	}

	softCtx, cancel := context.WithTimeout(ctx, e.cfg.SoftTimeout)
	defer cancel()

	type ret struct {
		v   any
		err error
	}
	ch := make(chan ret, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error(ctx, "plugin panicked", zap.String("plugin", task.PluginName),
					zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				ch <- ret{err: &PluginError{Plugin: task.PluginName, Kind: "panic", Err: panicError{value: r}}}
			}
		}()
		v, err := p.Run(softCtx, cfg)
		ch <- ret{v: v, err: err}
	}()

	hard := time.NewTimer(e.cfg.HardTimeout)
	defer hard.Stop()
	select {
	case r := <-ch:
		if r.err != nil {
			var pe *PluginError
			if errors.As(r.err, &pe) {
				return plugin.Result{}, pe
			}
			kind := "error"
			if errors.Is(r.err, context.DeadlineExceeded) {
				kind = "soft timeout"
			}
			return plugin.Result{}, &PluginError{Plugin: task.PluginName, Kind: kind, Err: r.err}
		}
		res, err := plugin.Normalize(r.v)
		if err != nil {
			return plugin.Result{}, &PluginError{Plugin: task.PluginName, Kind: "invalid result", Err: err}
		}
		return res, nil
	case <-hard.C:
		return plugin.Result{}, ErrHardTimeout
	}
}

func (e *Engine) resolveConfig(ctx context.Context, task *model.Task, desc plugin.Descriptor, triggeredBy int64) (map[string]any, error) {
	in := resolver.Input{TaskConfig: task.Config, PluginProvider: desc.Provider}
	// 手动触发用触发人的默认配置, 定时任务用创建人的
	user := task.CreatedBy
	if triggeredBy != 0 {
		user = triggeredBy
	}
	if desc.Provider != plugin.ProviderNone {
		if task.CloudAccountID != nil {
			acc, err := e.CredDao.GetCloudAccount(ctx, *task.CloudAccountID)
			if err != nil && !errors.Is(err, dao.ErrNotFound) {
				return nil, &InfraError{Op: "load cloud account", Err: err}
			}
			in.Account = acc
		}
		def, err := e.CredDao.DefaultProviderConfig(ctx, user, desc.Provider)
		if err != nil && !errors.Is(err, dao.ErrNotFound) {
			return nil, &InfraError{Op: "load provider defaults", Err: err}
		}
		in.UserDefault = def
	}
	ai, err := e.CredDao.EnabledAIConfig(ctx, user)
	if err != nil && !errors.Is(err, dao.ErrNotFound) {
		return nil, &InfraError{Op: "load ai config", Err: err}
	}
	in.AI = ai
	return resolver.Resolve(in), nil
}

func traceID(span trace.Span) string {
	if sc := span.SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// resultMap 插件结果写入 result 列, 保留 _meta
func resultMap(res plugin.Result, prev model.JSONMap) model.JSONMap {
	out := model.JSONMap{
		"success": res.Success,
		"message": res.Message,
	}
	if res.Data != nil {
		out["data"] = res.Data
	}
	if meta, ok := prev[bizConsts.META_KEY]; ok {
		out[bizConsts.META_KEY] = meta
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type runLog struct {
	b strings.Builder
}

func newRunLog() *runLog { return &runLog{} }

func (l *runLog) add(at time.Time, format string, args ...any) {
	l.b.WriteString(at.UTC().Format(time.RFC3339))
	l.b.WriteByte(' ')
	fmt.Fprintf(&l.b, format, args...)
	l.b.WriteByte('\n')
}

func (l *runLog) raw(s string) {
	l.b.WriteString(strings.TrimRight(s, "\n"))
	l.b.WriteByte('\n')
}

func (l *runLog) String() string { return l.b.String() }
