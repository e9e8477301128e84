package consts

// TaskStatus 任务缓存状态, 权威状态以最近一次 Execution 为准
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskFailed  TaskStatus = "failed"
	TaskPaused  TaskStatus = "paused"
)

type ExecutionStatus string

const (
	ExecRunning ExecutionStatus = "running"
	ExecSuccess ExecutionStatus = "success"
	ExecFailed  ExecutionStatus = "failed"
)

type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerCron     TriggerType = "cron"
	TriggerInterval TriggerType = "interval"
)

const (
	DEFAULT_JSON_STR = "{}"

	// META_KEY Execution.Result 中存放引擎元数据的键
	META_KEY = "_meta"

	STUCK_EXECUTION_MESSAGE = "execution exceeded the running-state threshold without completing"
)

const (
	TRANSPORT_LOCAL = "local"
	TRANSPORT_ASYNQ = "asynq"
)
