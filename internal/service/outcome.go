package service

type OutcomeKind string

const (
	OutcomeDispatched       OutcomeKind = "dispatched"
	OutcomeSkipped          OutcomeKind = "skipped"
	OutcomeValidationFailed OutcomeKind = "validation_failed"
)

// DispatchOutcome 调度/触发结果; 跳过与校验失败不是错误, 按 Kind 分支处理
type DispatchOutcome struct {
	Kind     OutcomeKind `json:"kind"`
	TaskID   int64       `json:"task_id"`
	Reason   string      `json:"reason,omitempty"`
	HandleID string      `json:"handle_id,omitempty"`
}

func Dispatched(taskID int64, handleID string) DispatchOutcome {
	return DispatchOutcome{Kind: OutcomeDispatched, TaskID: taskID, HandleID: handleID}
}

func Skipped(taskID int64, reason string) DispatchOutcome {
	return DispatchOutcome{Kind: OutcomeSkipped, TaskID: taskID, Reason: reason}
}

func ValidationFailed(taskID int64, reason string) DispatchOutcome {
	return DispatchOutcome{Kind: OutcomeValidationFailed, TaskID: taskID, Reason: reason}
}
