package consts

const (
	COMP_DAO_TASK       = "task_dao"
	COMP_DAO_EXECUTION  = "execution_dao"
	COMP_DAO_CREDENTIAL = "credential_dao"

	COMP_SVC_NOTIFY_BUS  = "notify_bus"
	COMP_SVC_WORKER_POOL = "worker_pool"
	COMP_SVC_ENGINE      = "execution_engine"
	COMP_SVC_TRANSPORT   = "execution_transport" // local pool 或 asynq
	COMP_SVC_SCHEDULER   = "scheduler_service"
	COMP_SVC_REAPER      = "stuck_reaper"
	COMP_SVC_OPS         = "ops_service"

	COMP_CTRL_TASK   = "task_ctrl"
	COMP_CTRL_OPS    = "ops_ctrl"
	COMP_CTRL_NOTIFY = "notify_ctrl"
)
