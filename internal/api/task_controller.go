package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_server"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/dao"
	"github.com/timelyrain333/bifang-sub000/internal/service"
)

// TaskController 手动触发 / 句柄查询 / 执行记录
type TaskController struct {
	*core.BaseComponent
	Scheduler *service.SchedulerService `infra:"dep:scheduler_service"`
	Ops       *service.OpsService       `infra:"dep:ops_service"`
	Transport service.Transport         `infra:"dep:execution_transport"`
}

func NewTaskController() *TaskController {
	return &TaskController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_TASK)}
}

func init() {
	http_server.RegisterRoutes(func(r chi.Router, c *core.Container) error {
		comp, err := c.Resolve(bizConsts.COMP_CTRL_TASK)
		if err != nil {
			return err
		}
		ctrl, ok := comp.(*TaskController)
		if !ok {
			return fmt.Errorf("task_ctrl type assertion failed")
		}
		ctrl.Routes(r)
		return nil
	})
}

func (c *TaskController) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks/{id}/run", c.runTask)
		r.Get("/tasks/{id}/executions", c.listExecutions)
		r.Get("/executions/{id}", c.getExecution)
		r.Get("/handles/{id}", c.getHandle)
	})
}

func (c *TaskController) runTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid_task_id")
		return
	}
	out, err := c.Scheduler.TriggerManual(r.Context(), id, userID(r))
	switch {
	case errors.Is(err, dao.ErrNotFound):
		writeErr(w, http.StatusNotFound, "task_not_found")
		return
	case errors.Is(err, service.ErrTaskInactive):
		writeErr(w, http.StatusConflict, "task_inactive")
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out.Kind != service.OutcomeDispatched {
		writeStatus(w, http.StatusServiceUnavailable, out)
		return
	}
	writeStatus(w, http.StatusAccepted, out)
}

func (c *TaskController) listExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid_task_id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := c.Ops.ListExecutions(r.Context(), id, defaultInt(limit, 50))
	if errors.Is(err, dao.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "task_not_found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"items": list})
}

func (c *TaskController) getExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid_execution_id")
		return
	}
	e, err := c.Ops.GetExecution(r.Context(), id)
	if errors.Is(err, dao.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "execution_not_found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, e)
}

func (c *TaskController) getHandle(w http.ResponseWriter, r *http.Request) {
	st, err := c.Transport.Status(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrHandleNotFound) {
		writeErr(w, http.StatusNotFound, "handle_not_found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, st)
}
