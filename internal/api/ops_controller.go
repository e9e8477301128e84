package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_server"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/plugin"
	"github.com/timelyrain333/bifang-sub000/internal/service"
)

// OpsController 运维命令, bifangctl 通过它操作运行中的调度进程
type OpsController struct {
	*core.BaseComponent
	Ops *service.OpsService `infra:"dep:ops_service"`
}

func NewOpsController() *OpsController {
	return &OpsController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_OPS)}
}

func init() {
	http_server.RegisterRoutes(func(r chi.Router, c *core.Container) error {
		comp, err := c.Resolve(bizConsts.COMP_CTRL_OPS)
		if err != nil {
			return err
		}
		ctrl, ok := comp.(*OpsController)
		if !ok {
			return fmt.Errorf("ops_ctrl type assertion failed")
		}
		ctrl.Routes(r)
		return nil
	})
}

func (c *OpsController) Routes(r chi.Router) {
	r.Route("/api/v1/ops", func(r chi.Router) {
		r.Post("/reload", c.reload)
		r.Post("/sync-status", c.syncStatus)
		r.Post("/fix-stuck", c.fixStuck)
		r.Get("/schedules", c.listSchedules)
		r.Post("/schedules/fix", c.fixSchedules)
		r.Get("/plugins", c.listPlugins)
	})
}

func (c *OpsController) reload(w http.ResponseWriter, r *http.Request) {
	rep, err := c.Ops.ReloadSchedules(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, rep)
}

func (c *OpsController) syncStatus(w http.ResponseWriter, r *http.Request) {
	rep, err := c.Ops.SyncTaskStatus(r.Context(), queryBool(r, "dry_run"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, rep)
}

func (c *OpsController) fixStuck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ThresholdMinutes int  `json:"threshold_minutes"`
		DryRun           bool `json:"dry_run"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.ThresholdMinutes < 0 {
		writeErr(w, http.StatusBadRequest, "invalid_threshold")
		return
	}
	rep, err := c.Ops.FixStuck(r.Context(), time.Duration(req.ThresholdMinutes)*time.Minute, req.DryRun)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, rep)
}

func (c *OpsController) listSchedules(w http.ResponseWriter, r *http.Request) {
	c.schedules(w, r, false)
}

func (c *OpsController) fixSchedules(w http.ResponseWriter, r *http.Request) {
	c.schedules(w, r, true)
}

func (c *OpsController) schedules(w http.ResponseWriter, r *http.Request, fix bool) {
	list, err := c.Ops.ListSchedules(r.Context(), fix)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"items": list, "notice": service.RestartNotice})
}

func (c *OpsController) listPlugins(w http.ResponseWriter, r *http.Request) {
	names := plugin.Names()
	out := make([]plugin.Descriptor, 0, len(names))
	for _, n := range names {
		if d, err := plugin.Lookup(n); err == nil {
			out = append(out, d)
		}
	}
	writeJSON(w, map[string]any{"items": out})
}
